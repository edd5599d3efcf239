// Package recipe defines the recipe record owned by the attribute store.
package recipe

import (
	"fmt"

	"github.com/khana-cloud/khoj/internal/domain/tag"
)

// Recipe is a normalized recipe record. Immutable once created by the
// normalization pipeline except for corrective edits.
type Recipe struct {
	id           string
	title        string
	description  string
	prepMinutes  int
	cookMinutes  int
	totalMinutes int
	servings     int
	creatorID    string
	creatorName  string
	tags         []tag.RecipeTag
}

// New validates and creates a recipe. Zero timing/servings values mean "unknown".
func New(
	id, title, description string,
	prepMinutes, cookMinutes, totalMinutes, servings int,
	creatorID, creatorName string,
	tags []tag.RecipeTag,
) (Recipe, error) {
	if id == "" {
		return Recipe{}, fmt.Errorf("recipe id is required")
	}
	if title == "" {
		return Recipe{}, fmt.Errorf("recipe title is required")
	}
	if prepMinutes < 0 || cookMinutes < 0 || totalMinutes < 0 {
		return Recipe{}, fmt.Errorf("recipe %s: timing fields must be non-negative", id)
	}
	if servings < 0 {
		return Recipe{}, fmt.Errorf("recipe %s: servings must be non-negative", id)
	}
	return Recipe{
		id: id, title: title, description: description,
		prepMinutes: prepMinutes, cookMinutes: cookMinutes, totalMinutes: totalMinutes,
		servings: servings, creatorID: creatorID, creatorName: creatorName,
		tags: tags,
	}, nil
}

// Reconstruct rebuilds a recipe from storage without validation.
func Reconstruct(
	id, title, description string,
	prepMinutes, cookMinutes, totalMinutes, servings int,
	creatorID, creatorName string,
	tags []tag.RecipeTag,
) Recipe {
	return Recipe{
		id: id, title: title, description: description,
		prepMinutes: prepMinutes, cookMinutes: cookMinutes, totalMinutes: totalMinutes,
		servings: servings, creatorID: creatorID, creatorName: creatorName,
		tags: tags,
	}
}

// ID returns the recipe identifier.
func (r *Recipe) ID() string { return r.id }

// Title returns the recipe title.
func (r *Recipe) Title() string { return r.title }

// Description returns the recipe description.
func (r *Recipe) Description() string { return r.description }

// PrepMinutes returns the preparation time (0 = unknown).
func (r *Recipe) PrepMinutes() int { return r.prepMinutes }

// CookMinutes returns the cooking time (0 = unknown).
func (r *Recipe) CookMinutes() int { return r.cookMinutes }

// TotalMinutes returns the total time (0 = unknown).
func (r *Recipe) TotalMinutes() int { return r.totalMinutes }

// Servings returns the serving count (0 = unknown).
func (r *Recipe) Servings() int { return r.servings }

// CreatorID returns the creator reference.
func (r *Recipe) CreatorID() string { return r.creatorID }

// CreatorName returns the creator display name.
func (r *Recipe) CreatorName() string { return r.creatorName }

// Tags returns all tag assignments.
func (r *Recipe) Tags() []tag.RecipeTag { return r.tags }

// TagsOn returns the tag assignments on one dimension.
func (r *Recipe) TagsOn(dimension string) []tag.RecipeTag {
	var out []tag.RecipeTag
	for _, t := range r.tags {
		if t.Dimension() == dimension {
			out = append(out, t)
		}
	}
	return out
}

// HasTagValue reports whether the recipe carries the given value on a dimension.
func (r *Recipe) HasTagValue(dimension, value string) bool {
	for _, t := range r.tags {
		if t.Dimension() == dimension && t.Value() == value {
			return true
		}
	}
	return false
}
