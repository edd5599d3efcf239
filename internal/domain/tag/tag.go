// Package tag defines recipe classification dimensions and tag assignments.
package tag

import (
	"fmt"
	"slices"
)

// DataType is the value type of a tag dimension.
type DataType string

// Dimension data types.
const (
	// Boolean dimensions carry "true"/"false" values (e.g. jain, vegan).
	Boolean DataType = "boolean"
	// SingleSelect dimensions allow exactly one tag per recipe (e.g. region).
	SingleSelect DataType = "single_select"
	// MultiSelect dimensions allow several tags per recipe (e.g. meal type).
	MultiSelect DataType = "multi_select"
)

// IsValid checks if the data type is one of the supported values.
func (t DataType) IsValid() bool {
	return t == Boolean || t == SingleSelect || t == MultiSelect
}

// BoolValues are the only values a boolean dimension accepts.
var BoolValues = []string{"true", "false"}

// Dimension is a named, typed axis of recipe classification.
type Dimension struct {
	name          string
	category      string
	dataType      DataType
	allowedValues []string
	required      bool
	active        bool
	description   string
}

// NewDimension validates and creates a tag dimension.
// An empty allowedValues set means the value vocabulary is unrestricted.
func NewDimension(
	name, category string, dataType DataType,
	allowedValues []string, required, active bool, description string,
) (Dimension, error) {
	if name == "" {
		return Dimension{}, fmt.Errorf("dimension name is required")
	}
	if !dataType.IsValid() {
		return Dimension{}, fmt.Errorf("invalid data type %q for dimension %q", dataType, name)
	}
	return Dimension{
		name:          name,
		category:      category,
		dataType:      dataType,
		allowedValues: allowedValues,
		required:      required,
		active:        active,
		description:   description,
	}, nil
}

// ReconstructDimension rebuilds a dimension from storage without validation.
func ReconstructDimension(
	name, category string, dataType DataType,
	allowedValues []string, required, active bool, description string,
) Dimension {
	return Dimension{
		name:          name,
		category:      category,
		dataType:      dataType,
		allowedValues: allowedValues,
		required:      required,
		active:        active,
		description:   description,
	}
}

// Name returns the unique dimension name.
func (d Dimension) Name() string { return d.name }

// Category returns the dimension category (diet, spice, region, ...).
func (d Dimension) Category() string { return d.category }

// DataType returns the value type.
func (d Dimension) DataType() DataType { return d.dataType }

// AllowedValues returns the constrained value vocabulary (empty = unrestricted).
func (d Dimension) AllowedValues() []string { return d.allowedValues }

// Required reports whether every recipe must carry a tag on this dimension.
func (d Dimension) Required() bool { return d.required }

// Active reports whether the dimension participates in filtering.
func (d Dimension) Active() bool { return d.active }

// Description returns the human-readable description.
func (d Dimension) Description() string { return d.description }

// AllowsValue reports whether a tag value belongs to the dimension vocabulary.
// Boolean dimensions accept only "true"/"false"; an empty allowed set is unrestricted.
func (d Dimension) AllowsValue(v string) bool {
	if d.dataType == Boolean {
		return slices.Contains(BoolValues, v)
	}
	if len(d.allowedValues) == 0 {
		return true
	}
	return slices.Contains(d.allowedValues, v)
}

// ValidateValue rejects a tag value outside the dimension vocabulary.
func (d Dimension) ValidateValue(v string) error {
	if v == "" {
		return fmt.Errorf("empty value for dimension %q", d.name)
	}
	if !d.AllowsValue(v) {
		return fmt.Errorf("value %q not allowed for dimension %q", v, d.name)
	}
	return nil
}

// RecipeTag is a single tag assignment on a recipe.
type RecipeTag struct {
	dimension  string
	value      string
	confidence float64
	source     string
}

// NewRecipeTag validates and creates a tag assignment.
func NewRecipeTag(dimension, value string, confidence float64, source string) (RecipeTag, error) {
	if dimension == "" {
		return RecipeTag{}, fmt.Errorf("tag dimension is required")
	}
	if value == "" {
		return RecipeTag{}, fmt.Errorf("tag value is required for dimension %q", dimension)
	}
	if confidence < 0 || confidence > 1 {
		return RecipeTag{}, fmt.Errorf("confidence must be between 0 and 1, got %g", confidence)
	}
	return RecipeTag{dimension: dimension, value: value, confidence: confidence, source: source}, nil
}

// ReconstructRecipeTag rebuilds a tag assignment from storage without validation.
func ReconstructRecipeTag(dimension, value string, confidence float64, source string) RecipeTag {
	return RecipeTag{dimension: dimension, value: value, confidence: confidence, source: source}
}

// Dimension returns the dimension name this tag belongs to.
func (t RecipeTag) Dimension() string { return t.dimension }

// Value returns the tag value.
func (t RecipeTag) Value() string { return t.value }

// Confidence returns the assignment confidence in [0,1].
func (t RecipeTag) Confidence() float64 { return t.confidence }

// Source returns the tag provenance (auto-tagger, editor, creator).
func (t RecipeTag) Source() string { return t.source }
