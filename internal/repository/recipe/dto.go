package recipe

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	domrec "github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/tag"
)

// tagDTO is the storage form of a tag assignment.
type tagDTO struct {
	Dimension  string  `json:"dimension"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

// buildHashFields converts a domain Recipe into a flat map[string]string for HSET.
// The __vector field is owned by the ANN index client and not written here.
func buildHashFields(rec *domrec.Recipe) (map[string]string, error) {
	tags := make([]tagDTO, 0, len(rec.Tags()))
	for _, t := range rec.Tags() {
		tags = append(tags, tagDTO{
			Dimension:  t.Dimension(),
			Value:      t.Value(),
			Confidence: t.Confidence(),
			Source:     t.Source(),
		})
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	return map[string]string{
		"title":         rec.Title(),
		"description":   rec.Description(),
		"prep_minutes":  strconv.Itoa(rec.PrepMinutes()),
		"cook_minutes":  strconv.Itoa(rec.CookMinutes()),
		"total_minutes": strconv.Itoa(rec.TotalMinutes()),
		"servings":      strconv.Itoa(rec.Servings()),
		"creator_id":    rec.CreatorID(),
		"creator_name":  rec.CreatorName(),
		"tags":          string(tagsJSON),
	}, nil
}

// parseHashFields converts a flat hash map back into a domain Recipe.
// Malformed numeric or tag fields degrade to zero values rather than failing.
func parseHashFields(id string, m map[string]string) domrec.Recipe {
	var tags []tag.RecipeTag
	if raw := m["tags"]; raw != "" {
		var dtos []tagDTO
		if err := json.Unmarshal([]byte(raw), &dtos); err == nil {
			tags = make([]tag.RecipeTag, 0, len(dtos))
			for _, d := range dtos {
				tags = append(tags, tag.ReconstructRecipeTag(d.Dimension, d.Value, d.Confidence, d.Source))
			}
		}
	}

	return domrec.Reconstruct(
		id,
		m["title"],
		m["description"],
		parseInt(m["prep_minutes"]),
		parseInt(m["cook_minutes"]),
		parseInt(m["total_minutes"]),
		parseInt(m["servings"]),
		m["creator_id"],
		m["creator_name"],
		tags,
	)
}

// buildDimensionFields converts a tag dimension into hash fields.
func buildDimensionFields(d tag.Dimension) (map[string]string, error) {
	allowed, err := json.Marshal(d.AllowedValues())
	if err != nil {
		return nil, fmt.Errorf("marshal allowed values: %w", err)
	}
	return map[string]string{
		"category":       d.Category(),
		"data_type":      string(d.DataType()),
		"allowed_values": string(allowed),
		"required":       strconv.FormatBool(d.Required()),
		"active":         strconv.FormatBool(d.Active()),
		"description":    d.Description(),
	}, nil
}

// parseDimensionFields rebuilds a tag dimension from hash fields.
func parseDimensionFields(name string, m map[string]string) tag.Dimension {
	var allowed []string
	if raw := m["allowed_values"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &allowed)
	}
	return tag.ReconstructDimension(
		name,
		m["category"],
		tag.DataType(m["data_type"]),
		allowed,
		m["required"] == "true",
		m["active"] == "true",
		m["description"],
	)
}

func parseInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
