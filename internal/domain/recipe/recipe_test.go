package recipe

import (
	"testing"

	"github.com/khana-cloud/khoj/internal/domain/tag"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		title   string
		prep    int
		wantErr bool
	}{
		{"valid", "r1", "Dal Tadka", 10, false},
		{"zero timing is unknown", "r1", "Dal Tadka", 0, false},
		{"empty id", "", "Dal Tadka", 10, true},
		{"empty title", "r1", "", 10, true},
		{"negative timing", "r1", "Dal Tadka", -5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.id, tt.title, "", tt.prep, 0, 0, 0, "", "", nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecipe_TagLookups(t *testing.T) {
	tags := []tag.RecipeTag{
		tag.ReconstructRecipeTag("jain", "true", 0.9, "auto"),
		tag.ReconstructRecipeTag("meal_type", "lunch", 0.8, "auto"),
		tag.ReconstructRecipeTag("meal_type", "dinner", 0.7, "auto"),
	}
	rec := Reconstruct("r1", "Paneer Tikka", "", 0, 0, 30, 4, "c1", "Asha", tags)

	if !rec.HasTagValue("jain", "true") {
		t.Error("expected jain=true")
	}
	if rec.HasTagValue("jain", "false") {
		t.Error("unexpected jain=false")
	}
	if rec.HasTagValue("vegan", "true") {
		t.Error("absent dimension must not match")
	}
	if got := len(rec.TagsOn("meal_type")); got != 2 {
		t.Errorf("expected 2 meal_type tags, got %d", got)
	}
}
