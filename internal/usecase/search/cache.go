package search

import (
	"github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/search/filter"
	"github.com/khana-cloud/khoj/internal/domain/search/request"
	"github.com/khana-cloud/khoj/internal/domain/search/result"
	"github.com/khana-cloud/khoj/internal/domain/tag"
)

// keyParams is the canonical cache-key input for one search request.
// Field order is irrelevant (map keys are sorted during serialization),
// but every parameter that changes the result set must appear here.
type keyParams struct {
	Query           string              `json:"query"`
	Mode            string              `json:"mode"`
	Booleans        map[string]bool     `json:"booleans,omitempty"`
	Selects         map[string][]string `json:"selects,omitempty"`
	MaxTotalMinutes *int                `json:"max_total_minutes,omitempty"`
	MinServings     *int                `json:"min_servings,omitempty"`
	MaxServings     *int                `json:"max_servings,omitempty"`
	Creator         string              `json:"creator,omitempty"`
	Limit           int                 `json:"limit"`
	Offset          int                 `json:"offset"`
}

func keyParamsFrom(req *request.Request) keyParams {
	f := req.Filters()
	return keyParams{
		Query:           req.Query(),
		Mode:            string(req.Mode()),
		Booleans:        f.Booleans(),
		Selects:         f.Selects(),
		MaxTotalMinutes: f.MaxTotalMinutes(),
		MinServings:     f.MinServings(),
		MaxServings:     f.MaxServings(),
		Creator:         f.Creator(),
		Limit:           req.Limit(),
		Offset:          req.Offset(),
	}
}

// cachedTag / cachedRecipe / cachedResult / cachedPage are the JSON storage
// forms of a result page. Domain types keep their fields unexported, so the
// cache round-trips through these DTOs.
type cachedTag struct {
	Dimension  string  `json:"dimension"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

type cachedRecipe struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	PrepMinutes  int         `json:"prep_minutes,omitempty"`
	CookMinutes  int         `json:"cook_minutes,omitempty"`
	TotalMinutes int         `json:"total_minutes,omitempty"`
	Servings     int         `json:"servings,omitempty"`
	CreatorID    string      `json:"creator_id,omitempty"`
	CreatorName  string      `json:"creator_name,omitempty"`
	Tags         []cachedTag `json:"tags,omitempty"`
}

type cachedResult struct {
	Recipe      cachedRecipe `json:"recipe"`
	Score       float64      `json:"score"`
	MatchReason string       `json:"match_reason,omitempty"`
}

type cachedPage struct {
	Results    []cachedResult     `json:"results"`
	TotalCount int                `json:"total_count"`
	Query      string             `json:"query"`
	Filters    filter.Application `json:"filters"`
}

func toCachedPage(page result.Page) cachedPage {
	results := make([]cachedResult, 0, len(page.Results))
	for i := range page.Results {
		r := &page.Results[i]
		rec := r.Recipe()

		tags := make([]cachedTag, 0, len(rec.Tags()))
		for _, t := range rec.Tags() {
			tags = append(tags, cachedTag{
				Dimension:  t.Dimension(),
				Value:      t.Value(),
				Confidence: t.Confidence(),
				Source:     t.Source(),
			})
		}

		results = append(results, cachedResult{
			Recipe: cachedRecipe{
				ID:           rec.ID(),
				Title:        rec.Title(),
				Description:  rec.Description(),
				PrepMinutes:  rec.PrepMinutes(),
				CookMinutes:  rec.CookMinutes(),
				TotalMinutes: rec.TotalMinutes(),
				Servings:     rec.Servings(),
				CreatorID:    rec.CreatorID(),
				CreatorName:  rec.CreatorName(),
				Tags:         tags,
			},
			Score:       r.Score(),
			MatchReason: r.MatchReason(),
		})
	}
	return cachedPage{
		Results:    results,
		TotalCount: page.TotalCount,
		Query:      page.Query,
		Filters:    page.Filters,
	}
}

func fromCachedPage(cp cachedPage) result.Page {
	results := make([]result.Result, 0, len(cp.Results))
	for _, cr := range cp.Results {
		var tags []tag.RecipeTag
		for _, t := range cr.Recipe.Tags {
			tags = append(tags, tag.ReconstructRecipeTag(t.Dimension, t.Value, t.Confidence, t.Source))
		}
		rec := recipe.Reconstruct(
			cr.Recipe.ID,
			cr.Recipe.Title,
			cr.Recipe.Description,
			cr.Recipe.PrepMinutes,
			cr.Recipe.CookMinutes,
			cr.Recipe.TotalMinutes,
			cr.Recipe.Servings,
			cr.Recipe.CreatorID,
			cr.Recipe.CreatorName,
			tags,
		)
		results = append(results, result.New(rec, cr.Score, cr.MatchReason))
	}
	return result.Page{
		Results:    results,
		TotalCount: cp.TotalCount,
		Query:      cp.Query,
		Filters:    cp.Filters,
	}
}
