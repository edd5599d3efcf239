package chi

import (
	"fmt"

	"github.com/khana-cloud/khoj/internal/domain/search/filter"
	"github.com/khana-cloud/khoj/internal/domain/search/mode"
	"github.com/khana-cloud/khoj/internal/domain/search/request"
	"github.com/khana-cloud/khoj/internal/domain/search/result"
	"github.com/khana-cloud/khoj/internal/domain/tag"
)

// searchRequestDTO is the POST /search body.
type searchRequestDTO struct {
	Query   string      `json:"query"`
	Mode    string      `json:"search_type,omitempty"`
	Filters *filtersDTO `json:"filters,omitempty"`
	Limit   int         `json:"limit,omitempty"`
	Offset  int         `json:"offset,omitempty"`
}

type filtersDTO struct {
	Booleans        map[string]bool     `json:"booleans,omitempty"`
	Selects         map[string][]string `json:"selects,omitempty"`
	MaxTotalMinutes *int                `json:"max_total_minutes,omitempty"`
	MinServings     *int                `json:"min_servings,omitempty"`
	MaxServings     *int                `json:"max_servings,omitempty"`
	Creator         string              `json:"creator,omitempty"`
}

type tagDTO struct {
	Dimension  string  `json:"dimension"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

type recipeDTO struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	PrepMinutes  int      `json:"prep_minutes,omitempty"`
	CookMinutes  int      `json:"cook_minutes,omitempty"`
	TotalMinutes int      `json:"total_minutes,omitempty"`
	Servings     int      `json:"servings,omitempty"`
	CreatorID    string   `json:"creator_id,omitempty"`
	CreatorName  string   `json:"creator_name,omitempty"`
	Tags         []tagDTO `json:"tags,omitempty"`
}

type searchResultDTO struct {
	Recipe         recipeDTO `json:"recipe"`
	RelevanceScore float64   `json:"relevance_score"`
	MatchReason    string    `json:"match_reason,omitempty"`
}

type searchResponseDTO struct {
	Results        []searchResultDTO  `json:"results"`
	TotalCount     int                `json:"total_count"`
	Query          string             `json:"query"`
	FiltersApplied filter.Application `json:"filters_applied"`
}

type dimensionDTO struct {
	Name          string   `json:"name"`
	Category      string   `json:"category,omitempty"`
	DataType      string   `json:"data_type"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Required      bool     `json:"required,omitempty"`
	Description   string   `json:"description,omitempty"`
}

type removedDTO struct {
	Removed int `json:"removed"`
}

type keysDTO struct {
	Keys []string `json:"keys"`
}

type errorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func searchRequestFromDTO(dto searchRequestDTO) (request.Request, error) {
	spec, err := filterSpecFromDTO(dto.Filters)
	if err != nil {
		return request.Request{}, fmt.Errorf("parse filters: %w", err)
	}
	return request.New(dto.Query, mode.Mode(dto.Mode), spec, dto.Limit, dto.Offset)
}

func filterSpecFromDTO(dto *filtersDTO) (filter.Spec, error) {
	if dto == nil {
		return filter.Spec{}, nil
	}
	return filter.NewSpec(filter.Params{
		Booleans:        dto.Booleans,
		Selects:         dto.Selects,
		MaxTotalMinutes: dto.MaxTotalMinutes,
		MinServings:     dto.MinServings,
		MaxServings:     dto.MaxServings,
		Creator:         dto.Creator,
	})
}

func searchResponseToDTO(page result.Page) searchResponseDTO {
	results := make([]searchResultDTO, 0, len(page.Results))
	for i := range page.Results {
		r := &page.Results[i]
		rec := r.Recipe()

		var tags []tagDTO
		for _, t := range rec.Tags() {
			tags = append(tags, tagDTO{
				Dimension:  t.Dimension(),
				Value:      t.Value(),
				Confidence: t.Confidence(),
				Source:     t.Source(),
			})
		}

		results = append(results, searchResultDTO{
			Recipe: recipeDTO{
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
			RelevanceScore: r.Score(),
			MatchReason:    r.MatchReason(),
		})
	}

	return searchResponseDTO{
		Results:        results,
		TotalCount:     page.TotalCount,
		Query:          page.Query,
		FiltersApplied: page.Filters,
	}
}

func dimensionToDTO(d tag.Dimension) dimensionDTO {
	return dimensionDTO{
		Name:          d.Name(),
		Category:      d.Category(),
		DataType:      string(d.DataType()),
		AllowedValues: d.AllowedValues(),
		Required:      d.Required(),
		Description:   d.Description(),
	}
}
