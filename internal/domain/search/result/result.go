// Package result defines search hits and result pages.
package result

import (
	"github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/search/filter"
)

// Result is a single search hit. The score is comparison-only within one
// query's result set, not globally calibrated.
type Result struct {
	recipe      recipe.Recipe
	score       float64
	matchReason string
}

// New creates a search result.
func New(rec recipe.Recipe, score float64, matchReason string) Result {
	return Result{recipe: rec, score: score, matchReason: matchReason}
}

// Recipe returns the matched recipe.
func (r *Result) Recipe() recipe.Recipe { return r.recipe }

// Score returns the relevance score in [0,1].
func (r *Result) Score() float64 { return r.score }

// MatchReason returns the optional human-readable match explanation.
func (r *Result) MatchReason() string { return r.matchReason }

// Page is one ranked, paginated result set.
type Page struct {
	Results    []Result
	TotalCount int
	Query      string
	Filters    filter.Application
}
