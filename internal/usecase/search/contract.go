package search

import (
	"context"
	"time"

	"github.com/khana-cloud/khoj/internal/domain"
	"github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/tag"
	"github.com/khana-cloud/khoj/internal/repository/ann"
)

// ANNClient answers vector similarity queries against the recipe index.
type ANNClient interface {
	Search(ctx context.Context, vector []float32, limit int, threshold float64) ([]ann.Candidate, error)
}

// RecipeStore resolves candidate identifiers and serves attribute lookups.
type RecipeStore interface {
	FetchByIDs(ctx context.Context, ids []string) ([]recipe.Recipe, error)
	TextMatch(ctx context.Context, query string, limit int) ([]recipe.Recipe, error)
	ListDimensions(ctx context.Context) ([]tag.Dimension, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ResultCache memoizes computed result pages. Both operations degrade
// rather than fail, so a nil-safe implementation is all that is required.
type ResultCache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}
