// Package cachemgmt exposes operator controls over the query-result cache:
// inspection, warming, and invalidation.
package cachemgmt

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khana-cloud/khoj/internal/domain/search/filter"
	"github.com/khana-cloud/khoj/internal/domain/search/mode"
	"github.com/khana-cloud/khoj/internal/domain/search/request"
	"github.com/khana-cloud/khoj/internal/domain/search/result"
	"github.com/khana-cloud/khoj/internal/metrics"
	"github.com/khana-cloud/khoj/internal/repository/querycache"
)

// warmConcurrency bounds parallel warm-up searches.
const warmConcurrency = 4

// Cache is the cache layer contract this service manages.
type Cache interface {
	Stats(ctx context.Context) querycache.Stats
	Delete(ctx context.Context, key string) error
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
	FlushAll(ctx context.Context) (int, error)
	ListKeys(ctx context.Context, pattern string, limit int) ([]string, error)
}

// Searcher executes searches; warming goes through the normal search path
// so warmed entries are byte-identical to organically cached ones.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (result.Page, error)
}

// WarmReport summarizes one warm-up run.
type WarmReport struct {
	Warmed int      `json:"warmed"`
	Failed []string `json:"failed,omitempty"`
}

// Service is the cache management service.
type Service struct {
	cache       Cache
	searcher    Searcher
	warmQueries []string
	logger      *zap.Logger
}

// New creates a cache management service.
func New(cache Cache, searcher Searcher, warmQueries []string, logger *zap.Logger) *Service {
	return &Service{
		cache:       cache,
		searcher:    searcher,
		warmQueries: warmQueries,
		logger:      logger,
	}
}

// Stats returns the current cache report.
func (s *Service) Stats(ctx context.Context) querycache.Stats {
	return s.cache.Stats(ctx)
}

// Warm populates the cache by running the configured warm queries.
// Individual query failures are reported, never fatal: a warm-up is best
// effort and a partially warmed cache is still useful.
func (s *Service) Warm(ctx context.Context) WarmReport {
	report := WarmReport{}
	if len(s.warmQueries) == 0 {
		return report
	}

	type outcome struct {
		query string
		err   error
	}
	outcomes := make([]outcome, len(s.warmQueries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	for i, q := range s.warmQueries {
		g.Go(func() error {
			req, err := request.New(q, mode.Hybrid, filter.Spec{}, 0, 0)
			if err == nil {
				_, err = s.searcher.Search(gctx, &req)
			}
			outcomes[i] = outcome{query: q, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.err != nil {
			s.logger.Warn("Cache warm query failed", zap.String("query", o.query), zap.Error(o.err))
			report.Failed = append(report.Failed, o.query)
			continue
		}
		report.Warmed++
	}
	return report
}

// InvalidateRecipe removes cache entries tied to one recipe. Search pages
// do not record which recipes they contain, so every search entry goes too.
// The recipe:{id}:* namespace has no writers yet; it is reserved so
// per-recipe entries added later are already covered here.
func (s *Service) InvalidateRecipe(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("recipe id is required")
	}

	removed, err := s.cache.InvalidatePattern(ctx, "recipe:"+id+":*")
	if err != nil {
		return 0, fmt.Errorf("invalidate recipe %s: %w", id, err)
	}
	metrics.QueryCacheInvalidations.WithLabelValues("targeted").Add(float64(removed))

	searchRemoved, err := s.cache.InvalidatePattern(ctx, "search:*")
	if err != nil {
		return removed, fmt.Errorf("invalidate search entries: %w", err)
	}
	metrics.QueryCacheInvalidations.WithLabelValues("targeted").Add(float64(searchRemoved))

	s.logger.Info("Invalidated cache for recipe",
		zap.String("recipe_id", id),
		zap.Int("removed", removed+searchRemoved),
	)
	return removed + searchRemoved, nil
}

// InvalidatePattern removes cache entries matching a glob pattern.
func (s *Service) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, fmt.Errorf("pattern is required")
	}
	removed, err := s.cache.InvalidatePattern(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("invalidate pattern %q: %w", pattern, err)
	}
	metrics.QueryCacheInvalidations.WithLabelValues("pattern").Add(float64(removed))
	return removed, nil
}

// Flush clears the whole cache namespace.
func (s *Service) Flush(ctx context.Context) (int, error) {
	removed, err := s.cache.FlushAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("flush cache: %w", err)
	}
	metrics.QueryCacheInvalidations.WithLabelValues("flush").Add(float64(removed))
	s.logger.Info("Flushed query cache", zap.Int("removed", removed))
	return removed, nil
}

// ListKeys returns up to limit cache keys matching pattern.
func (s *Service) ListKeys(ctx context.Context, pattern string, limit int) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	return s.cache.ListKeys(ctx, pattern, limit)
}
