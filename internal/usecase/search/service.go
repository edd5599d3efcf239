// Package search orchestrates recipe retrieval across semantic, attribute,
// and hybrid strategies, with result-page caching in front of computation.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/search/filter"
	"github.com/khana-cloud/khoj/internal/domain/search/mode"
	"github.com/khana-cloud/khoj/internal/domain/search/request"
	"github.com/khana-cloud/khoj/internal/domain/search/result"
	"github.com/khana-cloud/khoj/internal/domain/tag"
	"github.com/khana-cloud/khoj/internal/metrics"
	"github.com/khana-cloud/khoj/internal/repository/ann"
	"github.com/khana-cloud/khoj/internal/repository/querycache"
	"github.com/khana-cloud/khoj/internal/usecase/filterengine"
)

// Match reasons attached to results.
const (
	reasonSemantic = "semantic similarity"
	reasonText     = "text match"
)

// Config holds retrieval tuning knobs.
type Config struct {
	// ScoreThreshold is the minimum cosine similarity an ANN candidate needs.
	ScoreThreshold float64
	// SemanticOversample multiplies the requested page size for semantic ANN
	// queries so post-filtering still fills the page.
	SemanticOversample int
	// HybridOversample is the same multiplier for hybrid queries, larger
	// because hybrid merging and filtering discard more candidates.
	HybridOversample int
	// TextMatchLimit caps attribute-mode text scans.
	TextMatchLimit int
	// CallTimeout bounds one whole search computation.
	CallTimeout time.Duration
	// SearchTTL is the lifetime of cached result pages.
	SearchTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = 0.3
	}
	if c.SemanticOversample <= 0 {
		c.SemanticOversample = 2
	}
	if c.HybridOversample <= 0 {
		c.HybridOversample = 5
	}
	if c.TextMatchLimit <= 0 {
		c.TextMatchLimit = 1000
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.SearchTTL <= 0 {
		c.SearchTTL = querycache.SearchTTL
	}
	return c
}

// Service executes validated search requests.
type Service struct {
	annIndex ANNClient
	repo     RecipeStore
	embed    Embedder
	cache    ResultCache
	engine   *filterengine.Engine
	cfg      Config
	logger   *zap.Logger
}

// New creates a search service. cache may be nil to disable memoization.
func New(
	annIndex ANNClient, repo RecipeStore, embed Embedder,
	cache ResultCache, engine *filterengine.Engine,
	cfg Config, logger *zap.Logger,
) *Service {
	return &Service{
		annIndex: annIndex,
		repo:     repo,
		embed:    embed,
		cache:    cache,
		engine:   engine,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Search serves one request, from cache when possible.
// A cache failure on either side degrades to direct computation.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	modeLabel := string(req.Mode())
	start := time.Now()

	key := s.cacheKey(req)
	if key != "" {
		var cached cachedPage
		if s.cache.Get(ctx, key, &cached) {
			metrics.SearchRequestsTotal.WithLabelValues(modeLabel, "success").Inc()
			metrics.SearchDuration.WithLabelValues(modeLabel).Observe(time.Since(start).Seconds())
			return fromCachedPage(cached), nil
		}
	}

	page, err := s.compute(ctx, req)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(modeLabel, "error").Inc()
		return result.Page{}, err
	}

	if key != "" {
		s.cache.Set(ctx, key, toCachedPage(page), s.cfg.SearchTTL)
	}

	metrics.SearchRequestsTotal.WithLabelValues(modeLabel, "success").Inc()
	metrics.SearchDuration.WithLabelValues(modeLabel).Observe(time.Since(start).Seconds())
	return page, nil
}

func (s *Service) cacheKey(req *request.Request) string {
	if s.cache == nil {
		return ""
	}
	key, err := querycache.Key("search", keyParamsFrom(req))
	if err != nil {
		s.logger.Warn("Failed to derive search cache key", zap.Error(err))
		return ""
	}
	return key
}

func (s *Service) compute(ctx context.Context, req *request.Request) (result.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	var (
		results []result.Result
		err     error
	)
	switch req.Mode() {
	case mode.Semantic:
		results, err = s.searchSemantic(ctx, req)
	case mode.Attribute:
		results, err = s.searchAttribute(ctx, req)
	case mode.Hybrid:
		results, err = s.searchHybrid(ctx, req)
	default:
		return result.Page{}, fmt.Errorf("unsupported search mode: %s", req.Mode())
	}
	if err != nil {
		return result.Page{}, err
	}

	filtered, application := s.applyFilters(ctx, req, results)

	return result.Page{
		Results:    paginate(filtered, req.Offset(), req.Limit()),
		TotalCount: len(filtered),
		Query:      req.Query(),
		Filters:    application,
	}, nil
}

// searchSemantic embeds the query and resolves oversampled ANN candidates.
func (s *Service) searchSemantic(ctx context.Context, req *request.Request) ([]result.Result, error) {
	vector, err := s.embedQuery(ctx, req.Query())
	if err != nil {
		return nil, err
	}

	k := (req.Offset() + req.Limit()) * s.cfg.SemanticOversample
	candidates, err := s.annIndex.Search(ctx, vector, k, s.cfg.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("ann search: %w", err)
	}

	return s.resolve(ctx, candidates, reasonSemantic)
}

// searchAttribute scans stored titles and descriptions. Every match carries
// a flat score: there is no meaningful ranking signal in a substring scan.
func (s *Service) searchAttribute(ctx context.Context, req *request.Request) ([]result.Result, error) {
	recipes, err := s.repo.TextMatch(ctx, req.Query(), s.cfg.TextMatchLimit)
	if err != nil {
		return nil, fmt.Errorf("text match: %w", err)
	}

	results := make([]result.Result, 0, len(recipes))
	for _, rec := range recipes {
		results = append(results, result.New(rec, 1.0, reasonText))
	}
	return results, nil
}

// searchHybrid oversamples the ANN index more aggressively, validates and
// dedupes the candidate ids, then resolves and re-ranks. Zero candidates
// is a valid empty outcome, not an error.
func (s *Service) searchHybrid(ctx context.Context, req *request.Request) ([]result.Result, error) {
	vector, err := s.embedQuery(ctx, req.Query())
	if err != nil {
		return nil, err
	}

	k := (req.Offset() + req.Limit()) * s.cfg.HybridOversample
	candidates, err := s.annIndex.Search(ctx, vector, k, s.cfg.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("ann search: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	results, err := s.resolve(ctx, dedupe(candidates), reasonSemantic)
	if err != nil {
		return nil, err
	}

	// Ties keep candidate order, which is the ANN ranking.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score() > results[j].Score()
	})
	return results, nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	embResult, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	return embResult.Embedding, nil
}

// resolve fetches recipe records for candidates, preserving candidate order.
// Candidates whose records vanished between indexing and lookup are dropped
// with a warning; a stale index entry must not fail the whole query.
func (s *Service) resolve(
	ctx context.Context, candidates []ann.Candidate, reason string,
) ([]result.Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	scores := make(map[string]float64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
		scores[c.ID] = c.Score
	}

	recipes, err := s.repo.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve candidates: %w", err)
	}

	if dropped := len(ids) - len(recipes); dropped > 0 {
		metrics.SearchCandidatesDropped.WithLabelValues("unresolved").Add(float64(dropped))
		s.logger.Warn("Dropped unresolved candidates", zap.Int("count", dropped))
	}

	results := make([]result.Result, 0, len(recipes))
	for _, rec := range recipes {
		results = append(results, result.New(rec, scores[rec.ID()], reason))
	}
	return results, nil
}

// applyFilters runs the filter engine against the dimension registry.
// A registry fetch failure skips every tag constraint rather than failing
// the request; structural constraints still apply.
func (s *Service) applyFilters(
	ctx context.Context, req *request.Request, results []result.Result,
) ([]result.Result, filter.Application) {
	spec := req.Filters()
	if spec.IsEmpty() {
		return results, filter.Application{}
	}

	dims := map[string]tag.Dimension{}
	if len(spec.Booleans()) > 0 || len(spec.Selects()) > 0 {
		list, err := s.repo.ListDimensions(ctx)
		if err != nil {
			s.logger.Warn("Dimension registry unavailable, tag filters will be skipped", zap.Error(err))
		}
		for _, d := range list {
			dims[d.Name()] = d
		}
	}

	recipes := make([]recipe.Recipe, len(results))
	byID := make(map[string]*result.Result, len(results))
	for i := range results {
		recipes[i] = results[i].Recipe()
		byID[recipes[i].ID()] = &results[i]
	}

	kept, application := s.engine.Apply(spec, recipes, dims)

	filtered := make([]result.Result, 0, len(kept))
	for i := range kept {
		filtered = append(filtered, *byID[kept[i].ID()])
	}
	return filtered, application
}

// dedupe collapses repeated candidate ids, keeping the best score and the
// first occurrence's position. Malformed ids are dropped and counted.
func dedupe(candidates []ann.Candidate) []ann.Candidate {
	out := make([]ann.Candidate, 0, len(candidates))
	index := make(map[string]int, len(candidates))

	for _, c := range candidates {
		if _, err := uuid.Parse(c.ID); err != nil {
			metrics.SearchCandidatesDropped.WithLabelValues("malformed_id").Inc()
			continue
		}
		if i, seen := index[c.ID]; seen {
			if c.Score > out[i].Score {
				out[i].Score = c.Score
			}
			continue
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

func paginate(results []result.Result, offset, limit int) []result.Result {
	if offset >= len(results) {
		return []result.Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
