// Package khoj embeds the recipe retrieval engine in-process: the same
// storage, index, and search pipeline as the HTTP server, behind a small
// typed API. Intended for the ingestion pipeline and for tooling that
// should not go through HTTP.
package khoj

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/db"
	dbRedis "github.com/khana-cloud/khoj/internal/db/redis"
	"github.com/khana-cloud/khoj/internal/domain"
	domrec "github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/search/filter"
	"github.com/khana-cloud/khoj/internal/domain/search/mode"
	"github.com/khana-cloud/khoj/internal/domain/search/request"
	"github.com/khana-cloud/khoj/internal/domain/tag"
	"github.com/khana-cloud/khoj/internal/metrics"
	annrepo "github.com/khana-cloud/khoj/internal/repository/ann"
	"github.com/khana-cloud/khoj/internal/repository/embcache"
	"github.com/khana-cloud/khoj/internal/repository/querycache"
	reciperepo "github.com/khana-cloud/khoj/internal/repository/recipe"
	openaiEmb "github.com/khana-cloud/khoj/internal/transport/openai"
	cachemgmtuc "github.com/khana-cloud/khoj/internal/usecase/cachemgmt"
	dimensionuc "github.com/khana-cloud/khoj/internal/usecase/dimension"
	embeddinguc "github.com/khana-cloud/khoj/internal/usecase/embedding"
	"github.com/khana-cloud/khoj/internal/usecase/filterengine"
	searchuc "github.com/khana-cloud/khoj/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Search modes.
const (
	ModeHybrid    = string(mode.Hybrid)
	ModeSemantic  = string(mode.Semantic)
	ModeAttribute = string(mode.Attribute)
)

// Tag is one classification assignment on a recipe.
type Tag struct {
	Dimension  string
	Value      string
	Confidence float64
	Source     string
}

// Recipe is the public recipe record.
type Recipe struct {
	ID           string
	Title        string
	Description  string
	PrepMinutes  int
	CookMinutes  int
	TotalMinutes int
	Servings     int
	CreatorID    string
	CreatorName  string
	Tags         []Tag
}

// Filters mirrors the structured filter constraints of the search API.
type Filters struct {
	Booleans        map[string]bool
	Selects         map[string][]string
	MaxTotalMinutes *int
	MinServings     *int
	MaxServings     *int
	Creator         string
}

// SearchParams is one search invocation.
type SearchParams struct {
	Query   string
	Mode    string // ModeHybrid (default), ModeSemantic, ModeAttribute
	Filters Filters
	Limit   int
	Offset  int
}

// Result is a single search hit.
type Result struct {
	Recipe      Recipe
	Score       float64
	MatchReason string
}

// Page is one ranked, paginated result set.
type Page struct {
	Results        []Result
	TotalCount     int
	AppliedFilters []string
	SkippedFilters []string
}

// Dimension is a public tag dimension definition.
type Dimension struct {
	Name          string
	Category      string
	DataType      string // "boolean", "single_select", "multi_select"
	AllowedValues []string
	Required      bool
	Description   string
}

// Client is the embedded engine entry point.
type Client struct {
	store      db.Store
	recipeRepo *reciperepo.Repo
	annClient  *annrepo.Client
	embedder   domain.Embedder
	searchSvc  *searchuc.Service
	dimSvc     *dimensionuc.Service
	cacheSvc   *cachemgmtuc.Service
}

// New creates an embedded engine client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		vectorDimensions: domain.DefaultVectorDimensions,
		logger:           zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("khoj: database address required (use WithRedis)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("khoj: create redis store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("khoj: database not ready: %w", err)
	}

	c, err := wireClient(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := c.recipeRepo.EnsureIndex(ctx, cfg.vectorDimensions, reciperepo.HNSWConfig{
		M:           cfg.hnswM,
		EFConstruct: cfg.hnswEFConstruct,
	}); err != nil {
		store.Close()
		return nil, fmt.Errorf("khoj: ensure index: %w", err)
	}
	return c, nil
}

func wireClient(store db.Store, cfg *clientConfig) (*Client, error) {
	logger := cfg.logger

	recipeRepo := reciperepo.New(store)
	annClient := annrepo.New(store, logger)

	embedder := buildEmbedder(store, cfg)

	var resultCache searchuc.ResultCache
	var mgmtCache cachemgmtuc.Cache
	if !cfg.cacheDisabled {
		qc := querycache.New(store, nil, logger)
		resultCache = qc
		mgmtCache = qc
	}

	engine := filterengine.New(logger)
	searchSvc := searchuc.New(annClient, recipeRepo, embedder, resultCache, engine, searchuc.Config{
		ScoreThreshold: cfg.scoreThreshold,
	}, logger)
	dimSvc := dimensionuc.New(recipeRepo)

	var cacheSvc *cachemgmtuc.Service
	if mgmtCache != nil {
		cacheSvc = cachemgmtuc.New(mgmtCache, searchSvc, nil, logger)
	}

	return &Client{
		store:      store,
		recipeRepo: recipeRepo,
		annClient:  annClient,
		embedder:   embedder,
		searchSvc:  searchSvc,
		dimSvc:     dimSvc,
		cacheSvc:   cacheSvc,
	}, nil
}

func buildEmbedder(store db.Store, cfg *clientConfig) domain.Embedder {
	if cfg.embedder != nil {
		return &embedderAdapter{inner: cfg.embedder}
	}
	if cfg.openaiAPIKey == "" {
		return &noopEmbedder{}
	}

	apiKey, baseURL, model := cfg.openaiAPIKey, cfg.openaiBaseURL, cfg.openaiModel
	dims, logger := cfg.vectorDimensions, cfg.logger

	return embeddinguc.NewProvider(func() (domain.Embedder, error) {
		base := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     apiKey,
			BaseURL:    baseURL,
			Model:      model,
			Dimensions: dims,
			Logger:     logger,
		})
		return embcache.New(base, store, metrics.EmbeddingCacheTotal, logger), nil
	})
}

// Close releases the database connection.
func (c *Client) Close() {
	c.store.Close()
}

// Search runs one search against the engine.
func (c *Client) Search(ctx context.Context, params SearchParams) (Page, error) {
	spec, err := filter.NewSpec(filter.Params{
		Booleans:        params.Filters.Booleans,
		Selects:         params.Filters.Selects,
		MaxTotalMinutes: params.Filters.MaxTotalMinutes,
		MinServings:     params.Filters.MinServings,
		MaxServings:     params.Filters.MaxServings,
		Creator:         params.Filters.Creator,
	})
	if err != nil {
		return Page{}, fmt.Errorf("khoj: %w: %w", domain.ErrInvalidRequest, err)
	}

	req, err := request.New(params.Query, mode.Mode(params.Mode), spec, params.Limit, params.Offset)
	if err != nil {
		return Page{}, fmt.Errorf("khoj: %w", err)
	}

	page, err := c.searchSvc.Search(ctx, &req)
	if err != nil {
		return Page{}, fmt.Errorf("khoj: search: %w", err)
	}

	out := Page{TotalCount: page.TotalCount, AppliedFilters: page.Filters.Applied}
	for _, s := range page.Filters.Skipped {
		out.SkippedFilters = append(out.SkippedFilters, s.Constraint)
	}
	out.Results = make([]Result, 0, len(page.Results))
	for i := range page.Results {
		r := &page.Results[i]
		out.Results = append(out.Results, Result{
			Recipe:      recipeFromDomain(r.Recipe()),
			Score:       r.Score(),
			MatchReason: r.MatchReason(),
		})
	}
	return out, nil
}

// IndexRecipe stores a recipe and its embedding, then invalidates stale
// cache entries for it. The embedded text is the title plus description.
func (c *Client) IndexRecipe(ctx context.Context, r Recipe) error {
	rec, err := recipeToDomain(r)
	if err != nil {
		return fmt.Errorf("khoj: %w", err)
	}

	if err := c.recipeRepo.Put(ctx, &rec); err != nil {
		return fmt.Errorf("khoj: store recipe: %w", err)
	}

	embResult, err := c.embedder.Embed(ctx, r.Title+"\n"+r.Description)
	if err != nil {
		return fmt.Errorf("khoj: embed recipe: %w", err)
	}
	if err := c.annClient.Upsert(ctx, r.ID, embResult.Embedding); err != nil {
		return fmt.Errorf("khoj: index recipe vector: %w", err)
	}

	if c.cacheSvc != nil {
		if _, err := c.cacheSvc.InvalidateRecipe(ctx, r.ID); err != nil {
			return fmt.Errorf("khoj: invalidate cache: %w", err)
		}
	}
	return nil
}

// GetRecipe loads one recipe by id.
func (c *Client) GetRecipe(ctx context.Context, id string) (Recipe, error) {
	rec, err := c.recipeRepo.Get(ctx, id)
	if err != nil {
		return Recipe{}, fmt.Errorf("khoj: get recipe: %w", err)
	}
	return recipeFromDomain(rec), nil
}

// DeleteRecipe removes a recipe and its cache entries.
func (c *Client) DeleteRecipe(ctx context.Context, id string) error {
	if err := c.recipeRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("khoj: delete recipe: %w", err)
	}
	if c.cacheSvc != nil {
		if _, err := c.cacheSvc.InvalidateRecipe(ctx, id); err != nil {
			return fmt.Errorf("khoj: invalidate cache: %w", err)
		}
	}
	return nil
}

// PutDimension registers or updates a tag dimension.
func (c *Client) PutDimension(ctx context.Context, d Dimension) error {
	dim, err := tag.NewDimension(
		d.Name, d.Category, tag.DataType(d.DataType),
		d.AllowedValues, d.Required, true, d.Description,
	)
	if err != nil {
		return fmt.Errorf("khoj: %w", err)
	}
	if err := c.recipeRepo.PutDimension(ctx, dim); err != nil {
		return fmt.Errorf("khoj: store dimension: %w", err)
	}
	return nil
}

// Dimensions lists the active tag dimensions.
func (c *Client) Dimensions(ctx context.Context) ([]Dimension, error) {
	dims, err := c.dimSvc.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("khoj: %w", err)
	}
	out := make([]Dimension, 0, len(dims))
	for _, d := range dims {
		out = append(out, Dimension{
			Name:          d.Name(),
			Category:      d.Category(),
			DataType:      string(d.DataType()),
			AllowedValues: d.AllowedValues(),
			Required:      d.Required(),
			Description:   d.Description(),
		})
	}
	return out, nil
}

// CacheStats reports hit/miss counters and key count, zero when caching is off.
func (c *Client) CacheStats(ctx context.Context) (hits, misses int64, keys int) {
	if c.cacheSvc == nil {
		return 0, 0, 0
	}
	stats := c.cacheSvc.Stats(ctx)
	return stats.Hits, stats.Misses, stats.Keys
}

func recipeToDomain(r Recipe) (domrec.Recipe, error) {
	tags := make([]tag.RecipeTag, 0, len(r.Tags))
	for _, t := range r.Tags {
		rt, err := tag.NewRecipeTag(t.Dimension, t.Value, t.Confidence, t.Source)
		if err != nil {
			return domrec.Recipe{}, err
		}
		tags = append(tags, rt)
	}
	return domrec.New(
		r.ID, r.Title, r.Description,
		r.PrepMinutes, r.CookMinutes, r.TotalMinutes, r.Servings,
		r.CreatorID, r.CreatorName, tags,
	)
}

func recipeFromDomain(rec domrec.Recipe) Recipe {
	var tags []Tag
	for _, t := range rec.Tags() {
		tags = append(tags, Tag{
			Dimension:  t.Dimension(),
			Value:      t.Value(),
			Confidence: t.Confidence(),
			Source:     t.Source(),
		})
	}
	return Recipe{
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
	}
}

// embedderAdapter lifts the public Embedder into the internal contract.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	vec, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// noopEmbedder fails vector operations when no embedder is configured.
// Attribute search still works without one.
type noopEmbedder struct{}

func (*noopEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{},
		fmt.Errorf("%w: no embedder configured (use WithEmbedder or WithOpenAIEmbedder)",
			domain.ErrEmbeddingProviderError)
}
