// Package recipe is the attribute store access layer for recipe records
// and tag dimensions.
package recipe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/khana-cloud/khoj/internal/db"
	"github.com/khana-cloud/khoj/internal/domain"
	domrec "github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/tag"
)

// Storage key layout.
const (
	recipeKeyPrefix    = domain.KeyPrefix + "recipe:"
	dimensionKeyPrefix = domain.KeyPrefix + "dimension:"
	// IndexName is the FT index over recipe hashes, shared with the ANN client.
	IndexName = domain.KeyPrefix + "recipes:idx"
)

// store is the consumer interface for recipe storage (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo implements the attribute store contract over a db.Store.
type Repo struct {
	store store
}

// New creates a recipe repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// HNSWConfig holds HNSW index construction parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// EnsureIndex creates the recipe FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context, vectorDim int, hnsw HNSWConfig) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(IndexName).
		Prefix(recipeKeyPrefix).
		Text("title").
		Text("description").
		Tag("creator_id").
		Numeric("total_minutes").
		Numeric("servings").
		VectorHNSW("__vector", vectorDim, hnsw.M, hnsw.EFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Put stores a recipe record. The embedding vector is written separately
// by the normalization pipeline through the ANN client.
func (r *Repo) Put(ctx context.Context, rec *domrec.Recipe) error {
	fields, err := buildHashFields(rec)
	if err != nil {
		return fmt.Errorf("build fields %s: %w", rec.ID(), err)
	}
	if err := r.store.HSet(ctx, recipeKey(rec.ID()), fields); err != nil {
		return fmt.Errorf("hset %s: %w", rec.ID(), err)
	}
	return nil
}

// Get returns a recipe by identifier.
func (r *Repo) Get(ctx context.Context, id string) (domrec.Recipe, error) {
	m, err := r.store.HGetAll(ctx, recipeKey(id))
	if err != nil {
		return domrec.Recipe{}, fmt.Errorf("hgetall %s: %w", id, err)
	}
	if len(m) == 0 {
		return domrec.Recipe{}, domain.ErrRecipeNotFound
	}
	return parseHashFields(id, m), nil
}

// Delete removes a recipe record.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, recipeKey(id)); err != nil {
		return fmt.Errorf("del %s: %w", id, err)
	}
	return nil
}

// FetchByIDs resolves an identifier set to recipe records in input order.
// Identifiers that resolve to nothing are silently omitted; the caller
// decides whether that is worth a warning.
func (r *Repo) FetchByIDs(ctx context.Context, ids []string) ([]domrec.Recipe, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recipeKey(id)
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch recipes: %w", err)
	}

	recipes := make([]domrec.Recipe, 0, len(ids))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		recipes = append(recipes, parseHashFields(ids[i], m))
	}
	return recipes, nil
}

// TextMatch returns recipes whose title or description contains every query
// token, case-insensitively. An empty query matches all recipes up to limit.
func (r *Repo) TextMatch(ctx context.Context, query string, limit int) ([]domrec.Recipe, error) {
	if limit <= 0 {
		limit = 100
	}

	ftQuery := buildTextQuery(query)

	sr, err := r.store.SearchList(ctx, IndexName, ftQuery, 0, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("text match: %w", err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	recipes := make([]domrec.Recipe, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, recipeKeyPrefix)
		delete(entry.Fields, "__vector")
		recipes = append(recipes, parseHashFields(id, entry.Fields))
	}
	return recipes, nil
}

// PutDimension stores a tag dimension definition.
func (r *Repo) PutDimension(ctx context.Context, d tag.Dimension) error {
	fields, err := buildDimensionFields(d)
	if err != nil {
		return fmt.Errorf("build dimension fields %s: %w", d.Name(), err)
	}
	if err := r.store.HSet(ctx, dimensionKey(d.Name()), fields); err != nil {
		return fmt.Errorf("hset dimension %s: %w", d.Name(), err)
	}
	return nil
}

// ListDimensions returns all stored tag dimensions sorted by name.
func (r *Repo) ListDimensions(ctx context.Context) ([]tag.Dimension, error) {
	keys, err := r.store.Scan(ctx, dimensionKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan dimensions: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch dimensions: %w", err)
	}

	dims := make([]tag.Dimension, 0, len(keys))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		name := strings.TrimPrefix(keys[i], dimensionKeyPrefix)
		dims = append(dims, parseDimensionFields(name, m))
	}
	return dims, nil
}

// buildTextQuery turns free text into an FT.SEARCH clause matching title or
// description. Each token becomes an infix wildcard so partial words match.
func buildTextQuery(query string) string {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return "*"
	}

	escaped := make([]string, 0, len(tokens))
	for _, t := range tokens {
		escaped = append(escaped, "*"+db.EscapeQuery(strings.ToLower(t))+"*")
	}
	clause := strings.Join(escaped, " ")

	return fmt.Sprintf("(@title:(%s)) | (@description:(%s))", clause, clause)
}

func recipeKey(id string) string {
	return recipeKeyPrefix + id
}

func dimensionKey(name string) string {
	return dimensionKeyPrefix + name
}
