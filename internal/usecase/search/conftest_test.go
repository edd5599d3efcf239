package search

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/domain"
	"github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/search/filter"
	"github.com/khana-cloud/khoj/internal/domain/search/mode"
	"github.com/khana-cloud/khoj/internal/domain/search/request"
	"github.com/khana-cloud/khoj/internal/domain/tag"
	"github.com/khana-cloud/khoj/internal/repository/ann"
	"github.com/khana-cloud/khoj/internal/usecase/filterengine"
)

// Fixed UUIDs used as candidate ids.
const (
	idA = "4f9f24c1-7a3e-4f4a-a2bb-111111111111"
	idB = "4f9f24c1-7a3e-4f4a-a2bb-222222222222"
	idC = "4f9f24c1-7a3e-4f4a-a2bb-333333333333"
)

type mockANN struct {
	candidates    []ann.Candidate
	err           error
	calls         int
	lastK         int
	lastThreshold float64
}

func (m *mockANN) Search(
	_ context.Context, _ []float32, limit int, threshold float64,
) ([]ann.Candidate, error) {
	m.calls++
	m.lastK = limit
	m.lastThreshold = threshold
	return m.candidates, m.err
}

type mockStore struct {
	recipes     map[string]recipe.Recipe
	textResults []recipe.Recipe
	textErr     error
	fetchErr    error
	dims        []tag.Dimension
	dimsErr     error
	textCalls   int
	fetchCalls  int
}

func (m *mockStore) FetchByIDs(_ context.Context, ids []string) ([]recipe.Recipe, error) {
	m.fetchCalls++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]recipe.Recipe, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.recipes[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockStore) TextMatch(_ context.Context, _ string, _ int) ([]recipe.Recipe, error) {
	m.textCalls++
	return m.textResults, m.textErr
}

func (m *mockStore) ListDimensions(_ context.Context) ([]tag.Dimension, error) {
	return m.dims, m.dimsErr
}

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

// mockCache stores encoded values in memory and records the TTL of the
// last write.
type mockCache struct {
	entries  map[string][]byte
	getCalls int
	setCalls int
	lastTTL  time.Duration
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string][]byte{}}
}

func (m *mockCache) Get(_ context.Context, key string, dest any) bool {
	m.getCalls++
	data, ok := m.entries[key]
	if !ok {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (m *mockCache) Set(_ context.Context, key string, value any, ttl time.Duration) {
	m.setCalls++
	m.lastTTL = ttl
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	m.entries[key] = data
}

func makeRecipe(id, title string, tags ...tag.RecipeTag) recipe.Recipe {
	return recipe.Reconstruct(id, title, "", 0, 0, 30, 4, "c1", "Asha", tags)
}

func makeRequest(t *testing.T, query string, m mode.Mode, spec filter.Spec, limit, offset int) *request.Request {
	t.Helper()
	r, err := request.New(query, m, spec, limit, offset)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return &r
}

func newTestService(
	annClient *mockANN, store *mockStore, embed *mockEmbedder, cache ResultCache,
) *Service {
	return New(annClient, store, embed, cache, filterengine.New(zap.NewNop()), Config{}, zap.NewNop())
}
