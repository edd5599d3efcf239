package chi

import (
	"context"
	"net/http/httptest"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/domain"
	"github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/tag"
	"github.com/khana-cloud/khoj/internal/repository/ann"
	"github.com/khana-cloud/khoj/internal/repository/querycache"
	cachemgmtuc "github.com/khana-cloud/khoj/internal/usecase/cachemgmt"
	dimensionuc "github.com/khana-cloud/khoj/internal/usecase/dimension"
	"github.com/khana-cloud/khoj/internal/usecase/filterengine"
	healthuc "github.com/khana-cloud/khoj/internal/usecase/health"
	searchuc "github.com/khana-cloud/khoj/internal/usecase/search"
)

type mockANN struct {
	candidates []ann.Candidate
	err        error
}

func (m *mockANN) Search(_ context.Context, _ []float32, _ int, _ float64) ([]ann.Candidate, error) {
	return m.candidates, m.err
}

type mockRecipeStore struct {
	recipes map[string]recipe.Recipe
	dims    []tag.Dimension
	dimsErr error
}

func (m *mockRecipeStore) FetchByIDs(_ context.Context, ids []string) ([]recipe.Recipe, error) {
	out := make([]recipe.Recipe, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.recipes[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockRecipeStore) TextMatch(_ context.Context, _ string, _ int) ([]recipe.Recipe, error) {
	return nil, nil
}

func (m *mockRecipeStore) ListDimensions(_ context.Context) ([]tag.Dimension, error) {
	return m.dims, m.dimsErr
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

type mockResultCache struct {
	stats      querycache.Stats
	removed    int
	invalidErr error
	keys       []string
}

func (m *mockResultCache) Stats(_ context.Context) querycache.Stats { return m.stats }

func (m *mockResultCache) Delete(_ context.Context, _ string) error { return nil }

func (m *mockResultCache) InvalidatePattern(_ context.Context, _ string) (int, error) {
	return m.removed, m.invalidErr
}

func (m *mockResultCache) FlushAll(_ context.Context) (int, error) {
	return m.removed, m.invalidErr
}

func (m *mockResultCache) ListKeys(_ context.Context, _ string, _ int) ([]string, error) {
	return m.keys, nil
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockIndexChecker struct {
	exists bool
	err    error
}

func (m *mockIndexChecker) IndexExists(_ context.Context, _ string) (bool, error) {
	return m.exists, m.err
}

// testDeps bundles the mocks behind one test server.
type testDeps struct {
	ann    *mockANN
	store  *mockRecipeStore
	embed  *mockEmbedder
	cache  *mockResultCache
	pinger *mockPinger
	index  *mockIndexChecker
}

func newTestDeps() *testDeps {
	return &testDeps{
		ann:    &mockANN{},
		store:  &mockRecipeStore{recipes: map[string]recipe.Recipe{}},
		embed:  &mockEmbedder{vec: []float32{0.1, 0.2}},
		cache:  &mockResultCache{},
		pinger: &mockPinger{},
		index:  &mockIndexChecker{exists: true},
	}
}

// newTestServer wires real services over the mocks, mirroring main.go.
func newTestServer(d *testDeps) *httptest.Server {
	logger := zap.NewNop()

	searchSvc := searchuc.New(
		d.ann, d.store, d.embed, nil,
		filterengine.New(logger), searchuc.Config{}, logger,
	)
	dimSvc := dimensionuc.New(d.store)
	cacheSvc := cachemgmtuc.New(d.cache, searchSvc, nil, logger)
	healthSvc := healthuc.New(d.pinger, d.index, "recipes_idx", nil)

	srv := NewServer(searchSvc, dimSvc, cacheSvc, healthSvc, logger)
	r := chirouter.NewRouter()
	srv.Register(r)
	return httptest.NewServer(r)
}

func makeRecipe(id, title string, tags ...tag.RecipeTag) recipe.Recipe {
	return recipe.Reconstruct(id, title, "", 0, 0, 30, 4, "c1", "Asha", tags)
}
