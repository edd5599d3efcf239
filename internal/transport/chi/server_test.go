package chi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/khana-cloud/khoj/internal/domain"
	"github.com/khana-cloud/khoj/internal/domain/tag"
	"github.com/khana-cloud/khoj/internal/repository/ann"
	"github.com/khana-cloud/khoj/internal/repository/querycache"
)

const testRecipeID = "4f9f24c1-7a3e-4f4a-a2bb-111111111111"

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestSearchRecipes_OK(t *testing.T) {
	d := newTestDeps()
	d.ann.candidates = []ann.Candidate{{ID: testRecipeID, Score: 0.87}}
	d.store.recipes[testRecipeID] = makeRecipe(testRecipeID, "Masala Dosa",
		tag.ReconstructRecipeTag("region", "south_indian", 0.9, "auto"))
	ts := newTestServer(d)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search", `{"query": "dosa"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got searchResponseDTO
	decodeBody(t, resp, &got)
	if got.TotalCount != 1 || len(got.Results) != 1 {
		t.Fatalf("unexpected page: total=%d results=%d", got.TotalCount, len(got.Results))
	}
	r := got.Results[0]
	if r.Recipe.ID != testRecipeID || r.Recipe.Title != "Masala Dosa" {
		t.Errorf("unexpected recipe %+v", r.Recipe)
	}
	if r.RelevanceScore != 0.87 {
		t.Errorf("score = %g, want 0.87", r.RelevanceScore)
	}
	if r.MatchReason != "semantic similarity" {
		t.Errorf("match reason = %q", r.MatchReason)
	}
	if len(r.Recipe.Tags) != 1 || r.Recipe.Tags[0].Value != "south_indian" {
		t.Errorf("tags did not survive the round trip: %v", r.Recipe.Tags)
	}
	if got.Query != "dosa" {
		t.Errorf("query echo = %q", got.Query)
	}
}

func TestSearchRecipes_BadBody(t *testing.T) {
	ts := newTestServer(newTestDeps())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var e errorDTO
	decodeBody(t, resp, &e)
	if e.Code != codeBadRequest {
		t.Errorf("code = %q, want %q", e.Code, codeBadRequest)
	}
}

func TestSearchRecipes_ValidationFailed(t *testing.T) {
	ts := newTestServer(newTestDeps())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"limit above max", `{"query": "dal", "limit": 101}`},
		{"unknown search type", `{"query": "dal", "search_type": "vector"}`},
		{"negative offset", `{"query": "dal", "offset": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/v1/search", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var e errorDTO
			decodeBody(t, resp, &e)
			if e.Code != codeValidationFailed {
				t.Errorf("code = %q, want %q", e.Code, codeValidationFailed)
			}
		})
	}
}

func TestSearchRecipes_IndexUnavailable(t *testing.T) {
	d := newTestDeps()
	d.ann.err = domain.ErrIndexUnavailable
	ts := newTestServer(d)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search", `{"query": "dal"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var e errorDTO
	decodeBody(t, resp, &e)
	if e.Code != codeIndexUnavailable {
		t.Errorf("code = %q, want %q", e.Code, codeIndexUnavailable)
	}
}

func TestSearchRecipes_EmbeddingProviderError(t *testing.T) {
	d := newTestDeps()
	d.embed.err = domain.ErrEmbeddingProviderError
	ts := newTestServer(d)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search", `{"query": "dal", "search_type": "semantic"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var e errorDTO
	decodeBody(t, resp, &e)
	if e.Code != codeEmbeddingError {
		t.Errorf("code = %q, want %q", e.Code, codeEmbeddingError)
	}
}

func TestListFilters(t *testing.T) {
	d := newTestDeps()
	d.store.dims = []tag.Dimension{
		tag.ReconstructDimension("jain", "diet", tag.Boolean, nil, false, true, "Jain dietary rules"),
		tag.ReconstructDimension("retired", "diet", tag.Boolean, nil, false, false, ""),
	}
	ts := newTestServer(d)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/filters")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got struct {
		Dimensions []dimensionDTO `json:"dimensions"`
	}
	decodeBody(t, resp, &got)
	if len(got.Dimensions) != 1 {
		t.Fatalf("inactive dimensions must be hidden, got %d", len(got.Dimensions))
	}
	if got.Dimensions[0].Name != "jain" || got.Dimensions[0].DataType != "boolean" {
		t.Errorf("unexpected dimension %+v", got.Dimensions[0])
	}
}

func TestHealthCheck(t *testing.T) {
	d := newTestDeps()
	ts := newTestServer(d)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// A failing database ping degrades the whole report.
	d2 := newTestDeps()
	d2.pinger.err = domain.ErrIndexUnavailable
	ts2 := newTestServer(d2)
	defer ts2.Close()

	resp2, err := http.Get(ts2.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", resp2.StatusCode)
	}
	var report struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, resp2, &report)
	if report.Status != "degraded" || report.Checks["database"] != "error" {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestCacheEndpoints(t *testing.T) {
	d := newTestDeps()
	d.cache.stats = querycache.Stats{Hits: 3, Misses: 1, HitRate: 0.75, Keys: 2}
	d.cache.removed = 4
	d.cache.keys = []string{"search:abc"}
	ts := newTestServer(d)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/cache/stats")
	if err != nil {
		t.Fatal(err)
	}
	var stats querycache.Stats
	decodeBody(t, resp, &stats)
	if stats.Hits != 3 || stats.Keys != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	resp = postJSON(t, ts.URL+"/api/v1/cache/flush", "")
	var removed removedDTO
	decodeBody(t, resp, &removed)
	if removed.Removed != 4 {
		t.Errorf("flush removed = %d, want 4", removed.Removed)
	}

	resp, err = http.Get(ts.URL + "/api/v1/cache/keys?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	var keys keysDTO
	decodeBody(t, resp, &keys)
	if len(keys.Keys) != 1 || keys.Keys[0] != "search:abc" {
		t.Errorf("unexpected keys %v", keys.Keys)
	}

	resp, err = http.Get(ts.URL + "/api/v1/cache/keys?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInvalidateCacheKeys_RequiresPattern(t *testing.T) {
	ts := newTestServer(newTestDeps())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/cache/keys", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInvalidateRecipeCache(t *testing.T) {
	d := newTestDeps()
	d.cache.removed = 2
	ts := newTestServer(d)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/cache/recipes/"+testRecipeID, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var removed removedDTO
	decodeBody(t, resp, &removed)
	// recipe:* and search:* sweeps both report removals.
	if removed.Removed != 4 {
		t.Errorf("removed = %d, want 4", removed.Removed)
	}
}

func TestBearerAuthMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("disabled when no keys", func(t *testing.T) {
		mw := BearerAuthMiddleware(nil)(handler)
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/filters", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		mw := BearerAuthMiddleware([]string{"secret"})(handler)
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/filters", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong scheme", func(t *testing.T) {
		mw := BearerAuthMiddleware([]string{"secret"})(handler)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/filters", nil)
		req.Header.Set("Authorization", "Basic secret")
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		mw := BearerAuthMiddleware([]string{"secret"})(handler)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/filters", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		mw := BearerAuthMiddleware([]string{"secret"})(handler)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/filters", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("healthz exempt", func(t *testing.T) {
		mw := BearerAuthMiddleware([]string{"secret"})(handler)
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}
