package cachemgmt

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/domain/search/mode"
	"github.com/khana-cloud/khoj/internal/domain/search/request"
	"github.com/khana-cloud/khoj/internal/domain/search/result"
	"github.com/khana-cloud/khoj/internal/repository/querycache"
)

type mockCache struct {
	stats       querycache.Stats
	removed     map[string]int
	patterns    []string
	invalidErr  error
	flushTotal  int
	flushErr    error
	listedKeys  []string
	lastPattern string
	lastLimit   int
}

func newMockCache() *mockCache {
	return &mockCache{removed: map[string]int{}}
}

func (m *mockCache) Stats(_ context.Context) querycache.Stats { return m.stats }

func (m *mockCache) Delete(_ context.Context, _ string) error { return nil }

func (m *mockCache) InvalidatePattern(_ context.Context, pattern string) (int, error) {
	if m.invalidErr != nil {
		return 0, m.invalidErr
	}
	m.patterns = append(m.patterns, pattern)
	return m.removed[pattern], nil
}

func (m *mockCache) FlushAll(_ context.Context) (int, error) {
	return m.flushTotal, m.flushErr
}

func (m *mockCache) ListKeys(_ context.Context, pattern string, limit int) ([]string, error) {
	m.lastPattern = pattern
	m.lastLimit = limit
	return m.listedKeys, nil
}

type mockSearcher struct {
	mu      sync.Mutex
	failOn  map[string]error
	queries []string
	modes   []mode.Mode
}

func (m *mockSearcher) Search(_ context.Context, req *request.Request) (result.Page, error) {
	m.mu.Lock()
	m.queries = append(m.queries, req.Query())
	m.modes = append(m.modes, req.Mode())
	m.mu.Unlock()
	if err, ok := m.failOn[req.Query()]; ok {
		return result.Page{}, err
	}
	return result.Page{}, nil
}

func TestWarm(t *testing.T) {
	searcher := &mockSearcher{
		failOn: map[string]error{"dal": errors.New("index unavailable")},
	}
	svc := New(newMockCache(), searcher, []string{"paneer curry", "dal", "quick breakfast"}, zap.NewNop())

	report := svc.Warm(context.Background())
	if report.Warmed != 2 {
		t.Errorf("expected 2 warmed, got %d", report.Warmed)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "dal" {
		t.Errorf("expected [dal] failed, got %v", report.Failed)
	}

	sort.Strings(searcher.queries)
	if len(searcher.queries) != 3 {
		t.Errorf("every warm query must be executed, got %v", searcher.queries)
	}
	if len(searcher.modes) > 0 && searcher.modes[0] != mode.Hybrid {
		t.Errorf("warm searches must use hybrid mode, got %s", searcher.modes[0])
	}
}

func TestWarm_NoQueriesConfigured(t *testing.T) {
	searcher := &mockSearcher{}
	svc := New(newMockCache(), searcher, nil, zap.NewNop())

	report := svc.Warm(context.Background())
	if report.Warmed != 0 || len(report.Failed) != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if len(searcher.queries) != 0 {
		t.Error("no searches expected")
	}
}

func TestInvalidateRecipe(t *testing.T) {
	mc := newMockCache()
	mc.removed["recipe:r1:*"] = 2
	mc.removed["search:*"] = 5
	svc := New(mc, &mockSearcher{}, nil, zap.NewNop())

	removed, err := svc.InvalidateRecipe(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 7 {
		t.Errorf("expected 7 removed, got %d", removed)
	}
	if len(mc.patterns) != 2 || mc.patterns[0] != "recipe:r1:*" || mc.patterns[1] != "search:*" {
		t.Errorf("unexpected invalidation patterns %v", mc.patterns)
	}

	if _, err := svc.InvalidateRecipe(context.Background(), ""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestInvalidatePattern(t *testing.T) {
	mc := newMockCache()
	mc.removed["search:*"] = 3
	svc := New(mc, &mockSearcher{}, nil, zap.NewNop())

	removed, err := svc.InvalidatePattern(context.Background(), "search:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	if _, err := svc.InvalidatePattern(context.Background(), ""); err == nil {
		t.Error("expected error for empty pattern")
	}
}

func TestFlush(t *testing.T) {
	mc := newMockCache()
	mc.flushTotal = 11
	svc := New(mc, &mockSearcher{}, nil, zap.NewNop())

	removed, err := svc.Flush(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 11 {
		t.Errorf("expected 11 removed, got %d", removed)
	}

	mc.flushErr = errors.New("connection refused")
	if _, err := svc.Flush(context.Background()); err == nil {
		t.Error("expected flush error to propagate")
	}
}

func TestListKeys_DefaultPattern(t *testing.T) {
	mc := newMockCache()
	mc.listedKeys = []string{"search:abc"}
	svc := New(mc, &mockSearcher{}, nil, zap.NewNop())

	keys, err := svc.ListKeys(context.Background(), "", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("unexpected keys %v", keys)
	}
	if mc.lastPattern != "*" {
		t.Errorf("empty pattern should default to *, got %q", mc.lastPattern)
	}
	if mc.lastLimit != 50 {
		t.Errorf("limit not forwarded, got %d", mc.lastLimit)
	}
}
