package ann

import (
	"context"

	"github.com/khana-cloud/khoj/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	result    *db.SearchResult
	searchErr error
	hsetErr   error
	searches  int
	lastKey   string
	lastHSet  map[string]string
}

func (m *mockStore) SearchKNN(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
	m.searches++
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.result, nil
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.lastKey = key
	m.lastHSet = fields
	return m.hsetErr
}
