// Package dimension serves the tag dimension registry to callers that need
// to know which filter constraints exist.
package dimension

import (
	"context"
	"fmt"

	"github.com/khana-cloud/khoj/internal/domain/tag"
)

// Store reads dimension definitions.
type Store interface {
	ListDimensions(ctx context.Context) ([]tag.Dimension, error)
}

// Service reads the dimension registry.
type Service struct {
	store Store
}

// New creates a dimension service.
func New(store Store) *Service {
	return &Service{store: store}
}

// ListActive returns the active dimensions, sorted by name by the store.
func (s *Service) ListActive(ctx context.Context) ([]tag.Dimension, error) {
	dims, err := s.store.ListDimensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dimensions: %w", err)
	}

	active := make([]tag.Dimension, 0, len(dims))
	for _, d := range dims {
		if d.Active() {
			active = append(active, d)
		}
	}
	return active, nil
}
