// Package ann is the approximate-nearest-neighbor index client. It answers
// vector similarity queries over the recipe FT index and owns the write
// path for recipe embeddings.
package ann

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/db"
	"github.com/khana-cloud/khoj/internal/domain"
)

// Key layout shared with repository/recipe.
const (
	recipeKeyPrefix = domain.KeyPrefix + "recipe:"
	indexName       = domain.KeyPrefix + "recipes:idx"
)

// Candidate is one ANN hit: an opaque identifier with its similarity score.
type Candidate struct {
	ID    string
	Score float64
}

// store is the consumer interface for ANN operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
}

// Client wraps KNN search with a circuit breaker and a bounded timeout.
// An open breaker or a timed-out call surfaces as domain.ErrIndexUnavailable
// so the orchestrator fails only the affected strategy.
type Client struct {
	store   store
	breaker *gobreaker.CircuitBreaker[*db.SearchResult]
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an ANN index client.
func New(s store, logger *zap.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    "ann-index",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ANN breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Client{
		store:   s,
		breaker: gobreaker.NewCircuitBreaker[*db.SearchResult](settings),
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// WithTimeout overrides the per-call timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Search returns up to limit candidates with similarity at or above threshold,
// ordered by score descending.
func (c *Client) Search(
	ctx context.Context, vector []float32, limit int, threshold float64,
) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sr, err := c.breaker.Execute(func() (*db.SearchResult, error) {
		return c.store.SearchKNN(ctx, &db.KNNQuery{
			IndexName: indexName,
			Vector:    vector,
			K:         limit,
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("ann breaker open: %w", domain.ErrIndexUnavailable)
		}
		return nil, fmt.Errorf("ann search: %w: %w", domain.ErrIndexUnavailable, err)
	}

	candidates := make([]Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		if entry.Score < threshold {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:    strings.TrimPrefix(entry.Key, recipeKeyPrefix),
			Score: entry.Score,
		})
	}
	return candidates, nil
}

// Upsert writes a recipe embedding. Owned by the normalization pipeline's
// write path; the retrieval strategies never call it.
func (c *Client) Upsert(ctx context.Context, id string, vector []float32) error {
	if id == "" {
		return fmt.Errorf("recipe id is required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("vector is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fields := map[string]string{"__vector": vectorToBytes(vector)}
	if err := c.store.HSet(ctx, recipeKeyPrefix+id, fields); err != nil {
		return fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return nil
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
