// Package embedding wires the embedding provider chain and its lifecycle.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/khana-cloud/khoj/internal/domain"
)

// Factory builds the fully decorated embedder. It is invoked at most once.
type Factory func() (domain.Embedder, error)

// Provider defers embedder construction until the first embedding request.
// Construction may dial external services, so it happens lazily, exactly
// once, and a construction error is returned to every caller rather than
// retried per request.
type Provider struct {
	get func() (domain.Embedder, error)
}

// NewProvider creates a lazy embedding provider around factory.
func NewProvider(factory Factory) *Provider {
	return &Provider{get: sync.OnceValues(factory)}
}

// Embed implements domain.Embedder.
func (p *Provider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	embedder, err := p.get()
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embedder init: %w", err)
	}
	return embedder.Embed(ctx, text)
}

// HealthCheck forwards to the underlying embedder when it supports checks.
// Initializes the embedder if it has not been built yet.
func (p *Provider) HealthCheck(ctx context.Context) error {
	embedder, err := p.get()
	if err != nil {
		return fmt.Errorf("embedder init: %w", err)
	}
	if hc, ok := embedder.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
