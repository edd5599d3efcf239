package khoj

import (
	"context"

	"go.uber.org/zap"
)

// Embedder is the pluggable text vectorizer for the embedded engine.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type clientConfig struct {
	addrs    []string
	password string

	embedder         Embedder
	openaiAPIKey     string
	openaiBaseURL    string
	openaiModel      string
	vectorDimensions int

	hnswM           int
	hnswEFConstruct int

	scoreThreshold float64
	cacheDisabled  bool
	logger         *zap.Logger
}

// Option configures the embedded engine client.
type Option func(*clientConfig)

// WithRedis sets the Redis addresses.
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) { c.addrs = addrs }
}

// WithPassword sets the database password.
func WithPassword(password string) Option {
	return func(c *clientConfig) { c.password = password }
}

// WithEmbedder plugs a custom vectorizer. Overrides WithOpenAIEmbedder.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithOpenAIEmbedder configures an OpenAI-compatible embedding provider.
// baseURL may be empty for the default endpoint.
func WithOpenAIEmbedder(apiKey, baseURL, model string) Option {
	return func(c *clientConfig) {
		c.openaiAPIKey = apiKey
		c.openaiBaseURL = baseURL
		c.openaiModel = model
	}
}

// WithVectorDimensions sets the embedding dimensionality.
func WithVectorDimensions(dim int) Option {
	return func(c *clientConfig) { c.vectorDimensions = dim }
}

// WithHNSW overrides HNSW index construction parameters.
func WithHNSW(m, efConstruct int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	}
}

// WithScoreThreshold overrides the minimum ANN similarity.
func WithScoreThreshold(threshold float64) Option {
	return func(c *clientConfig) { c.scoreThreshold = threshold }
}

// WithoutCache disables query-result caching.
func WithoutCache() Option {
	return func(c *clientConfig) { c.cacheDisabled = true }
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}
