package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrRecipeNotFound signals a missing recipe.
	ErrRecipeNotFound = errors.New("recipe not found")
	// ErrInvalidRequest signals a malformed search request; surfaced to the caller, never retried.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrIndexUnavailable signals that the vector index cannot be reached.
	// Fails the affected strategy call only, never the whole process.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
