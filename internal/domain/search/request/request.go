// Package request defines the validated search query.
package request

import (
	"fmt"

	"github.com/khana-cloud/khoj/internal/domain"
	"github.com/khana-cloud/khoj/internal/domain/search/filter"
	"github.com/khana-cloud/khoj/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 1024
	DefaultLimit   = 20
	MaxLimit       = 100
)

// Request is a validated search query.
type Request struct {
	query      string
	searchMode mode.Mode
	filters    filter.Spec
	limit      int
	offset     int
}

// New validates and normalizes search parameters.
// Defaults: mode=hybrid, limit=20. Out-of-range limit/offset is rejected,
// not clamped, so the caller sees the contract violation.
func New(query string, m mode.Mode, filters filter.Spec, limit, offset int) (Request, error) {
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("%w: unknown search type %q", domain.ErrInvalidRequest, m)
	}
	if query == "" && m != mode.Attribute {
		return Request{}, fmt.Errorf("%w: query is required for %s search", domain.ErrInvalidRequest, m)
	}
	if query == "" && filters.IsEmpty() {
		return Request{}, fmt.Errorf("%w: query or filters required", domain.ErrInvalidRequest)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 || limit > MaxLimit {
		return Request{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidRequest, MaxLimit)
	}
	if offset < 0 {
		return Request{}, fmt.Errorf("%w: offset must be non-negative", domain.ErrInvalidRequest)
	}
	return Request{query: query, searchMode: m, filters: filters, limit: limit, offset: offset}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Mode returns the search strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Filters returns the filter specification.
func (r *Request) Filters() filter.Spec { return r.filters }

// Limit returns the page size.
func (r *Request) Limit() int { return r.limit }

// Offset returns the page offset.
func (r *Request) Offset() int { return r.offset }
