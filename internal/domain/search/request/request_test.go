package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/khana-cloud/khoj/internal/domain"
	"github.com/khana-cloud/khoj/internal/domain/search/filter"
	"github.com/khana-cloud/khoj/internal/domain/search/mode"
)

func mustSpec(t *testing.T, p filter.Params) filter.Spec {
	t.Helper()
	s, err := filter.NewSpec(p)
	if err != nil {
		t.Fatalf("filter.NewSpec: %v", err)
	}
	return s
}

func TestNew_Defaults(t *testing.T) {
	r, err := New("paneer curry", "", filter.Spec{}, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Mode() != mode.Hybrid {
		t.Errorf("expected default mode hybrid, got %s", r.Mode())
	}
	if r.Limit() != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, r.Limit())
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		mode   mode.Mode
		limit  int
		offset int
	}{
		{"query too long", strings.Repeat("x", MaxQueryLength+1), mode.Hybrid, 10, 0},
		{"unknown mode", "q", "fuzzy", 10, 0},
		{"empty query hybrid", "", mode.Hybrid, 10, 0},
		{"empty query semantic", "", mode.Semantic, 10, 0},
		{"limit above max", "q", mode.Hybrid, MaxLimit + 1, 0},
		{"negative limit", "q", mode.Hybrid, -1, 0},
		{"negative offset", "q", mode.Hybrid, 10, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.query, tt.mode, filter.Spec{}, tt.limit, tt.offset)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestNew_LimitNotClamped(t *testing.T) {
	// An out-of-range limit is a contract violation, not something to fix up.
	if _, err := New("q", mode.Hybrid, filter.Spec{}, 101, 0); err == nil {
		t.Error("expected limit=101 to be rejected")
	}
}

func TestNew_EmptyQueryAttributeMode(t *testing.T) {
	spec := mustSpec(t, filter.Params{Booleans: map[string]bool{"vegan": true}})

	// Attribute mode with filters works without a query.
	if _, err := New("", mode.Attribute, spec, 10, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// Without filters it does not.
	if _, err := New("", mode.Attribute, filter.Spec{}, 10, 0); err == nil {
		t.Error("expected error for empty query and empty filters")
	}
}
