// Package filter defines the structured search filter specification.
package filter

import "fmt"

// MaxConstraints is the maximum number of constraints a spec may carry.
const MaxConstraints = 32

// Params is the raw constraint input used to build a Spec.
// All constraints are conjunctive; values inside one select list are disjunctive.
type Params struct {
	Booleans        map[string]bool
	Selects         map[string][]string
	MaxTotalMinutes *int
	MinServings     *int
	MaxServings     *int
	Creator         string
}

// Spec is a validated search filter specification.
type Spec struct {
	booleans        map[string]bool
	selects         map[string][]string
	maxTotalMinutes *int
	minServings     *int
	maxServings     *int
	creator         string
}

// NewSpec validates and creates a filter specification.
func NewSpec(p Params) (Spec, error) {
	if n := len(p.Booleans) + len(p.Selects); n > MaxConstraints {
		return Spec{}, fmt.Errorf("too many filter constraints (%d, max %d)", n, MaxConstraints)
	}
	for name, values := range p.Selects {
		if name == "" {
			return Spec{}, fmt.Errorf("select constraint with empty dimension name")
		}
		if len(values) == 0 {
			return Spec{}, fmt.Errorf("select constraint %q has no values", name)
		}
		for _, v := range values {
			if v == "" {
				return Spec{}, fmt.Errorf("select constraint %q has an empty value", name)
			}
		}
	}
	for name := range p.Booleans {
		if name == "" {
			return Spec{}, fmt.Errorf("boolean constraint with empty dimension name")
		}
	}
	if p.MaxTotalMinutes != nil && *p.MaxTotalMinutes <= 0 {
		return Spec{}, fmt.Errorf("max_total_minutes must be positive")
	}
	if p.MinServings != nil && *p.MinServings <= 0 {
		return Spec{}, fmt.Errorf("min_servings must be positive")
	}
	if p.MaxServings != nil && *p.MaxServings <= 0 {
		return Spec{}, fmt.Errorf("max_servings must be positive")
	}
	if p.MinServings != nil && p.MaxServings != nil && *p.MinServings > *p.MaxServings {
		return Spec{}, fmt.Errorf("min_servings exceeds max_servings")
	}
	return Spec{
		booleans:        p.Booleans,
		selects:         p.Selects,
		maxTotalMinutes: p.MaxTotalMinutes,
		minServings:     p.MinServings,
		maxServings:     p.MaxServings,
		creator:         p.Creator,
	}, nil
}

// Booleans returns the boolean dimension constraints.
func (s Spec) Booleans() map[string]bool { return s.booleans }

// Selects returns the multi-select constraints.
func (s Spec) Selects() map[string][]string { return s.selects }

// MaxTotalMinutes returns the upper bound on total time (nil = unconstrained).
func (s Spec) MaxTotalMinutes() *int { return s.maxTotalMinutes }

// MinServings returns the lower bound on servings (nil = unconstrained).
func (s Spec) MinServings() *int { return s.minServings }

// MaxServings returns the upper bound on servings (nil = unconstrained).
func (s Spec) MaxServings() *int { return s.maxServings }

// Creator returns the creator-name substring constraint ("" = unconstrained).
func (s Spec) Creator() string { return s.creator }

// IsEmpty reports whether the spec has no constraints.
func (s Spec) IsEmpty() bool {
	return len(s.booleans) == 0 && len(s.selects) == 0 &&
		s.maxTotalMinutes == nil && s.minServings == nil && s.maxServings == nil &&
		s.creator == ""
}

// Application reports which constraints were enforced and which were skipped.
// Skipped constraints make the fail-open behavior observable instead of log-only.
type Application struct {
	Applied []string  `json:"applied"`
	Skipped []Skipped `json:"skipped,omitempty"`
}

// Skipped is a constraint that was ignored, with the reason.
type Skipped struct {
	Constraint string `json:"constraint"`
	Reason     string `json:"reason"`
}
