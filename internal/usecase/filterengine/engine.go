// Package filterengine applies structured filter constraints to candidate
// recipe sets in memory. Tag-based constraints fail open: a constraint that
// cannot be interpreted against the dimension registry is skipped and
// reported, never silently enforced or silently dropped.
package filterengine

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/domain/recipe"
	"github.com/khana-cloud/khoj/internal/domain/search/filter"
	"github.com/khana-cloud/khoj/internal/domain/tag"
)

// Skip reasons surfaced in filter.Application.
const (
	ReasonUnknownDimension  = "unknown dimension"
	ReasonInactiveDimension = "dimension inactive"
	ReasonTypeMismatch      = "data type mismatch"
	ReasonValueNotAllowed   = "value outside dimension vocabulary"
)

// Engine evaluates filter specifications against resolved recipes.
type Engine struct {
	logger *zap.Logger
}

// New creates a filter engine.
func New(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Apply returns the recipes satisfying every applicable constraint of spec,
// preserving input order, along with a report of which constraints were
// enforced and which were skipped. An empty spec passes everything through.
func (e *Engine) Apply(
	spec filter.Spec, recipes []recipe.Recipe, dims map[string]tag.Dimension,
) ([]recipe.Recipe, filter.Application) {
	if spec.IsEmpty() {
		return recipes, filter.Application{}
	}

	preds, app := e.compile(spec, dims)

	out := make([]recipe.Recipe, 0, len(recipes))
	for i := range recipes {
		if satisfiesAll(&recipes[i], preds) {
			out = append(out, recipes[i])
		}
	}
	return out, app
}

// predicate decides whether a single recipe passes one constraint.
type predicate func(r *recipe.Recipe) bool

// compile resolves the spec into predicates, skipping tag constraints that
// do not line up with the dimension registry. Constraint order is
// deterministic: sorted dimension names, then the structural constraints.
func (e *Engine) compile(
	spec filter.Spec, dims map[string]tag.Dimension,
) ([]predicate, filter.Application) {
	var preds []predicate
	var app filter.Application

	apply := func(name string, p predicate) {
		app.Applied = append(app.Applied, name)
		preds = append(preds, p)
	}
	skip := func(name, reason string) {
		e.logger.Warn("Skipping filter constraint",
			zap.String("constraint", name),
			zap.String("reason", reason),
		)
		app.Skipped = append(app.Skipped, filter.Skipped{Constraint: name, Reason: reason})
	}

	for _, name := range sortedKeys(spec.Booleans()) {
		want := spec.Booleans()[name]
		dim, reason := resolveDimension(name, dims, tag.Boolean)
		if reason != "" {
			skip(name, reason)
			continue
		}
		wantValue := strconv.FormatBool(want)
		dimName := dim.Name()
		// Absence of the tag fails the constraint: an untagged recipe is
		// never assumed to satisfy a dietary requirement.
		apply(name, func(r *recipe.Recipe) bool {
			return r.HasTagValue(dimName, wantValue)
		})
	}

	for _, name := range sortedKeys(spec.Selects()) {
		values := spec.Selects()[name]
		dim, reason := resolveDimension(name, dims, tag.SingleSelect, tag.MultiSelect)
		if reason != "" {
			skip(name, reason)
			continue
		}
		if r := checkVocabulary(dim, values); r != "" {
			skip(name, r)
			continue
		}
		dimName := dim.Name()
		vals := values
		apply(name, func(r *recipe.Recipe) bool {
			for _, v := range vals {
				if r.HasTagValue(dimName, v) {
					return true
				}
			}
			return false
		})
	}

	// Structural constraints never consult the registry. A zero stored value
	// means the attribute is unknown and passes numeric bounds.
	if maxMin := spec.MaxTotalMinutes(); maxMin != nil {
		bound := *maxMin
		apply("max_total_minutes", func(r *recipe.Recipe) bool {
			return r.TotalMinutes() == 0 || r.TotalMinutes() <= bound
		})
	}
	if minServ := spec.MinServings(); minServ != nil {
		bound := *minServ
		apply("min_servings", func(r *recipe.Recipe) bool {
			return r.Servings() == 0 || r.Servings() >= bound
		})
	}
	if maxServ := spec.MaxServings(); maxServ != nil {
		bound := *maxServ
		apply("max_servings", func(r *recipe.Recipe) bool {
			return r.Servings() == 0 || r.Servings() <= bound
		})
	}
	if creator := spec.Creator(); creator != "" {
		needle := strings.ToLower(creator)
		apply("creator", func(r *recipe.Recipe) bool {
			return strings.Contains(strings.ToLower(r.CreatorName()), needle)
		})
	}

	return preds, app
}

func satisfiesAll(r *recipe.Recipe, preds []predicate) bool {
	for _, p := range preds {
		if !p(r) {
			return false
		}
	}
	return true
}

// resolveDimension looks up a constraint's dimension and checks it is active
// and of an accepted data type. Returns a skip reason on failure.
func resolveDimension(
	name string, dims map[string]tag.Dimension, accepted ...tag.DataType,
) (tag.Dimension, string) {
	dim, ok := dims[name]
	if !ok {
		return tag.Dimension{}, ReasonUnknownDimension
	}
	if !dim.Active() {
		return tag.Dimension{}, ReasonInactiveDimension
	}
	for _, t := range accepted {
		if dim.DataType() == t {
			return dim, ""
		}
	}
	return tag.Dimension{}, ReasonTypeMismatch
}

// checkVocabulary rejects select constraints whose every value falls outside
// the dimension vocabulary. A partially valid list is kept as-is: the
// out-of-vocabulary values simply never match.
func checkVocabulary(dim tag.Dimension, values []string) string {
	for _, v := range values {
		if dim.AllowsValue(v) {
			return ""
		}
	}
	return ReasonValueNotAllowed
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
