// Package invariant evaluates FHIRPath invariants against resources.
package invariant

import (
	"fmt"

	"github.com/gofhir/fhirpath"

	"github.com/gofhir/fhirschema/cache"
	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/schema"
)

// Evaluator checks schema invariants. Compiled expressions are shared
// through an LRU cache, so one Evaluator should serve many resources.
type Evaluator struct {
	exprs *cache.LRU[string, *fhirpath.Expression]
}

// New creates an Evaluator caching up to size compiled expressions.
func New(size int) *Evaluator {
	return &Evaluator{exprs: cache.New[string, *fhirpath.Expression](size)}
}

// Check evaluates invariants against the JSON form of a resource and
// returns one issue per failed, uncompilable or unevaluable invariant.
// path is the expression reported on the issues (the resource type, or
// "Patient.contained[0]" for a contained resource).
func (e *Evaluator) Check(data []byte, invariants []schema.Invariant, path string) []issue.Issue {
	var out []issue.Issue
	for _, inv := range invariants {
		if inv.Expression == "" {
			continue
		}

		expr, err := e.compile(inv.Expression)
		if err != nil {
			out = append(out, issue.New(issue.DiagConstraintCompileError, map[string]any{
				"key":   inv.Key,
				"error": err.Error(),
			}, path))
			continue
		}

		result, err := expr.Evaluate(data)
		if err != nil {
			out = append(out, issue.New(issue.DiagConstraintEvalError, map[string]any{
				"key":   inv.Key,
				"error": err.Error(),
			}, path))
			continue
		}

		if passed(result) {
			continue
		}
		is := issue.New(issue.DiagConstraintFailed, map[string]any{
			"key":   inv.Key,
			"human": inv.Human,
		}, path)
		if inv.Severity != "error" {
			is.Severity = issue.SeverityWarning
		}
		out = append(out, is)
	}
	return out
}

// Compile compiles expr through the cache. It is exposed so schemas can be
// checked for invalid expressions up front.
func (e *Evaluator) Compile(expr string) error {
	_, err := e.compile(expr)
	return err
}

func (e *Evaluator) compile(expr string) (*fhirpath.Expression, error) {
	return e.exprs.GetOrCompute(expr, func() (*fhirpath.Expression, error) {
		compiled, err := fhirpath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", expr, err)
		}
		return compiled, nil
	})
}

// Stats reports the expression cache counters.
func (e *Evaluator) Stats() cache.Stats {
	return e.exprs.Stats()
}

// passed interprets an invariant result: an empty collection means the
// rule does not apply, and a non-boolean result counts as satisfied.
func passed(result fhirpath.Collection) bool {
	if result.Empty() {
		return true
	}
	b, err := result.ToBoolean()
	if err != nil {
		return true
	}
	return b
}
