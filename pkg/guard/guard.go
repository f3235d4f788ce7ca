// Package guard evaluates an optional Rego admission policy against import
// specs before any device call is made. Operators use it to fence off
// partitions, forbid forced overwrites, or require encodings.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/bigipctl/bigipctl/pkg/domain"
)

// DefaultQuery is the decision path evaluated against the guard module.
// The document is expected to be a set of human-readable denial reasons;
// an empty set admits the spec.
const DefaultQuery = "data.bigipctl.deny"

// Options control guard construction.
type Options struct {
	// Module is the Rego source of the admission policy.
	Module string
	// Query overrides DefaultQuery.
	Query string
}

// Guard holds a prepared admission query.
type Guard struct {
	prepared rego.PreparedEvalQuery
}

// New compiles the Rego module and prepares the admission query, surfacing
// syntax errors early.
func New(ctx context.Context, opts Options) (*Guard, error) {
	if strings.TrimSpace(opts.Module) == "" {
		return nil, errors.New("guard requires a rego module")
	}
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		query = DefaultQuery
	}

	module, err := ast.ParseModuleWithOpts("guard.rego", opts.Module, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return nil, fmt.Errorf("parse guard module: %w", err)
	}

	prepared, err := rego.New(
		rego.Query(query),
		rego.ParsedModule(module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile guard module: %w", err)
	}

	return &Guard{prepared: prepared}, nil
}

// Admit evaluates the guard against the spec. A non-empty denial set is
// returned as a GuardError carrying every reason.
func (g *Guard) Admit(ctx context.Context, spec domain.PolicySpec) error {
	results, err := g.prepared.Eval(ctx, rego.EvalInput(specInput(spec)))
	if err != nil {
		return fmt.Errorf("evaluate guard: %w", err)
	}

	var violations []string
	for _, result := range results {
		for _, expr := range result.Expressions {
			values, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, value := range values {
				violations = append(violations, fmt.Sprintf("%v", value))
			}
		}
	}

	if len(violations) > 0 {
		return &domain.GuardError{Violations: violations}
	}
	return nil
}

// specInput shapes the spec for rego evaluation. Inline content is reduced
// to a presence flag to keep policy payloads out of the evaluator.
func specInput(spec domain.PolicySpec) map[string]any {
	input := map[string]any{
		"name":          spec.Name,
		"partition":     spec.Partition,
		"policy_type":   string(spec.PolicyType),
		"parent_policy": spec.ParentPolicy,
		"encoding":      spec.Encoding,
		"force":         spec.Force,
		"source":        spec.Source,
		"inline":        spec.Inline != "",
	}
	if spec.RetainInheritanceSettings != nil {
		input["retain_inheritance_settings"] = *spec.RetainInheritanceSettings
	}
	if spec.Base64 != nil {
		input["base64"] = *spec.Base64
	}
	return input
}
