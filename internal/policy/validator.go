package policy

import (
	"context"
	_ "embed"
	"fmt"
	"slices"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
)

//go:embed staticsite.rego
var policyContent string

type Validator struct{}

type ValidationResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

// NewValidator compiles the embedded policy once so syntax errors surface at startup.
func NewValidator() (*Validator, error) {
	_, err := rego.New(
		rego.Query("data.staticsite.allow"),
		rego.Module("staticsite.rego", policyContent),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}

	return &Validator{}, nil
}

// ValidateTemplate evaluates the site policy over a rendered template document
// for the given deployment region.
func (v *Validator) ValidateTemplate(ctx context.Context, template map[string]any, region string) (*ValidationResult, error) {
	input := map[string]any{
		"Resources": template["Resources"],
	}

	data := map[string]any{
		"region": region,
	}

	allowed, err := v.evalBool(ctx, "data.staticsite.allow", input, data)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Allowed: allowed,
	}

	if !allowed {
		violations, err := v.getViolations(ctx, input, data)
		if err != nil {
			return nil, fmt.Errorf("failed to get violations: %w", err)
		}
		result.Violations = violations
	}

	return result, nil
}

func (v *Validator) evalBool(ctx context.Context, q string, input, data map[string]any) (bool, error) {
	query, err := v.prepare(ctx, q, data)
	if err != nil {
		return false, err
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 {
		return false, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy evaluation returned non-boolean result")
	}
	return allowed, nil
}

func (v *Validator) prepare(ctx context.Context, q string, data map[string]any) (rego.PreparedEvalQuery, error) {
	query, err := rego.New(
		rego.Query(q),
		rego.Module("staticsite.rego", policyContent),
		rego.Store(inmem.NewFromObject(data)),
	).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to prepare policy query with data: %w", err)
	}
	return query, nil
}

func (v *Validator) getViolations(ctx context.Context, input, data map[string]any) ([]string, error) {
	query, err := v.prepare(ctx, "data.staticsite.violations", data)
	if err != nil {
		return nil, err
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate violations: %w", err)
	}

	if len(results) == 0 || results[0].Expressions[0].Value == nil {
		return []string{"unknown policy violation"}, nil
	}

	var violations []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []any:
		for _, violation := range v {
			if str, ok := violation.(string); ok {
				violations = append(violations, str)
			}
		}
	case map[string]any:
		// sets can come back keyed by member
		for violation := range v {
			violations = append(violations, violation)
		}
	}

	if len(violations) == 0 {
		return []string{"policy validation failed but no specific violations found"}, nil
	}

	slices.Sort(violations)
	return violations, nil
}
