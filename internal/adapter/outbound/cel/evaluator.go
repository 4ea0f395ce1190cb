// Package cel adapts github.com/google/cel-go to evaluate
// policy.ConditionalRule.Condition expressions against a
// policy.EvaluationContext. Compiled programs are cached by the caller
// (the Policy Service); this package only owns environment
// construction, compilation, and evaluation.
package cel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/relaygate/gateway/internal/domain/policy"
)

const (
	maxExpressionLength = 1024
	maxNestingDepth      = 50
	maxCostBudget        = 100_000
	interruptCheckFreq   = 100
	evalTimeout          = 50 * time.Millisecond
)

// ErrInvalidExpression is wrapped by every validation/compile failure.
var ErrInvalidExpression = errors.New("cel: invalid expression")

// Evaluator compiles and runs CEL boolean expressions over
// policy.EvaluationContext.
type Evaluator struct {
	env *cel.Env
}

// NewPolicyEnvironment builds the CEL environment exposing the variables
// a ConditionalRule.Condition may reference: tool_name, tenant_id,
// user_id, and arguments (the raw EvaluationContext.Arguments map).
func NewPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("tool_name", cel.StringType),
		cel.Variable("tenant_id", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("arguments", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewEvaluator constructs an Evaluator, building its own environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewPolicyEnvironment()
	if err != nil {
		return nil, fmt.Errorf("cel: building environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks expr, returning a program bounded by
// CostLimit and InterruptCheckFrequency so a pathological expression
// cannot stall policy evaluation.
func (e *Evaluator) Compile(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpression, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidExpression, ast.OutputType())
	}
	prg, err := e.env.Program(ast,
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpression, err)
	}
	return prg, nil
}

// ValidateExpression checks length, bracket nesting, and compiles expr,
// without retaining the resulting program. Used when a ConditionalRule
// is first registered so bad input fails fast rather than at evaluation
// time.
func (e *Evaluator) ValidateExpression(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("%w: expression is empty", ErrInvalidExpression)
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("%w: expression exceeds %d characters", ErrInvalidExpression, maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	_, err := e.Compile(expr)
	return err
}

// validateNesting rejects expressions whose bracket depth exceeds
// maxNestingDepth, guarding against pathological recursive-descent
// compile times.
func validateNesting(expr string) error {
	depth := 0
	for _, r := range expr {
		switch r {
		case '(', '[', '{':
			depth++
			if depth > maxNestingDepth {
				return fmt.Errorf("%w: nesting depth exceeds %d", ErrInvalidExpression, maxNestingDepth)
			}
		case ')', ']', '}':
			depth--
		}
	}
	return nil
}

// Evaluate runs prg against evalCtx with a bounded deadline so a
// misbehaving expression can never hang a tool dispatch.
func (e *Evaluator) Evaluate(prg cel.Program, evalCtx policy.EvaluationContext) (bool, error) {
	args := evalCtx.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	activation := map[string]interface{}{
		"tool_name": evalCtx.ExternalToolName,
		"tenant_id": evalCtx.TenantID,
		"user_id":   evalCtx.UserID,
		"arguments": args,
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("cel: evaluation failed: %w", err)
	}
	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel: expression did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}
