// Package service contains the application-layer implementations of the
// gateway's components (C5-C12), wiring the pure domain packages to each
// other and to outbound/inbound adapters.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	celadapter "github.com/relaygate/gateway/internal/adapter/outbound/cel"
	"github.com/relaygate/gateway/internal/domain/pattern"
	"github.com/relaygate/gateway/internal/domain/policy"

	gocel "github.com/google/cel-go/cel"
)

// PolicyConfig is the static input a PolicyService is built from: plain
// wildcard allow/deny pattern lists (spec.md §4.8) plus the additive
// CEL-conditional rules (SPEC_FULL.md §3.1).
type PolicyConfig struct {
	AllowPatterns    []string
	DenyPatterns     []string
	DenyByDefault    bool
	ConditionalRules []policy.ConditionalRule
}

// compiledConditionalRule pairs a compiled pattern+CEL program with its
// source rule, built once at construction time.
type compiledConditionalRule struct {
	rule    policy.ConditionalRule
	matcher pattern.Pattern
	program gocel.Program
}

// rules is the atomically-swappable compiled state a PolicyService
// evaluates against. A fresh PolicyService never mutates one in place;
// Reload builds a new rules and swaps the pointer.
type rules struct {
	allow            []pattern.Pattern
	deny             []pattern.Pattern
	denyByDefault    bool
	conditionalRules []compiledConditionalRule
}

// PolicyService implements the Policy Service (C8): isAllowed(external)
// precedence is (1) any denied pattern match -> false, including a
// matched-and-true ConditionalRule with Action Deny; (2) else if the
// allow-set is non-empty and none matches -> false; (3) else if the
// allow-set is empty, return !denyByDefault.
type PolicyService struct {
	current   atomic.Pointer[rules]
	evaluator *celadapter.Evaluator
	mu        sync.Mutex // serializes Reload
}

// NewPolicyService compiles cfg and returns a ready PolicyService.
func NewPolicyService(cfg PolicyConfig) (*PolicyService, error) {
	evaluator, err := celadapter.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("policy: constructing CEL evaluator: %w", err)
	}
	s := &PolicyService{evaluator: evaluator}
	if err := s.Reload(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload compiles cfg into a new rules snapshot and atomically replaces
// the active one. A compile failure leaves the previously active
// snapshot untouched.
func (s *PolicyService) Reload(cfg PolicyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	allow, err := pattern.CompileAll(cfg.AllowPatterns)
	if err != nil {
		return fmt.Errorf("policy: compiling allow patterns: %w", err)
	}
	deny, err := pattern.CompileAll(cfg.DenyPatterns)
	if err != nil {
		return fmt.Errorf("policy: compiling deny patterns: %w", err)
	}

	compiled := make([]compiledConditionalRule, 0, len(cfg.ConditionalRules))
	for _, r := range cfg.ConditionalRules {
		p, err := pattern.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("policy: compiling conditional rule %q pattern: %w", r.ID, err)
		}
		var prg gocel.Program
		if r.Condition != "" {
			if err := s.evaluator.ValidateExpression(r.Condition); err != nil {
				return fmt.Errorf("policy: conditional rule %q: %w", r.ID, err)
			}
			prg, err = s.evaluator.Compile(r.Condition)
			if err != nil {
				return fmt.Errorf("policy: conditional rule %q: %w", r.ID, err)
			}
		}
		compiled = append(compiled, compiledConditionalRule{rule: r, matcher: p, program: prg})
	}

	s.current.Store(&rules{
		allow:            allow,
		deny:             deny,
		denyByDefault:    cfg.DenyByDefault,
		conditionalRules: compiled,
	})
	return nil
}

// Evaluate returns the allow/deny Decision for evalCtx, never returning
// an error: a deny ConditionalRule whose Condition fails to evaluate
// denies the call rather than aborting the whole evaluation, since a
// rule that cannot be evaluated must never silently grant access.
func (s *PolicyService) Evaluate(ctx context.Context, evalCtx policy.EvaluationContext) policy.Decision {
	r := s.current.Load()
	name := evalCtx.ExternalToolName

	if pattern.MatchAny(r.deny, name) {
		return policy.Decision{Allowed: false, Reason: "matched deny pattern"}
	}

	for _, cr := range r.conditionalRules {
		if cr.rule.Action != policy.ActionDeny {
			continue
		}
		if !cr.matcher.Match(name) {
			continue
		}
		if cr.program == nil {
			return policy.Decision{Allowed: false, Reason: fmt.Sprintf("matched conditional rule %q", cr.rule.ID)}
		}
		matched, err := s.evaluator.Evaluate(cr.program, evalCtx)
		if err != nil {
			return policy.Decision{Allowed: false, Reason: fmt.Sprintf("conditional rule %q failed to evaluate: %v", cr.rule.ID, err)}
		}
		if matched {
			return policy.Decision{Allowed: false, Reason: fmt.Sprintf("matched conditional rule %q", cr.rule.ID)}
		}
	}

	if len(r.allow) > 0 {
		if !pattern.MatchAny(r.allow, name) {
			return policy.Decision{Allowed: false, Reason: "no allow pattern matched"}
		}
		return policy.Decision{Allowed: true, Reason: "matched allow pattern"}
	}

	if r.denyByDefault {
		return policy.Decision{Allowed: false, Reason: "denied by default"}
	}
	return policy.Decision{Allowed: true, Reason: "allowed by default"}
}

// IsAllowed is a convenience wrapper around Evaluate for callers (e.g.
// tools/list filtering) that only care about the boolean outcome, not
// the reason or any CEL context.
func (s *PolicyService) IsAllowed(externalToolName string) bool {
	return s.Evaluate(context.Background(), policy.EvaluationContext{ExternalToolName: externalToolName}).Allowed
}

// IsPolicyActive reports whether any pattern or denyByDefault is
// configured, per spec.md §4.8.
func (s *PolicyService) IsPolicyActive() bool {
	r := s.current.Load()
	return len(r.allow) > 0 || len(r.deny) > 0 || len(r.conditionalRules) > 0 || r.denyByDefault
}

// FilterAllowed applies IsAllowed pointwise over names, preserving
// order and dropping names that are denied.
func (s *PolicyService) FilterAllowed(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if s.IsAllowed(n) {
			out = append(out, n)
		}
	}
	return out
}
