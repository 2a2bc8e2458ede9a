package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/notify"
	"github.com/google/cel-go/cel"
)

// Rule declares the side effects of one job category reaching a terminal status.
type Rule struct {
	Name string

	// Category is the job category the rule applies to. Empty matches any.
	Category string

	// Statuses are the terminal statuses that fire the rule. Empty means
	// StatusFinished only.
	Statuses []Status

	// Condition is an optional CEL expression evaluated against the job.
	// Variables: status and category (string), result and params (map).
	//
	//	result.remaining == 0
	Condition string

	// Keys returns the dependent keys to invalidate.
	Keys func(d Descriptor) []cache.Key

	// Notify returns the message to surface. Empty text suppresses it.
	Notify func(d Descriptor) (notify.Outcome, string)

	// Then runs an arbitrary side effect, such as retrieving an exported file.
	Then func(ctx context.Context, d Descriptor) error
}

type compiledRule struct {
	Rule
	program cel.Program
}

func (r compiledRule) matches(d Descriptor) (bool, error) {
	if r.Category != "" && r.Category != d.Category {
		return false, nil
	}
	statuses := r.Statuses
	if len(statuses) == 0 {
		statuses = []Status{StatusFinished}
	}
	found := false
	for _, s := range statuses {
		if s == d.Status {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	if r.program == nil {
		return true, nil
	}

	out, _, err := r.program.Eval(map[string]any{
		"status":   string(d.Status),
		"category": d.Category,
		"result":   orEmpty(d.Result),
		"params":   orEmpty(d.Params),
	})
	if err != nil {
		return false, fmt.Errorf("jobs: evaluating rule %s: %w", r.Name, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("jobs: rule %s condition returned %T, want bool", r.Name, out.Value())
	}
	return ok, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// RuleSet is the compiled (category, terminal status) -> side effects table.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet validates rules and compiles their conditions once.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("status", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("result", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("jobs: creating CEL environment: %w", err)
	}

	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i)
		}
		for _, s := range r.Statuses {
			if !s.Terminal() {
				return nil, fmt.Errorf("jobs: rule %s: status %q is not terminal", r.Name, s)
			}
		}

		cr := compiledRule{Rule: r}
		if r.Condition != "" {
			ast, issues := env.Compile(r.Condition)
			if issues != nil && issues.Err() != nil {
				return nil, fmt.Errorf("jobs: rule %s: compiling condition: %w", r.Name, issues.Err())
			}
			if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
				return nil, fmt.Errorf("jobs: rule %s: condition must be boolean, got %s", r.Name, ast.OutputType())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("jobs: rule %s: creating program: %w", r.Name, err)
			}
			cr.program = prg
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

// MustRuleSet is NewRuleSet that panics on error, for static tables.
func MustRuleSet(rules ...Rule) *RuleSet {
	rs, err := NewRuleSet(rules...)
	if err != nil {
		panic(err)
	}
	return rs
}

// Match returns the rules fired by d, in declaration order. A condition that
// fails to evaluate is reported and skipped; the other rules still fire.
func (rs *RuleSet) Match(d Descriptor) ([]Rule, error) {
	if rs == nil || !d.Status.Terminal() {
		return nil, nil
	}
	var (
		out  []Rule
		errs []error
	)
	for _, r := range rs.rules {
		ok, err := r.matches(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			out = append(out, r.Rule)
		}
	}
	return out, errors.Join(errs...)
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}
