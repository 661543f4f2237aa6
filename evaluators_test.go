package opts

import (
	"fmt"
	"testing"
	"time"
)

var evaluatorFactories = []struct {
	name string
	new  func(cache ProgramCache, registry *FunctionRegistry) Evaluator
}{
	{
		name: "expr",
		new: func(cache ProgramCache, registry *FunctionRegistry) Evaluator {
			opts := []ExprEvaluatorOption{}
			if cache != nil {
				opts = append(opts, ExprWithProgramCache(cache))
			}
			if registry != nil {
				opts = append(opts, ExprWithFunctionRegistry(registry))
			}
			return NewExprEvaluator(opts...)
		},
	},
	{
		name: "cel",
		new: func(cache ProgramCache, registry *FunctionRegistry) Evaluator {
			opts := []CELEvaluatorOption{}
			if cache != nil {
				opts = append(opts, CELWithProgramCache(cache))
			}
			if registry != nil {
				opts = append(opts, CELWithFunctionRegistry(registry))
			}
			return NewCELEvaluator(opts...)
		},
	},
	{
		name: "js",
		new: func(cache ProgramCache, registry *FunctionRegistry) Evaluator {
			opts := []JSEvaluatorOption{}
			if cache != nil {
				opts = append(opts, JSWithProgramCache(cache))
			}
			if registry != nil {
				opts = append(opts, JSWithFunctionRegistry(registry))
			}
			return NewJSEvaluator(opts...)
		},
	},
}

// groupRuleValues mirrors the environment built for a group-mode run with a
// rolling approach.
func groupRuleValues() map[string]any {
	return map[string]any{
		"analyze_group": true,
		"grouped":       true,
		"approach":      "rolling",
		"lookback":      int64(252),
		"frequency":     int64(1),
		"approach_args": map[string]any{
			"approach":  "rolling",
			"lookback":  int64(252),
			"frequency": int64(1),
		},
		"standardize": false,
		"tickers":     []any{"AAA", "BBB"},
	}
}

func TestApplicabilityRulesAcrossEvaluators(t *testing.T) {
	cases := []struct {
		name   string
		rule   string
		expect bool
	}{
		{name: "toggle", rule: "analyze_group", expect: true},
		{name: "conjunction", rule: `grouped && approach == "rolling"`, expect: true},
		{name: "nested", rule: `approach_args.approach == "static"`, expect: false},
		{name: "numeric", rule: "lookback > 100", expect: true},
		{name: "negation", rule: "!standardize", expect: true},
	}

	for _, factory := range evaluatorFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			evaluator := factory.new(nil, nil)
			if evaluator == nil {
				t.Skipf("%s evaluator not built in", factory.name)
			}
			for _, tc := range cases {
				tc := tc
				t.Run(tc.name, func(t *testing.T) {
					out, err := evaluator.Evaluate(RuleContext{Values: groupRuleValues(), Option: "norm_before"}, tc.rule)
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}
					value, ok := out.(bool)
					if !ok {
						t.Fatalf("expected bool, got %T", out)
					}
					if value != tc.expect {
						t.Fatalf("rule %q: expected %v, got %v", tc.rule, tc.expect, value)
					}
				})
			}
		})
	}
}

func TestEvaluatorProgramCache(t *testing.T) {
	for _, factory := range evaluatorFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			cache := &fakeProgramCache{}
			evaluator := factory.new(cache, nil)
			if evaluator == nil {
				t.Skipf("%s evaluator not built in", factory.name)
			}
			for i := 0; i < 3; i++ {
				if _, err := evaluator.Evaluate(RuleContext{Values: groupRuleValues()}, "grouped"); err != nil {
					t.Fatalf("unexpected error on iteration %d: %v", i, err)
				}
			}
			if cache.misses != 1 {
				t.Fatalf("cache misses mismatch, expected 1, got %d", cache.misses)
			}
			if cache.hits != 2 {
				t.Fatalf("cache hits mismatch, expected 2, got %d", cache.hits)
			}
		})
	}
}

func TestCustomFunctionsAcrossEvaluators(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("longWindow", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("longWindow expects 1 arg")
		}
		switch n := args[0].(type) {
		case int64:
			return n >= 252, nil
		case float64:
			return n >= 252, nil
		default:
			return false, nil
		}
	}); err != nil {
		t.Fatalf("register longWindow: %v", err)
	}

	for _, factory := range evaluatorFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			evaluator := factory.new(nil, registry)
			if evaluator == nil {
				t.Skipf("%s evaluator not built in", factory.name)
			}
			out, err := evaluator.Evaluate(RuleContext{Values: groupRuleValues()}, "longWindow(lookback)")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out != true {
				t.Fatalf("expected true, got %v", out)
			}
		})
	}
}

func TestFunctionRegistryKeepsDeclaredNames(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("longWindow", func(args ...any) (any, error) { return true, nil }); err != nil {
		t.Fatalf("register longWindow: %v", err)
	}
	if err := registry.Register("LONGWINDOW", func(args ...any) (any, error) { return false, nil }); err == nil {
		t.Fatalf("expected case-folded duplicate to be rejected")
	}

	names := registry.Names()
	if len(names) != 1 || names[0] != "longWindow" {
		t.Fatalf("expected declared name, got %v", names)
	}
	if out, err := registry.Call("LongWindow"); err != nil || out != true {
		t.Fatalf("expected case-insensitive call, got %v, %v", out, err)
	}
	if clone := registry.Clone(); clone.Names()[0] != "longWindow" {
		t.Fatalf("expected clone to keep declared name, got %v", clone.Names())
	}
}

func TestRuleContextDefaultsNow(t *testing.T) {
	capture := &capturingEvaluator{}
	engine := NewEngine(WithEvaluator(capture))

	if _, err := engine.EvaluateRule(RuleContext{Option: "ks_iter"}, "", "run_ks_test"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(capture.contexts) != 1 {
		t.Fatalf("expected one evaluation, got %d", len(capture.contexts))
	}
	if capture.contexts[0].Now == nil {
		t.Fatalf("expected evaluation context to carry a timestamp")
	}
	if capture.contexts[0].Values == nil {
		t.Fatalf("expected evaluation context to carry a values map")
	}

	capture.reset()
	fixed := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := engine.EvaluateRule(RuleContext{Now: &fixed}, "", "run_ks_test"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := capture.contexts[0].Now; got == nil || !got.Equal(fixed) {
		t.Fatalf("expected explicit timestamp to be kept, got %v", got)
	}
}

func TestEvaluateRuleRejectsUnknownEngine(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.EvaluateRule(RuleContext{}, "lua", "true"); err == nil {
		t.Fatalf("expected unknown engine to fail")
	}
	if _, err := engine.EvaluateRule(RuleContext{}, "", ""); err == nil {
		t.Fatalf("expected empty expression to fail")
	}
}

type fakeProgramCache struct {
	store  map[string]any
	hits   int
	misses int
}

func (c *fakeProgramCache) Get(key string) (any, bool) {
	if c.store == nil {
		c.store = make(map[string]any)
	}
	value, ok := c.store[key]
	if ok {
		c.hits++
		return value, true
	}
	c.misses++
	return nil, false
}

func (c *fakeProgramCache) Set(key string, value any) {
	if c.store == nil {
		c.store = make(map[string]any)
	}
	c.store[key] = value
}

type capturingEvaluator struct {
	contexts []RuleContext
}

func (c *capturingEvaluator) Evaluate(ctx RuleContext, _ string) (any, error) {
	c.contexts = append(c.contexts, ctx)
	return true, nil
}

func (c *capturingEvaluator) Compile(expr string, _ ...CompileOption) (CompiledRule, error) {
	return capturedRule{c, expr}, nil
}

type capturedRule struct {
	evaluator *capturingEvaluator
	expr      string
}

func (r capturedRule) Evaluate(ctx RuleContext) (any, error) {
	return r.evaluator.Evaluate(ctx, r.expr)
}

func (c *capturingEvaluator) reset() {
	c.contexts = c.contexts[:0]
}

func TestCompiledRulesWithDeclaredVariables(t *testing.T) {
	variables := make([]string, 0, len(groupRuleValues()))
	for name := range groupRuleValues() {
		variables = append(variables, name)
	}

	for _, factory := range evaluatorFactories {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			evaluator := factory.new(nil, nil)
			if evaluator == nil {
				t.Skipf("%s evaluator not built in", factory.name)
			}
			rule, err := evaluator.Compile(`grouped && option == "norm_before"`, WithRuleVariables(variables...))
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			out, err := rule.Evaluate(RuleContext{Values: groupRuleValues(), Option: "norm_before"})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if out != true {
				t.Fatalf("expected true, got %v", out)
			}

			_, err = evaluator.Compile("groupd", WithRuleVariables(variables...))
			switch factory.name {
			case "js":
				if err != nil {
					t.Fatalf("js only checks syntax, got %v", err)
				}
			default:
				if err == nil {
					t.Fatalf("expected undeclared identifier to be rejected")
				}
			}
		})
	}
}
