package opts

import "time"

// defaultJSRuleTimeout bounds a single applicable rule run by goja. Schema
// files are user supplied, so a rule that never returns must not stall
// resolution.
const defaultJSRuleTimeout = time.Second

// jsRuleConfig collects what `engine: js` rules share: the compiled
// program cache, the custom functions and the per-run deadline.
type jsRuleConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
	timeout  time.Duration
}

// JSEvaluatorOption configures the evaluator behind `engine: js` rules.
type JSEvaluatorOption func(*jsRuleConfig)

// JSWithProgramCache shares compiled rule programs across runs.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(cfg *jsRuleConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctionRegistry exposes the custom rule functions as JS globals.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(cfg *jsRuleConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

// JSWithRuleTimeout interrupts a rule still running after d. Zero or less
// disables the deadline.
func JSWithRuleTimeout(d time.Duration) JSEvaluatorOption {
	return func(cfg *jsRuleConfig) {
		cfg.timeout = d
	}
}

func applyJSEvaluatorOptions(opts []JSEvaluatorOption) jsRuleConfig {
	cfg := jsRuleConfig{timeout: defaultJSRuleTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
