package opts

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoEvaluator = errors.New("opts: evaluator not configured")

// Rule engines an option's applicable expression may name.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

func knownEngine(name string) bool {
	switch name {
	case "", EngineExpr, EngineCEL, EngineJS:
		return true
	default:
		return false
	}
}

func buildEvaluators(cfg engineConfig) map[string]Evaluator {
	evaluators := map[string]Evaluator{
		EngineExpr: NewExprEvaluator(
			ExprWithProgramCache(partitionCache(cfg.programCache, EngineExpr)),
			ExprWithFunctionRegistry(cfg.functions),
		),
		EngineCEL: NewCELEvaluator(
			CELWithProgramCache(partitionCache(cfg.programCache, EngineCEL)),
			CELWithFunctionRegistry(cfg.functions),
		),
	}
	js := NewJSEvaluator(
		JSWithProgramCache(partitionCache(cfg.programCache, EngineJS)),
		JSWithFunctionRegistry(cfg.functions),
	)
	if js != nil {
		evaluators[EngineJS] = js
	}
	return evaluators
}

func (e *Engine) evaluatorFor(engine string) (Evaluator, string, error) {
	if e.cfg.evaluator != nil {
		return e.cfg.evaluator, evaluatorEngineName(e.cfg.evaluator), nil
	}
	if engine == "" {
		engine = EngineExpr
	}
	evaluator, ok := e.evaluators[engine]
	if !ok || evaluator == nil {
		return nil, engine, fmt.Errorf("%w: %s", ErrNoEvaluator, engine)
	}
	return evaluator, engine, nil
}

// EvaluateRule runs expr for option against values using the named engine
// and logs the attempt.
func (e *Engine) EvaluateRule(ctx RuleContext, engine, expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	evaluator, name, err := e.evaluatorFor(engine)
	if err != nil {
		return nil, err
	}
	ctx = ctx.withDefaultNow().withDefaultMaps()
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(name, expr, ctx.label(), evalErr)
	e.cfg.evalLogger.LogEvaluation(EvaluatorLogEvent{
		Engine:   name,
		Expr:     expr,
		Option:   ctx.label(),
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*opts.exprEvaluator":
		return EngineExpr
	case "*opts.celEvaluator":
		return EngineCEL
	case "*opts.jsEvaluator":
		return EngineJS
	default:
		return "custom"
	}
}
