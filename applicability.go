package opts

import (
	"fmt"
	"log/slog"

	"github.com/jyscao/tail-risk/internal/errs"
)

// ruleVariables lists the identifiers an applicable rule of schema may use
// besides the rule built-ins.
func ruleVariables(schema *Schema) []string {
	return append(schema.Names(), "grouped", "approach", "lookback", "frequency")
}

// compileRules checks every applicable rule of schema before any value is
// resolved, so a misspelt identifier fails the run up front instead of
// surfacing only when the rule is first evaluated.
func (e *Engine) compileRules(schema *Schema) error {
	variables := ruleVariables(schema)
	for _, name := range schema.Names() {
		d, _ := schema.Lookup(name)
		if d == nil || d.Applicable == "" {
			continue
		}
		evaluator, _, err := e.evaluatorFor(d.Engine)
		if err != nil {
			return &errs.Error{Kind: errs.ErrSchema, Option: d.Name, Err: err}
		}
		if _, err := evaluator.Compile(d.Applicable, WithRuleVariables(variables...)); err != nil {
			return &errs.Error{Kind: errs.ErrSchema, Option: d.Name, Msg: "invalid applicable rule", Err: err}
		}
	}
	return nil
}

// applyApplicability evaluates every option's applicable rule against the
// values resolved so far and hides the options whose rule is false. When
// fatal is false the values may be incomplete, so evaluation failures only
// leave visibility untouched.
func (e *Engine) applyApplicability(rc *ResolutionContext, fatal bool) error {
	if rc.baseHidden == nil {
		rc.baseHidden = make(map[string]bool, len(rc.options))
		for name, d := range rc.options {
			rc.baseHidden[name] = d.Hidden
		}
	}

	env := rc.ruleValues()
	now := e.cfg.now()
	for _, d := range rc.Descriptors() {
		if d.Applicable == "" {
			continue
		}
		applicable, err := e.evaluateApplicable(RuleContext{
			Values: env,
			Option: d.Name,
			Now:    &now,
			Metadata: map[string]any{
				"run_id": rc.RunID,
				"schema": rc.schema.Name(),
			},
		}, d)
		if err != nil {
			if fatal {
				return errs.Attach(err, d.Name)
			}
			rc.logger.Debug("applicability deferred", slog.String("option", d.Name), slog.String("error", err.Error()))
			continue
		}
		d.Hidden = rc.baseHidden[d.Name] || !applicable
	}
	return nil
}

func (e *Engine) evaluateApplicable(ctx RuleContext, d *Descriptor) (bool, error) {
	out, err := e.EvaluateRule(ctx, d.Engine, d.Applicable)
	if err != nil {
		return false, err
	}
	applicable, ok := out.(bool)
	if !ok {
		engine := d.Engine
		if engine == "" {
			engine = EngineExpr
		}
		return false, wrapEvaluationError(engine, d.Applicable, d.Name,
			fmt.Errorf("applicable rule must yield a bool, got %T", out))
	}
	return applicable, nil
}
