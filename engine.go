package opts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jyscao/tail-risk/dataset"
	"github.com/jyscao/tail-risk/grammar"
	"github.com/jyscao/tail-risk/internal/errs"
	"github.com/jyscao/tail-risk/numeric"
	"github.com/jyscao/tail-risk/pkg/activity"
)

// Engine resolves option inputs against a Schema. An Engine holds no
// per-run state and may be shared; each Resolve call owns its own
// ResolutionContext.
type Engine struct {
	cfg        engineConfig
	evaluators map[string]Evaluator
	emitter    *activity.Emitter
}

// NewEngine constructs an Engine configured by opts.
func NewEngine(opts ...Option) *Engine {
	cfg := applyOptions(opts)
	return &Engine{
		cfg:        cfg,
		evaluators: buildEvaluators(cfg),
		emitter:    cfg.activity.emitter(),
	}
}

// Resolve runs the full resolution pass: eager options, ordinary options,
// dataset-derived defaults, the post-resolution pipeline and the final
// applicability check. It either returns a complete Config or an error.
func (e *Engine) Resolve(ctx context.Context, schema *Schema, inputs Inputs, table dataset.Table) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	rc, err := e.newRun(ctx, schema, inputs, table)
	if err != nil {
		e.cfg.metrics.observeRun(time.Since(start), err)
		return nil, err
	}

	cfg, err := e.resolve(rc)
	e.cfg.metrics.observeRun(time.Since(start), err)
	e.report(rc, err)
	if err != nil {
		rc.logger.Debug("resolution failed", slog.String("kind", KindName(err)), slog.String("error", err.Error()))
		return nil, err
	}
	rc.logger.Debug("resolution complete", slog.Int("warnings", len(cfg.Warnings)))
	return cfg, nil
}

// Describe runs only the eager phase and returns the working descriptors, so
// help output reflects the selected mode.
func (e *Engine) Describe(ctx context.Context, schema *Schema, inputs Inputs) ([]*Descriptor, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rc, err := e.newRun(ctx, schema, inputs, nil)
	if err != nil {
		return nil, err
	}
	if err := e.runEager(rc); err != nil {
		return nil, err
	}
	return rc.Descriptors(), nil
}

func (e *Engine) newRun(ctx context.Context, schema *Schema, inputs Inputs, table dataset.Table) (*ResolutionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, errs.New(errs.ErrSchema, "no schema given")
	}
	if err := checkInputs(schema, inputs); err != nil {
		return nil, err
	}
	if err := e.compileRules(schema); err != nil {
		return nil, err
	}
	groups := e.cfg.groupDefaults
	if groups == nil {
		var err error
		if groups, err = DefaultGroupDefaults(); err != nil {
			return nil, err
		}
	}
	return newResolutionContext(ctx, e, schema, inputs, table, groups), nil
}

func (e *Engine) resolve(rc *ResolutionContext) (*Config, error) {
	if rc.Dataset == nil {
		return nil, errs.New(errs.ErrMissingResource, "no dataset loaded")
	}
	if err := e.runEager(rc); err != nil {
		return nil, err
	}
	for _, d := range rc.Descriptors() {
		if d.Eager {
			continue
		}
		if err := e.resolveOption(rc, d, phaseOrdinary); err != nil {
			return nil, err
		}
	}
	if err := e.applyDatasetDefaults(rc); err != nil {
		return nil, err
	}

	values, err := RunPipeline(rc, rc.Values, DefaultPasses())
	if err != nil {
		return nil, err
	}
	rc.Values = values
	if err := e.applyApplicability(rc, true); err != nil {
		return nil, err
	}
	return e.buildConfig(rc), nil
}

// runEager resolves the eager options in declaration order, then derives
// the mode-dependent help metadata and a first visibility pass.
func (e *Engine) runEager(rc *ResolutionContext) error {
	for _, d := range rc.Descriptors() {
		if !d.Eager {
			continue
		}
		if err := e.resolveOption(rc, d, phaseEager); err != nil {
			return err
		}
	}
	setChoiceHelp(rc)
	rc.logger.Debug("eager phase complete",
		slog.Bool("grouped", rc.Grouped),
		slog.String("approach", rc.Approach),
		slog.Any("lookback", derefInt(rc.Lookback)))
	return e.applyApplicability(rc, false)
}

func (e *Engine) resolveOption(rc *ResolutionContext, d *Descriptor, phase string) error {
	if err := rc.Context().Err(); err != nil {
		return err
	}
	tokens, explicit := rc.Input(d.Name)
	data, err := coerce(d, tokens, explicit)
	if err != nil {
		return errs.Attach(err, d.Name)
	}
	v := Value{Data: data, Provenance: rc.Provenance(d.Name)}
	source := sourceDefault
	if explicit {
		source = sourceInput
	}
	rc.trace.record(d.Name, phase, source, v, "")

	switch {
	case d.Callback != "":
		cb, ok := e.cfg.callbacks.Lookup(d.Callback)
		if !ok {
			return errs.Attach(unknownName("callback", d.Callback, e.cfg.callbacks.Names()), d.Name)
		}
		out, err := cb(rc, d, v)
		if err != nil {
			return errs.Attach(err, d.Name)
		}
		v.Data = out
		rc.trace.record(d.Name, phase, sourceCallback, v, d.Callback)
	case d.Kind == GrammarChoiceMap:
		choices, _ := d.Choices()
		sel, err := grammar.ResolveChoice(choices, tokens, explicit)
		if err != nil {
			return errs.Attach(err, d.Name)
		}
		v.Data = sel
	}
	rc.Values[d.Name] = v
	return nil
}

// coerce turns raw tokens into typed data. Unset options take a copy of
// their working default; choice-map options keep raw tokens for the choice
// grammar.
func coerce(d *Descriptor, tokens []string, explicit bool) (any, error) {
	switch d.Kind {
	case GrammarChoiceMap:
		if !explicit {
			return nil, nil
		}
		return append([]string(nil), tokens...), nil
	case GrammarVariadic:
		if !explicit {
			return cloneData(d.Default), nil
		}
		if len(tokens) == 0 {
			return nil, errs.New(errs.ErrValue, "expects at least one value")
		}
		return append([]string(nil), tokens...), nil
	}

	if !explicit {
		return cloneData(d.Default), nil
	}
	if d.IsFlag() {
		switch len(tokens) {
		case 0:
			return true, nil
		case 1:
			return coerceScalar(d, tokens[0])
		default:
			return nil, errs.New(errs.ErrValue, "flag takes no more than one value, got %d", len(tokens))
		}
	}
	if d.Multiple {
		out := make([]any, 0, len(tokens))
		for _, token := range tokens {
			v, err := coerceScalar(d, token)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	if len(tokens) != 1 {
		return nil, errs.New(errs.ErrValue, "expects a single value, got %d", len(tokens))
	}
	return coerceScalar(d, tokens[0])
}

func coerceScalar(d *Descriptor, token string) (any, error) {
	switch d.Type.Name {
	case TypeBool:
		b, err := strconv.ParseBool(token)
		if err != nil {
			return nil, errs.New(errs.ErrType, "expected a boolean, given %s", token)
		}
		return b, nil
	case TypeInt:
		n, err := numeric.Parse(token, numeric.MustBeInteger())
		if err != nil {
			return nil, err
		}
		return n.Int(), nil
	case TypeFloat:
		n, err := numeric.Parse(token)
		if err != nil {
			return nil, err
		}
		return n.Float(), nil
	case TypeChoice:
		for _, choice := range d.Type.Choices {
			if choice == token {
				return token, nil
			}
		}
		err := errs.New(errs.ErrValue, "must be one of [%s]; got: %s", strings.Join(d.Type.Choices, ", "), token)
		if hint := grammar.Suggest(token, d.Type.Choices); hint != "" {
			err.Msg += fmt.Sprintf(" (did you mean %q?)", hint)
		}
		return nil, err
	default:
		return token, nil
	}
}

func checkInputs(schema *Schema, inputs Inputs) error {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := schema.options[name]; ok {
			continue
		}
		err := errs.New(errs.ErrValue, "no such option %s", name)
		if hint := grammar.Suggest(name, schema.Names()); hint != "" {
			err.Msg += fmt.Sprintf(" (did you mean %q?)", hint)
		}
		return err
	}
	return nil
}

// setChoiceHelp fills the cosmetic metavar of choice-map options and the
// extra help lines that depend on the eager mode.
func setChoiceHelp(rc *ResolutionContext) {
	for _, d := range rc.Descriptors() {
		choices, ok := d.Choices()
		if !ok {
			continue
		}
		if d.Metavar == "" {
			d.Metavar = choices.Metavar()
		}
		if d.Name == OptApproach {
			if args, ok := choices.Lookup(ApproachRolling); ok && args.Len() == 2 {
				d.Help += fmt.Sprintf("  [defaults: (%s, %s)]", args.Values[0], args.Values[1])
			}
		}
	}
	if d, ok := rc.Descriptor(OptXmin); ok && rc.Grouped {
		d.Help = fmt.Sprintf("* average : enter window & lag days (ℤ⁺, ℤ)  [defaults: (%s, %s)]\n",
			grammar.DefaultWindow, grammar.DefaultLag) + d.Help
	}
}

func (e *Engine) buildConfig(rc *ResolutionContext) *Config {
	cfg := &Config{
		RunID:      rc.RunID,
		Schema:     rc.schema.Name(),
		Order:      append([]string(nil), rc.schema.order...),
		Values:     make(Values, len(rc.options)),
		Warnings:   rc.Warnings(),
		Threshold:  rc.Threshold,
		Hidden:     make(map[string]bool, len(rc.options)),
		Traces:     rc.trace.snapshot(),
		ResolvedAt: e.cfg.now(),
	}
	for _, name := range rc.schema.order {
		cfg.Values[name] = rc.Values[name]
		cfg.Hidden[name] = rc.options[name].Hidden
	}
	if bounds, ok := rc.Values.Data(MonthlyBoundsKey).([]MonthBounds); ok {
		cfg.MonthlyBounds = bounds
	}
	return cfg
}

// report logs warnings and fans run events out to the activity hooks.
// Emission failures are logged, never returned.
func (e *Engine) report(rc *ResolutionContext, runErr error) {
	run := activity.RunContext{
		RunID:    rc.RunID,
		Schema:   rc.schema.Name(),
		Approach: rc.Approach,
		Grouped:  rc.Grouped,
	}
	ctx := rc.Context()
	if runErr == nil {
		for _, w := range rc.warnings {
			rc.logger.Warn(w.Message, slog.String("option", w.Option))
			e.cfg.metrics.observeWarning(w.Option)
			e.emit(rc, activity.BuildOptionWarningEvent(activity.ResolutionEventInput{
				Option:     w.Option,
				Message:    w.Message,
				Provenance: rc.Provenance(w.Option).String(),
				Run:        run,
				OccurredAt: e.cfg.now(),
			}))
		}
		e.emit(rc, activity.BuildRunResolvedEvent(activity.ResolutionEventInput{
			Run:        run,
			Metadata:   map[string]any{"warnings": len(rc.warnings)},
			OccurredAt: e.cfg.now(),
		}))
		return
	}
	if ctx.Err() != nil {
		return
	}
	e.emit(rc, activity.BuildRunFailedEvent(activity.ResolutionEventInput{
		Run:        run,
		Message:    runErr.Error(),
		Metadata:   map[string]any{"kind": KindName(runErr)},
		OccurredAt: e.cfg.now(),
	}))
}

func (e *Engine) emit(rc *ResolutionContext, event activity.Event) {
	if err := e.emitter.Emit(rc.Context(), event); err != nil {
		rc.logger.Warn("activity emission failed", slog.String("verb", event.Verb), slog.String("error", err.Error()))
	}
}
