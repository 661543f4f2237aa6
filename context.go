package opts

import (
	"context"
	"log/slog"

	"github.com/jyscao/tail-risk/dataset"
	"github.com/jyscao/tail-risk/grammar"
	"github.com/jyscao/tail-risk/internal/errs"
	"github.com/jyscao/tail-risk/layering"
)

// ResolutionContext is the mutable state of one resolution run. It is created
// by Engine.Resolve, threaded through every phase and dropped once the Config
// is built. It is never shared between runs.
type ResolutionContext struct {
	RunID  string
	Values Values

	// Set by the eager phase.
	Grouped   bool
	Approach  string
	Lookback  *int64
	Frequency *int64

	// Set by the threshold callback.
	Threshold *grammar.Threshold
	Aux       dataset.Table

	Dataset dataset.Table

	ctx           context.Context
	schema        *Schema
	options       map[string]*Descriptor
	inputs        Inputs
	groupDefaults GroupDefaults
	warnings      []Warning
	baseHidden    map[string]bool
	trace         *tracer
	logger        *slog.Logger
	engine        *Engine
}

func newResolutionContext(ctx context.Context, e *Engine, schema *Schema, inputs Inputs, table dataset.Table, groups GroupDefaults) *ResolutionContext {
	options := make(map[string]*Descriptor, schema.Len())
	for _, d := range schema.Descriptors() {
		options[d.Name] = d
	}
	runID := e.cfg.newRunID()
	return &ResolutionContext{
		RunID:         runID,
		Values:        make(Values, schema.Len()),
		Dataset:       table,
		ctx:           ctx,
		schema:        schema,
		options:       options,
		inputs:        inputs.Clone(),
		groupDefaults: groups,
		trace:         newTracer(),
		logger:        e.cfg.logger.With(slog.String("run_id", runID)),
		engine:        e,
	}
}

// Context returns the context the run was started with.
func (rc *ResolutionContext) Context() context.Context {
	if rc.ctx == nil {
		return context.Background()
	}
	return rc.ctx
}

// Logger returns the run-scoped logger.
func (rc *ResolutionContext) Logger() *slog.Logger { return rc.logger }

// Descriptor returns the run's working copy of the named descriptor.
func (rc *ResolutionContext) Descriptor(name string) (*Descriptor, bool) {
	d, ok := rc.options[name]
	return d, ok
}

// Descriptors returns the run's descriptors in declaration order.
func (rc *ResolutionContext) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(rc.options))
	for _, name := range rc.schema.order {
		out = append(out, rc.options[name])
	}
	return out
}

// Input returns the tokens typed for name and whether the option was given.
func (rc *ResolutionContext) Input(name string) ([]string, bool) {
	tokens, ok := rc.inputs[name]
	return tokens, ok
}

// Explicit reports whether the user supplied name.
func (rc *ResolutionContext) Explicit(name string) bool {
	_, ok := rc.inputs[name]
	return ok
}

// Provenance returns the provenance of name.
func (rc *ResolutionContext) Provenance(name string) Provenance {
	if rc.Explicit(name) {
		return ProvenanceExplicit
	}
	return ProvenanceDefault
}

// Warn records advisory text for option.
func (rc *ResolutionContext) Warn(option, message string) {
	rc.warnings = append(rc.warnings, Warning{Option: option, Message: message})
}

// Warnings returns the warnings recorded so far.
func (rc *ResolutionContext) Warnings() []Warning {
	return append([]Warning(nil), rc.warnings...)
}

// Source returns how auxiliary dataset paths are resolved.
func (rc *ResolutionContext) Source() grammar.Source {
	return rc.engine.cfg.source
}

const (
	layerGroup  = "group"
	layerSchema = "schema"
)

// applyGroupDefaults swaps in the group default table for every option:
// group values win over schema defaults, and an option is visible only when
// the group table names it.
func (rc *ResolutionContext) applyGroupDefaults() error {
	schemaDefaults := make(map[string]any, len(rc.options))
	for name, d := range rc.options {
		schemaDefaults[name] = d.Default
	}
	merged, origins := layering.Merge(
		layering.Layer{Name: layerGroup, Values: rc.groupDefaults},
		layering.Layer{Name: layerSchema, Values: schemaDefaults},
	)
	for name := range rc.groupDefaults {
		if _, ok := rc.options[name]; !ok {
			rc.logger.Debug("group default names an undeclared option", slog.String("option", name))
		}
	}
	for _, d := range rc.Descriptors() {
		if d.Kind == GrammarChoiceMap {
			if _, ok := merged[d.Name].(grammar.ChoiceMap); !ok {
				return &errs.Error{Kind: errs.ErrSchema, Option: d.Name, Msg: "group default for a choice-map option must be a mapping"}
			}
		}
		d.Default = merged[d.Name]
		d.Hidden = origins[d.Name] != layerGroup
		if origins[d.Name] == layerGroup {
			rc.trace.record(d.Name, phaseEager, sourceGroup, Value{Data: d.Default}, "group default")
		}
	}
	return nil
}

// ruleValues flattens resolved values into plain data for rule evaluation.
func (rc *ResolutionContext) ruleValues() map[string]any {
	env := make(map[string]any, len(rc.options)+4)
	for name := range rc.options {
		env[name] = ruleValue(rc.Values[name].Data)
	}
	env["grouped"] = rc.Grouped
	env["approach"] = rc.Approach
	env["lookback"] = derefInt(rc.Lookback)
	env["frequency"] = derefInt(rc.Frequency)
	return env
}

func ruleValue(data any) any {
	switch v := data.(type) {
	case ApproachArgs:
		return map[string]any{
			"approach":  v.Approach,
			"lookback":  derefInt(v.Lookback),
			"frequency": derefInt(v.Frequency),
		}
	case grammar.Selection:
		return map[string]any{"choice": v.Choice, "args": v.Args.Native()}
	case grammar.Threshold:
		return map[string]any{
			"variant": string(v.Variant),
			"value":   v.Value,
			"window":  v.Window,
			"lag":     v.Lag,
			"file":    v.File,
		}
	case grammar.ChoiceMap:
		return v.Keys()
	default:
		return data
	}
}

func derefInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func (rc *ResolutionContext) warn(option string, w *Warning) {
	if w == nil {
		return
	}
	w.Option = option
	rc.warnings = append(rc.warnings, *w)
}
