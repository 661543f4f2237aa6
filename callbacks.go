package opts

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/jyscao/tail-risk/grammar"
	"github.com/jyscao/tail-risk/internal/errs"
	"github.com/jyscao/tail-risk/numeric"
)

// Callback post-processes an option's coerced value. It receives the run's
// working descriptor and may update the context's private fields.
type Callback func(rc *ResolutionContext, d *Descriptor, v Value) (any, error)

// Names of the built-in callbacks a schema may reference.
const (
	CallbackGroupOpts        = "gset_group_opts"
	CallbackApproachArgs     = "validate_approach_args"
	CallbackXminArgs         = "parse_xmin_args"
	CallbackGroupOnly        = "confirm_group_flag_set"
	CallbackLookbackOverride = "determine_lookback_override"
	CallbackNormTarget       = "validate_norm_target"
	CallbackCastTau          = "cast_tau"
	CallbackNprocDefault     = "gset_nproc_default"
)

// DefaultCallbacks returns a registry holding the built-in callbacks.
func DefaultCallbacks() *CallbackRegistry {
	reg := NewCallbackRegistry()
	_ = reg.Register(CallbackGroupOpts, groupOpts)
	_ = reg.Register(CallbackApproachArgs, approachArgs)
	_ = reg.Register(CallbackXminArgs, xminArgs)
	_ = reg.Register(CallbackGroupOnly, groupOnly)
	_ = reg.Register(CallbackLookbackOverride, lookbackOverride)
	_ = reg.Register(CallbackNormTarget, normTarget)
	_ = reg.Register(CallbackCastTau, castTau)
	_ = reg.Register(CallbackNprocDefault, nprocDefault)
	return reg
}

// groupOpts records the group toggle and, when set, swaps in the group
// default table for every option.
func groupOpts(rc *ResolutionContext, d *Descriptor, v Value) (any, error) {
	grouped, _ := v.Data.(bool)
	rc.Grouped = grouped
	if !grouped {
		return false, nil
	}
	if err := rc.applyGroupDefaults(); err != nil {
		return nil, err
	}
	d.Help = "'-G' is set, showing specialized help for group tail analysis"
	d.ShowDefault = false
	return true, nil
}

// approachArgs resolves (approach, lookback, frequency) through the generic
// choice grammar.
func approachArgs(rc *ResolutionContext, d *Descriptor, v Value) (any, error) {
	choices, ok := d.Choices()
	if !ok {
		return nil, errs.New(errs.ErrSchema, "approach option needs a choice-map default")
	}
	tokens, _ := v.Data.([]string)
	sel, err := grammar.ResolveChoice(choices, tokens, v.Explicit())
	if err != nil {
		return nil, err
	}

	out := ApproachArgs{Approach: sel.Choice}
	switch {
	case IsFixedWindow(sel.Choice):
		if !sel.Args.IsNull() {
			return nil, errs.New(errs.ErrAssertion,
				"approach %s does not take 'lookback' & 'analysis-frequency' arguments", sel.Choice)
		}
	case IsRolling(sel.Choice):
		if sel.Args.Len() != 2 {
			return nil, errs.New(errs.ErrValue,
				"must pass both 'lookback' & 'analysis-frequency' if overriding the default for either one")
		}
		typeMsg := fmt.Sprintf("both 'lookback' & 'analysis-frequency' args for approach '%s' must be INTs (# days); given: %s, %s",
			sel.Choice, sel.Args.Values[0], sel.Args.Values[1])
		pair := make([]int64, 2)
		for i, raw := range sel.Args.Values {
			n, err := numeric.Parse(raw, numeric.MustBeInteger(), numeric.Min(1), numeric.TypeMessage(typeMsg))
			if err != nil {
				return nil, err
			}
			pair[i] = n.Int()
		}
		out.Lookback, out.Frequency = &pair[0], &pair[1]
	default:
		return nil, errs.New(errs.ErrValue, "approach '%s' is incompatible with inputs: %s", sel.Choice, sel.Args)
	}

	rc.Approach, rc.Lookback, rc.Frequency = out.Approach, out.Lookback, out.Frequency
	return out, nil
}

func xminArgs(rc *ResolutionContext, _ *Descriptor, v Value) (any, error) {
	tokens, _ := v.Data.([]string)
	threshold, err := grammar.ParseThreshold(tokens, grammar.ThresholdOptions{
		Explicit:    v.Explicit(),
		Grouped:     rc.Grouped,
		TimeVarying: IsRolling(rc.Approach),
		Source:      rc.Source(),
	})
	if err != nil {
		return nil, err
	}
	rc.Threshold = &threshold
	rc.Aux = threshold.Aux
	return threshold, nil
}

func groupOnly(rc *ResolutionContext, d *Descriptor, v Value) (any, error) {
	if v.Data != nil && !rc.Grouped {
		return nil, errs.New(errs.ErrAssertion,
			"option '%s' is only available when using group tail analysis mode; set -G or --group to use", d.Name)
	}
	return v.Data, nil
}

func lookbackOverride(rc *ResolutionContext, d *Descriptor, v Value) (any, error) {
	msg := fmt.Sprintf("'--lookback' N/A to %s approach; ignoring '--lb %v'", strings.ToUpper(rc.Approach), v.Data)
	out, warning := nullify(v, !v.Explicit() || IsFixedWindow(rc.Approach), msg)
	rc.warn(d.Name, warning)
	return out.Data, nil
}

func normTarget(rc *ResolutionContext, d *Descriptor, v Value) (any, error) {
	flag := "--norm-series"
	if on, off := d.Flags(), d.NegatedFlags(); len(on) > 0 {
		flag = on[0]
		if series, _ := v.Data.(bool); !series && len(off) > 0 {
			flag = off[0]
		}
	}
	msg := "Normalization target only applicable to INDIVIDUAL mode w/ STATIC approach, " +
		`i.e. "-a static" & no "-G". Ignoring flag ` + flag
	out, warning := nullify(v, rc.Grouped || rc.Approach != ApproachStatic, msg)
	rc.warn(d.Name, warning)
	return out.Data, nil
}

func castTau(_ *ResolutionContext, _ *Descriptor, v Value) (any, error) {
	switch t := v.Data.(type) {
	case nil:
		return nil, nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case string:
		n, err := numeric.Parse(t, numeric.MustBeInteger())
		if err != nil {
			return nil, err
		}
		return n.Int(), nil
	default:
		return nil, errs.New(errs.ErrType, "tau must be an integer, got %v", v.Data)
	}
}

func nprocDefault(_ *ResolutionContext, _ *Descriptor, v Value) (any, error) {
	switch n := v.Data.(type) {
	case nil:
		return int64(runtime.NumCPU()), nil
	case int64:
		if n == 0 {
			return int64(runtime.NumCPU()), nil
		}
		return n, nil
	default:
		return v.Data, nil
	}
}
