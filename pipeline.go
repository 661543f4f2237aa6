package opts

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/jyscao/tail-risk/internal/errs"
)

// Options the post-resolution passes read and rewrite.
const (
	OptApproach    = "approach_args"
	OptXmin        = "xmin_args"
	OptDateI       = "date_i"
	OptDateF       = "date_f"
	OptTickers     = "tickers"
	OptStandardize = "standardize"
	OptAbsolutize  = "absolutize"
	OptNormTarget  = "norm_target"
	OptNormBefore  = "norm_before"
	OptNormAfter   = "norm_after"
	OptRight       = "anal_right"
	OptLeft        = "anal_left"
)

// Pass is one cross-option check of the post-resolution pipeline. Run must
// not mutate values; it returns the rewritten set and any warnings.
type Pass struct {
	Name string
	Run  func(rc *ResolutionContext, values Values) (Values, []Warning, error)
}

// DefaultPasses returns the pipeline passes in their fixed order.
func DefaultPasses() []Pass {
	return []Pass{
		{Name: "norm-timings", Run: normTimingsPass},
		{Name: "norm-options", Run: normOptionsPass},
		{Name: "tail-selection", Run: tailSelectionPass},
		{Name: "monthly-bounds", Run: monthlyBoundsPass},
		{Name: "date-indexes", Run: dateIndexesPass},
	}
}

// RunPipeline applies passes in order. The first failing pass aborts the run.
func RunPipeline(rc *ResolutionContext, values Values, passes []Pass) (Values, error) {
	current := values
	for _, pass := range passes {
		if err := rc.Context().Err(); err != nil {
			return nil, err
		}
		next, warnings, err := pass.Run(rc, current)
		if err != nil {
			return nil, err
		}
		for i := range warnings {
			rc.warn(warnings[i].Option, &warnings[i])
		}
		for name, value := range next {
			if before, ok := current[name]; !ok || !reflect.DeepEqual(before.Data, value.Data) {
				rc.trace.record(name, phasePipeline, pass.Name, value, "")
			}
		}
		rc.logger.Debug("pipeline pass complete", slog.String("pass", pass.Name), slog.Int("warnings", len(warnings)))
		current = next
	}
	return current, nil
}

// nullify drops v when cond holds. A warning is produced only when the user
// typed a non-nil value; defaulted values are dropped silently.
func nullify(v Value, cond bool, message string) (Value, *Warning) {
	if !cond {
		return v, nil
	}
	var warning *Warning
	if v.Explicit() && v.Data != nil {
		warning = &Warning{Message: message}
	}
	return Value{Data: nil, Provenance: v.Provenance}, warning
}

// nullifyInto applies nullify to values[name] when the option is present.
func nullifyInto(values Values, name string, cond bool, message string) []Warning {
	v, ok := values[name]
	if !ok {
		return nil
	}
	out, warning := nullify(v, cond, message)
	values[name] = out
	if warning == nil {
		return nil
	}
	warning.Option = name
	return []Warning{*warning}
}

func flagName(option string) string {
	return "--" + strings.ReplaceAll(option, "_", "-")
}

func normTimingsPass(rc *ResolutionContext, values Values) (Values, []Warning, error) {
	out := values.Clone()
	var warnings []Warning
	for _, name := range []string{OptNormBefore, OptNormAfter} {
		msg := "Normalization timing only applicable in GROUP mode, i.e. w/ '-G' flag set. Ignoring flag " + flagName(name)
		warnings = append(warnings, nullifyInto(out, name, !rc.Grouped, msg)...)
	}
	return out, warnings, nil
}

func normOptionsPass(rc *ResolutionContext, values Values) (Values, []Warning, error) {
	out := values.Clone()
	normalize := out.Bool(OptStandardize) || out.Bool(OptAbsolutize)
	var warnings []Warning
	for _, name := range []string{OptNormTarget, OptNormBefore, OptNormAfter} {
		msg := fmt.Sprintf("opt '%s' only applicable w/ --std &| --abs set; ignoring", name)
		warnings = append(warnings, nullifyInto(out, name, !normalize, msg)...)
	}

	before, hasBefore := out[OptNormBefore]
	after, hasAfter := out[OptNormAfter]
	if normalize && rc.Grouped && hasBefore && hasAfter && !before.Explicit() && !after.Explicit() {
		out[OptNormBefore] = Value{Data: false, Provenance: ProvenanceDefault}
		out[OptNormAfter] = Value{Data: true, Provenance: ProvenanceDefault}
	}
	return out, warnings, nil
}

func tailSelectionPass(rc *ResolutionContext, values Values) (Values, []Warning, error) {
	right, hasRight := values[OptRight]
	left, hasLeft := values[OptLeft]
	if !hasRight || !hasLeft {
		return values, nil, nil
	}
	out := values.Clone()
	rv, _ := right.Data.(bool)
	lv, _ := left.Data.(bool)

	if !rv && !lv {
		switch {
		case !right.Explicit() && !left.Explicit():
			return nil, nil, errs.New(errs.ErrValue,
				"defaults for both tails are False (skip); specify -L or -R to analyze the left/right tail; or -LR for both")
		case right.Explicit() && left.Explicit():
			rc.logger.Info("skipping tail analysis")
		default:
			return nil, nil, errs.New(errs.ErrValue,
				"one tail was switched off explicitly and the other by default; specify -L or -R to select a tail")
		}
	}

	if rv && lv && right.Provenance != left.Provenance {
		if right.Explicit() {
			out[OptLeft] = Value{Data: false, Provenance: left.Provenance}
		} else {
			out[OptRight] = Value{Data: false, Provenance: right.Provenance}
		}
	}

	var warnings []Warning
	if out.Bool(OptAbsolutize) {
		if left.Explicit() && out.Bool(OptLeft) {
			warnings = append(warnings, Warning{
				Option:  OptLeft,
				Message: "'--abs / --absolutize' flag set, only RIGHT tail appropriate for analysis; ignoring -L, using -R",
			})
		}
		out[OptLeft] = Value{Data: false, Provenance: out[OptLeft].Provenance}
		out[OptRight] = Value{Data: true, Provenance: out[OptRight].Provenance}
	}
	return out, warnings, nil
}

// dateIndexesPass checks the analysis window against the dataset index and,
// when an auxiliary per-date dataset was loaded, every sampled analysis date
// against the auxiliary index.
func dateIndexesPass(rc *ResolutionContext, values Values) (Values, []Warning, error) {
	from, okFrom := values.String(OptDateI)
	to, okTo := values.String(OptDateF)
	if !okFrom || !okTo || rc.Dataset == nil {
		return values, nil, nil
	}
	if err := missingDates(rc.Dataset, []string{from, to}); err != nil {
		return nil, nil, err
	}
	if rc.Aux == nil {
		return values, nil, nil
	}

	step := 1
	if args, ok := values.Data(OptApproach).(ApproachArgs); ok {
		step = args.Step()
	}
	dates, err := rc.Dataset.Slice(from, to, step)
	if err != nil {
		return nil, nil, err
	}
	if err := missingDates(rc.Aux, dates); err != nil {
		return nil, nil, err
	}
	return values, nil, nil
}

type indexed interface {
	Name() string
	Has(label string) bool
}

func missingDates(table indexed, dates []string) error {
	var missing []string
	for _, date := range dates {
		if !table.Has(date) {
			missing = append(missing, date)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingDatesError{Table: table.Name(), Dates: missing}
}
