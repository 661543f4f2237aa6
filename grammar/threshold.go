package grammar

import (
	"fmt"
	"strings"

	"github.com/jyscao/tail-risk/dataset"
	"github.com/jyscao/tail-risk/internal/errs"
	"github.com/jyscao/tail-risk/numeric"
)

// Variant names the interpretation chosen for the threshold tokens.
type Variant string

const (
	VariantFile       Variant = "file"
	VariantClauset    Variant = "clauset"
	VariantPercentile Variant = "percentile"
	VariantStdDev     Variant = "std-dev"
	VariantManual     Variant = "manual"
	VariantAverage    Variant = "average"
)

// Keyword selecting automatic threshold detection.
const Keyword = "clauset"

// Canned defaults substituted when the user supplied nothing.
const (
	DefaultWindow = "66"
	DefaultLag    = "0"
)

const (
	percentSuffix = "%"
	stdDevSuffix  = "sd"
)

// Source resolves auxiliary per-row dataset paths.
type Source interface {
	Exists(path string) bool
	Open(path string) (dataset.Table, error)
}

// ThresholdOptions carries the mode the threshold grammar depends on.
type ThresholdOptions struct {
	Explicit    bool
	Grouped     bool
	TimeVarying bool
	Source      Source
}

func (o ThresholdOptions) averageAllowed() bool { return o.Grouped && o.TimeVarying }

// Threshold is the tagged result of ParseThreshold.
type Threshold struct {
	Variant Variant `json:"variant" yaml:"variant"`
	// Value holds the percentile, deviation count or manual threshold as an
	// int64 or float64.
	Value  any    `json:"value,omitempty" yaml:"value,omitempty"`
	Window int64  `json:"window,omitempty" yaml:"window,omitempty"`
	Lag    int64  `json:"lag,omitempty" yaml:"lag,omitempty"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`

	Aux dataset.Table `json:"-" yaml:"-"`
}

func (t Threshold) String() string {
	switch t.Variant {
	case VariantClauset:
		return "(clauset, null)"
	case VariantFile:
		return fmt.Sprintf("(file, %s)", t.File)
	case VariantAverage:
		aux := "null"
		if t.File != "" {
			aux = t.File
		}
		return fmt.Sprintf("(average, (%d, %d, %s))", t.Window, t.Lag, aux)
	default:
		return fmt.Sprintf("(%s, %v)", t.Variant, t.Value)
	}
}

// matcher tries one interpretation of the tokens. ok=false passes to the next
// matcher; a non-nil error ends the search.
type matcher struct {
	variant Variant
	arity   func(n int) bool
	match   func(tokens []string, opts ThresholdOptions) (Threshold, bool, error)
}

func single(n int) bool { return n == 1 }
func multi(n int) bool  { return n > 1 }

// matchers is evaluated in order; the order is the tie-break between
// interpretations and must not change.
var matchers = []matcher{
	{variant: VariantFile, arity: single, match: matchFile},
	{variant: VariantClauset, arity: single, match: matchKeyword},
	{variant: VariantPercentile, arity: single, match: matchPercent},
	{variant: VariantStdDev, arity: single, match: matchStdDev},
	{variant: VariantManual, arity: single, match: matchManual},
	{variant: VariantAverage, arity: multi, match: matchAverage},
}

// ParseThreshold interprets the threshold tokens. When opts.Explicit is false
// the tokens are ignored and the mode-dependent default is parsed instead.
func ParseThreshold(tokens []string, opts ThresholdOptions) (Threshold, error) {
	if !opts.Explicit {
		if opts.averageAllowed() {
			tokens = []string{DefaultWindow, DefaultLag}
		} else {
			tokens = []string{Keyword}
		}
	}
	if len(tokens) == 0 {
		return Threshold{}, errs.New(errs.ErrValue, "no threshold given; see --help for acceptable inputs")
	}

	for _, m := range matchers {
		if !m.arity(len(tokens)) {
			continue
		}
		result, ok, err := m.match(tokens, opts)
		if err != nil {
			return Threshold{}, err
		}
		if ok {
			result.Variant = m.variant
			return result, nil
		}
	}
	return Threshold{}, errs.New(errs.ErrValue,
		"incompatible w/ input: '%s'; see --help for acceptable inputs", strings.Join(tokens, " "))
}

func matchFile(tokens []string, opts ThresholdOptions) (Threshold, bool, error) {
	if opts.Source == nil || !opts.Source.Exists(tokens[0]) {
		return Threshold{}, false, nil
	}
	aux, err := opts.Source.Open(tokens[0])
	if err != nil {
		return Threshold{}, false, err
	}
	return Threshold{File: tokens[0], Aux: aux}, true, nil
}

func matchKeyword(tokens []string, _ ThresholdOptions) (Threshold, bool, error) {
	return Threshold{}, tokens[0] == Keyword, nil
}

func matchPercent(tokens []string, _ ThresholdOptions) (Threshold, bool, error) {
	prefix, ok := strings.CutSuffix(tokens[0], percentSuffix)
	if !ok {
		return Threshold{}, false, nil
	}
	n, err := numeric.Parse(prefix, numeric.Min(0), numeric.Max(100),
		numeric.RangeMessage(fmt.Sprintf("percent value must be in [0, 100]; given: %s", prefix)))
	if err != nil {
		return Threshold{}, false, err
	}
	return Threshold{Value: n.Value()}, true, nil
}

func matchStdDev(tokens []string, _ ThresholdOptions) (Threshold, bool, error) {
	prefix, ok := strings.CutSuffix(tokens[0], stdDevSuffix)
	if !ok {
		return Threshold{}, false, nil
	}
	n, err := numeric.Parse(prefix, numeric.Min(0),
		numeric.RangeMessage(fmt.Sprintf("standard deviation should be >= 0; given: %s s.d.", prefix)))
	if err != nil {
		return Threshold{}, false, err
	}
	return Threshold{Value: n.Value()}, true, nil
}

func matchManual(tokens []string, _ ThresholdOptions) (Threshold, bool, error) {
	n, err := numeric.Parse(tokens[0])
	if err != nil {
		return Threshold{}, false, nil
	}
	return Threshold{Value: n.Value()}, true, nil
}

func matchAverage(tokens []string, opts ThresholdOptions) (Threshold, bool, error) {
	if !opts.averageAllowed() {
		return Threshold{}, false, errs.New(errs.ErrAssertion,
			"%v passed, thus method 'average' inferred; average is only applicable w/ time-varying approaches in group mode",
			tokens)
	}

	var win, lag, file string
	switch len(tokens) {
	case 2:
		win, lag = tokens[0], tokens[1]
	case 3:
		switch {
		case numeric.IsDecimal(tokens[0]) && numeric.IsDecimal(tokens[1]):
			win, lag, file = tokens[0], tokens[1], tokens[2]
		case numeric.IsDecimal(tokens[1]) && numeric.IsDecimal(tokens[2]):
			file, win, lag = tokens[0], tokens[1], tokens[2]
		default:
			return Threshold{}, false, errs.New(errs.ErrAssertion,
				"3 args passed; the data file to use for 'average' must be passed either FIRST or LAST")
		}
	default:
		return Threshold{}, false, errs.New(errs.ErrValue,
			"'average' takes a window, a lag and an optional data file; given %d args", len(tokens))
	}

	typeMsg := fmt.Sprintf("both numeric args to 'average' must be INTs (# days); given: '%s, %s'", win, lag)
	a, err := numeric.Parse(win, numeric.MustBeInteger(), numeric.Min(0), numeric.TypeMessage(typeMsg))
	if err != nil {
		return Threshold{}, false, err
	}
	b, err := numeric.Parse(lag, numeric.MustBeInteger(), numeric.Min(0), numeric.TypeMessage(typeMsg))
	if err != nil {
		return Threshold{}, false, err
	}
	result := Threshold{Window: a.Int(), Lag: b.Int()}
	if result.Lag > result.Window {
		result.Window, result.Lag = result.Lag, result.Window
	}

	if file != "" {
		if opts.Source == nil || !opts.Source.Exists(file) {
			return Threshold{}, false, errs.New(errs.ErrMissingResource, "cannot find file '%s'", file)
		}
		aux, err := opts.Source.Open(file)
		if err != nil {
			return Threshold{}, false, err
		}
		result.File, result.Aux = file, aux
	}
	return result, true, nil
}
