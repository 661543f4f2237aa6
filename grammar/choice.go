// Package grammar implements the variable-arity "choice + trailing values"
// option grammars: the generic choice-map resolver and the threshold
// selection grammar built on top of it.
package grammar

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/jyscao/tail-risk/internal/errs"
)

// Shape describes how many trailing values an Args carries.
type Shape int

const (
	// ShapeNull marks a choice declared with a null default.
	ShapeNull Shape = iota
	// ShapeEmpty marks an explicitly empty list of trailing values.
	ShapeEmpty
	// ShapeScalar marks exactly one trailing value, unwrapped.
	ShapeScalar
	// ShapeSequence marks two or more trailing values.
	ShapeSequence
)

func (s Shape) String() string {
	switch s {
	case ShapeNull:
		return "null"
	case ShapeEmpty:
		return "empty"
	case ShapeScalar:
		return "scalar"
	case ShapeSequence:
		return "sequence"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Args holds the trailing values of a choice. Values are kept as the raw
// strings typed on the command line (or declared in the schema).
type Args struct {
	Shape  Shape
	Values []string
}

// Null is the Args of a choice without trailing values.
func Null() Args { return Args{Shape: ShapeNull} }

// ArgsOf shapes values following the arity rules: none is empty, one is a
// bare scalar, more is a sequence.
func ArgsOf(values ...string) Args {
	switch len(values) {
	case 0:
		return Args{Shape: ShapeEmpty}
	case 1:
		return Args{Shape: ShapeScalar, Values: []string{values[0]}}
	default:
		return Args{Shape: ShapeSequence, Values: append([]string(nil), values...)}
	}
}

// IsNull reports whether no trailing values are present.
func (a Args) IsNull() bool { return a.Shape == ShapeNull || a.Shape == ShapeEmpty }

// Scalar returns the single trailing value.
func (a Args) Scalar() (string, bool) {
	if a.Shape != ShapeScalar || len(a.Values) != 1 {
		return "", false
	}
	return a.Values[0], true
}

// Len returns the number of trailing values.
func (a Args) Len() int { return len(a.Values) }

// Clone returns a deep copy of a.
func (a Args) Clone() Args {
	out := Args{Shape: a.Shape}
	if a.Values != nil {
		out.Values = append([]string(nil), a.Values...)
	}
	return out
}

// Native returns nil, a string or a []string, matching Shape.
func (a Args) Native() any {
	switch a.Shape {
	case ShapeScalar:
		return a.Values[0]
	case ShapeSequence:
		return append([]string(nil), a.Values...)
	case ShapeEmpty:
		return []string{}
	default:
		return nil
	}
}

func (a Args) String() string {
	switch a.Shape {
	case ShapeNull:
		return "null"
	case ShapeScalar:
		return a.Values[0]
	default:
		return "(" + strings.Join(a.Values, ", ") + ")"
	}
}

// ChoiceDefault pairs a choice key with its declared trailing default.
type ChoiceDefault struct {
	Key  string
	Args Args
}

// ChoiceMap is an ordered mapping from choice key to trailing defaults. The
// first entry is the default choice.
type ChoiceMap []ChoiceDefault

// Keys returns the choice keys in declaration order.
func (m ChoiceMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for _, entry := range m {
		keys = append(keys, entry.Key)
	}
	return keys
}

// Lookup returns the declared trailing default for key.
func (m ChoiceMap) Lookup(key string) (Args, bool) {
	for _, entry := range m {
		if entry.Key == key {
			return entry.Args, true
		}
	}
	return Args{}, false
}

// First returns the default choice.
func (m ChoiceMap) First() (ChoiceDefault, bool) {
	if len(m) == 0 {
		return ChoiceDefault{}, false
	}
	return m[0], true
}

// Clone returns a deep copy of m.
func (m ChoiceMap) Clone() ChoiceMap {
	if m == nil {
		return nil
	}
	out := make(ChoiceMap, len(m))
	for i, entry := range m {
		out[i] = ChoiceDefault{Key: entry.Key, Args: entry.Args.Clone()}
	}
	return out
}

// Metavar renders the help placeholder for a choice map.
func (m ChoiceMap) Metavar() string {
	first, ok := m.First()
	if !ok {
		return ""
	}
	return fmt.Sprintf("[%s]  [default: %s]", strings.Join(m.Keys(), "|"), first.Key)
}

// Selection is the outcome of resolving a choice-map option.
type Selection struct {
	Choice string
	Args   Args
}

func (s Selection) String() string {
	return fmt.Sprintf("(%s, %s)", s.Choice, s.Args)
}

// ResolveChoice resolves input, shaped (choice, trailing...), against the
// declared defaults. When explicit is false the user supplied nothing and the
// first declared choice's default is used whatever input holds.
func ResolveChoice(defaults ChoiceMap, input []string, explicit bool) (Selection, error) {
	first, ok := defaults.First()
	if !ok {
		return Selection{}, errs.New(errs.ErrSchema, "choice map has no choices")
	}
	if !explicit && len(input) == 0 {
		return Selection{Choice: first.Key, Args: first.Args.Clone()}, nil
	}
	if len(input) == 0 {
		return Selection{}, errs.New(errs.ErrValue, "expected one of [%s]; got nothing", strings.Join(defaults.Keys(), ", "))
	}

	choice, trailing := input[0], input[1:]
	declared, ok := defaults.Lookup(choice)
	if !ok {
		return Selection{}, unknownChoice(defaults.Keys(), choice)
	}

	if !explicit {
		return Selection{Choice: choice, Args: first.Args.Clone()}, nil
	}
	if len(trailing) == 0 {
		return Selection{Choice: choice, Args: declared.Clone()}, nil
	}
	return Selection{Choice: choice, Args: ArgsOf(trailing...)}, nil
}

func unknownChoice(choices []string, got string) error {
	err := errs.New(errs.ErrValue, "must be one of [%s]; got: %s", strings.Join(choices, ", "), got)
	if hint := Suggest(got, choices); hint != "" {
		err.Msg += fmt.Sprintf(" (did you mean %q?)", hint)
	}
	return err
}

// Suggest returns the candidate closest to input by edit distance, or "" when
// nothing is close enough to be a plausible typo.
func Suggest(input string, candidates []string) string {
	if input == "" || len(candidates) == 0 {
		return ""
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	best, bestDist := "", -1
	for _, candidate := range sorted {
		dist := levenshtein.ComputeDistance(strings.ToLower(input), strings.ToLower(candidate))
		if bestDist < 0 || dist < bestDist {
			best, bestDist = candidate, dist
		}
	}
	limit := len(input) / 2
	if limit < 2 {
		limit = 2
	}
	if bestDist > limit {
		return ""
	}
	return best
}
