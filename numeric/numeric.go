// Package numeric converts command-line numeric literals into integer or
// floating point values.
//
// The command line cannot carry a literal minus sign in option values, so a
// leading underscore stands for negation: "_2" parses as -2.
package numeric

import (
	"math"
	"strconv"
	"strings"

	"github.com/jyscao/tail-risk/internal/errs"
)

// SignEscape is the token that negates the literal it prefixes.
const SignEscape = "_"

// MaxExactInt is the largest magnitude a float64 holds without losing
// integer precision. Whole numbers beyond it are kept as floats.
const MaxExactInt = 1 << 53

// Number is the result of Parse. It is integral when the parsed value has no
// fractional part and its magnitude is at most MaxExactInt; callers must not
// assume either representation.
type Number struct {
	value    float64
	integral bool
}

// Int builds an integral Number.
func Int(v int64) Number {
	return Number{value: float64(v), integral: true}
}

// Float builds a Number from f, integral when f is a whole number within
// ±MaxExactInt.
func Float(f float64) Number {
	return Number{value: f, integral: wholeNumber(f) && math.Abs(f) <= MaxExactInt}
}

func wholeNumber(f float64) bool {
	return f == math.Trunc(f)
}

// IsInt reports whether the value is integral.
func (n Number) IsInt() bool { return n.integral }

// Int returns the value truncated to an integer, saturating at the int64
// bounds. Parse with MustBeInteger guarantees the result is exact.
func (n Number) Int() int64 {
	switch {
	case n.value >= math.MaxInt64:
		return math.MaxInt64
	case n.value <= math.MinInt64:
		return math.MinInt64
	}
	return int64(n.value)
}

// Float returns the value as a float64.
func (n Number) Float() float64 { return n.value }

// Value returns an int64 for integral numbers and a float64 otherwise.
func (n Number) Value() any {
	if n.integral {
		return int64(n.value)
	}
	return n.value
}

// Neg returns -n.
func (n Number) Neg() Number {
	if n.value == 0 {
		return n
	}
	return Number{value: -n.value, integral: n.integral}
}

func (n Number) String() string {
	if n.integral {
		return strconv.FormatInt(int64(n.value), 10)
	}
	return strconv.FormatFloat(n.value, 'g', -1, 64)
}

// Option constrains Parse.
type Option func(*constraints)

type constraints struct {
	mustBeInt bool
	min       *float64
	max       *float64
	typeMsg   string
	rangeMsg  string
}

// MustBeInteger rejects non-integral values with a type error.
func MustBeInteger() Option {
	return func(c *constraints) { c.mustBeInt = true }
}

// Min sets the inclusive lower bound.
func Min(v float64) Option {
	return func(c *constraints) { c.min = &v }
}

// Max sets the inclusive upper bound.
func Max(v float64) Option {
	return func(c *constraints) { c.max = &v }
}

// TypeMessage overrides the message used for integrality failures.
func TypeMessage(msg string) Option {
	return func(c *constraints) { c.typeMsg = msg }
}

// RangeMessage overrides the message used for bound failures.
func RangeMessage(msg string) Option {
	return func(c *constraints) { c.rangeMsg = msg }
}

// Parse converts text into a Number. Text that is not a number is an
// ErrValue, a non-integral value under MustBeInteger (or a non-finite value)
// is an ErrType, and a value outside the bounds is an ErrRange. Bounds apply
// to the signed value.
func Parse(text string, opts ...Option) (Number, error) {
	c := constraints{}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	raw := strings.TrimSpace(text)
	sign := 1.0
	if strings.HasPrefix(raw, SignEscape) {
		sign = -1
		raw = raw[len(SignEscape):]
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Number{}, errs.New(errs.ErrValue, "could not convert %q to a number", text)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Number{}, errs.New(errs.ErrType, "input value must be a finite number, given %s", text)
	}
	f *= sign
	if f == 0 {
		f = 0 // drop negative zero
	}

	n := Float(f)
	if c.mustBeInt && wholeNumber(f) && !n.integral {
		return Number{}, rangeError(c, "within ±"+strconv.FormatInt(MaxExactInt, 10), text)
	}
	if c.mustBeInt && !n.integral {
		if c.typeMsg != "" {
			return Number{}, errs.New(errs.ErrType, "%s", c.typeMsg)
		}
		return Number{}, errs.New(errs.ErrType, "input value must be an INT, given %s", text)
	}
	if c.min != nil && f < *c.min {
		return Number{}, rangeError(c, ">= "+formatBound(*c.min), text)
	}
	if c.max != nil && f > *c.max {
		return Number{}, rangeError(c, "<= "+formatBound(*c.max), text)
	}
	return n, nil
}

// Negate toggles the sign escape on text.
func Negate(text string) string {
	if strings.HasPrefix(text, SignEscape) {
		return text[len(SignEscape):]
	}
	return SignEscape + text
}

// IsDecimal reports whether text consists only of ASCII digits.
func IsDecimal(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func rangeError(c constraints, cond, text string) error {
	if c.rangeMsg != "" {
		return errs.New(errs.ErrRange, "%s", c.rangeMsg)
	}
	return errs.New(errs.ErrRange, "number must be %s, given %s", cond, text)
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
