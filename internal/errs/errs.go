// Package errs holds the error taxonomy shared by the resolution engine and
// its leaf packages. The root package re-exports the sentinels.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema marks a malformed option declaration.
	ErrSchema = errors.New("schema error")
	// ErrType marks a literal of the wrong shape (e.g. non-integer).
	ErrType = errors.New("type error")
	// ErrRange marks a number outside its allowed bounds.
	ErrRange = errors.New("range error")
	// ErrValue marks a value outside its allowed set or an illegal combination.
	ErrValue = errors.New("value error")
	// ErrAssertion marks arguments that a selected mode does not accept.
	ErrAssertion = errors.New("assertion error")
	// ErrMissingResource marks a referenced file or date that does not exist.
	ErrMissingResource = errors.New("missing resource")
)

// Error tags a failure with one of the sentinels above and, when known, the
// option it concerns.
type Error struct {
	Kind   error
	Option string
	Msg    string
	Err    error
}

// New builds an Error of kind with a formatted message.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Msg
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case msg != "" && e.Err != nil:
		msg = msg + ": " + e.Err.Error()
	case msg == "":
		msg = KindName(e.Kind)
	}
	if e.Option != "" {
		return fmt.Sprintf("opts: %s: %s", e.Option, msg)
	}
	return "opts: " + msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Attach records option on err. Errors that already name an option are
// returned untouched; foreign errors are wrapped as ErrValue.
func Attach(err error, option string) error {
	if err == nil || option == "" {
		return err
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		if tagged.Option != "" {
			return err
		}
		clone := *tagged
		clone.Option = option
		return &clone
	}
	return &Error{Kind: ErrValue, Option: option, Err: err}
}

// KindOf reports which sentinel err carries, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrSchema, ErrType, ErrRange, ErrAssertion, ErrMissingResource, ErrValue} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName returns the human label for a sentinel.
func KindName(kind error) string {
	switch kind {
	case ErrSchema:
		return "SchemaError"
	case ErrType:
		return "TypeError"
	case ErrRange:
		return "RangeError"
	case ErrValue:
		return "ValueError"
	case ErrAssertion:
		return "AssertionError"
	case ErrMissingResource:
		return "MissingResourceError"
	default:
		return "Error"
	}
}
