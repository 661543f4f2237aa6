package opts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jyscao/tail-risk/internal/errs"
)

// Error kinds. Every resolution failure matches exactly one of these with
// errors.Is; MissingDatesError matches both ErrValue and ErrMissingResource.
var (
	ErrSchema          = errs.ErrSchema
	ErrType            = errs.ErrType
	ErrRange           = errs.ErrRange
	ErrValue           = errs.ErrValue
	ErrAssertion       = errs.ErrAssertion
	ErrMissingResource = errs.ErrMissingResource
)

// ResolutionError tags a failure with its kind and the option it concerns.
type ResolutionError = errs.Error

// KindOf returns the error kind sentinel err matches, nil when none.
func KindOf(err error) error {
	return errs.KindOf(err)
}

// KindName returns the display name of the kind err matches.
func KindName(err error) string {
	return errs.KindName(errs.KindOf(err))
}

// MissingDatesError lists the dates absent from a dataset index.
type MissingDatesError struct {
	Table string
	Dates []string
}

func (e *MissingDatesError) Error() string {
	if e == nil {
		return "<nil>"
	}
	where := "the dataset"
	if e.Table != "" {
		where = fmt.Sprintf("dataset '%s'", e.Table)
	}
	return fmt.Sprintf("opts: dates missing from %s: [%s]", where, strings.Join(e.Dates, ", "))
}

// Is matches ErrValue and ErrMissingResource.
func (e *MissingDatesError) Is(target error) bool {
	return target == ErrValue || target == ErrMissingResource
}

// AsMissingDates extracts a MissingDatesError from err.
func AsMissingDates(err error) (*MissingDatesError, bool) {
	var missing *MissingDatesError
	if errors.As(err, &missing) {
		return missing, true
	}
	return nil, false
}
