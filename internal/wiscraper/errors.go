package wiscraper

import (
	"errors"
	"fmt"
)

// Sentinel errors for the sweep core. Typed errors below match them via errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDateFormat      = errors.New("unrecognized date format")
	ErrMissingField    = errors.New("missing required field")
)

// DateFormatError reports a date string that is neither YYYY-MM-DD nor YYYY-MM
type DateFormatError struct {
	Value string
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("unrecognized date format: %q", e.Value)
}

// Is lets errors.Is(err, ErrDateFormat) match
func (e *DateFormatError) Is(target error) bool {
	return target == ErrDateFormat
}

// MissingFieldError reports a search row without an identifying field
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Is lets errors.Is(err, ErrMissingField) match
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// QueryError wraps the failure of a single (window, class code) pair
type QueryError struct {
	Window    SearchWindow
	ClassCode string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s class %s: %v", e.Window, e.ClassCode, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
