package models

import (
	"context"
	"errors"
)

// Error taxonomy shared by the preprocessing and forecasting layers.
// Callers match with errors.Is; every failure is scoped to the call that produced it.
var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrEmptyInput        = errors.New("empty input")
	ErrInvalidWindow     = errors.New("invalid window")
	ErrConvergence       = errors.New("fit did not converge")
	ErrAlignment         = errors.New("actual and predicted lengths differ")
	ErrUnsupportedFamily = errors.New("unsupported model family")
	ErrNotFound          = errors.New("not found")
)

// ErrorKind returns a stable low-cardinality label for err, used by metrics and run events.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, ErrConvergence):
		return "convergence"
	case errors.Is(err, ErrAlignment):
		return "alignment"
	case errors.Is(err, ErrUnsupportedFamily):
		return "unsupported_family"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
