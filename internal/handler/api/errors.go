package api

import (
	"context"
	"errors"
	"strings"

	"ModelHub/internal/domain/models"
	xhttp "ModelHub/pkg/http"
)

// toAppError maps domain failures onto HTTP errors. Unknown errors stay 500.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var e *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrNotFound):
		e = xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrInvalidParameter),
		errors.Is(err, models.ErrEmptyInput),
		errors.Is(err, models.ErrInvalidWindow),
		errors.Is(err, models.ErrUnsupportedFamily):
		e = xhttp.BadRequestError(err.Error())
	case errors.Is(err, models.ErrConvergence),
		errors.Is(err, models.ErrAlignment):
		e = xhttp.UnprocessableError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		e = xhttp.TimeoutError("training deadline exceeded")
	default:
		e = xhttp.InternalError("internal error")
	}
	e.Code = "ERR_" + strings.ToUpper(models.ErrorKind(err))
	return e.WithError(err)
}
