package api

import (
	"errors"

	domrepo "SignalHub/internal/domain/repository"
	xhttp "SignalHub/pkg/http"

	"github.com/labstack/echo/v4"
)

// errorResponse maps domain errors onto transport errors.
func errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("resource not found").WithError(err))
	case errors.Is(err, domrepo.ErrPersistence):
		return xhttp.AppErrorResponse(c, xhttp.PersistenceError(err))
	}
	return xhttp.AppErrorResponse(c, err)
}
