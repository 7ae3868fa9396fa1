package retrieval_http

import (
	"errors"
	"net/http"

	"hybrid-retrieval/internal/domain"

	"github.com/labstack/echo/v4"
)

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSourceFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	body := ErrorResponse{
		Kind:      domain.KindOf(err),
		RequestID: domain.RequestIDFrom(c.Request().Context()),
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	} else {
		body.Error = err.Error()
	}
	return c.JSON(status, body)
}
