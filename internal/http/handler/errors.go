package handler

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "sessionguard/pkg/errors"

	"github.com/labstack/echo/v4"
)

// MapToPublicError maps an error to the status and message a caller sees.
// Every authorization failure maps to the same answer so callers cannot tell
// which check failed. Echo's own errors keep their status.
func MapToPublicError(err error) (int, string) {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code, publicHTTPMessage(httpErr)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgInvalidCredentials
	case errors.Is(err, apperrors.ErrInternal):
		return http.StatusInternalServerError, msgInternal
	case apperrors.IsAbsorbed(err), errors.Is(err, apperrors.ErrUpstreamAuthFailure):
		return http.StatusUnauthorized, msgAuthRequired
	case errors.Is(err, apperrors.ErrBadRequest):
		return http.StatusBadRequest, msgBadRequest
	case errors.Is(err, apperrors.ErrUnavailable):
		return http.StatusBadGateway, msgUpstreamUnavailable
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// RespondWithMappedError writes err as {"error": ...} after public mapping.
func RespondWithMappedError(c echo.Context, err error) error {
	status, msg := MapToPublicError(err)
	return respondError(c, status, msg)
}

func publicHTTPMessage(he *echo.HTTPError) string {
	if he.Code >= http.StatusInternalServerError {
		return msgInternal
	}
	if msg, ok := he.Message.(string); ok && msg != "" {
		return msg
	}
	if he.Message != nil {
		return fmt.Sprint(he.Message)
	}
	return http.StatusText(he.Code)
}

func respondError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{jsonKeyError: message})
}

func respondMessage(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{jsonKeyMessage: message})
}
