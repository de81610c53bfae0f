package handler

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	apperrors "sessionguard/pkg/errors"

	"github.com/labstack/echo/v4"
)

const maxLoginBodyBytes int64 = 4 << 10

// decodeLoginRequest reads exactly one JSON login form. A non-JSON body is a
// 415; unknown fields, trailing data and oversized bodies are bad requests.
func decodeLoginRequest(c echo.Context) (LoginRequest, error) {
	var req LoginRequest

	mediaType, _, err := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if err != nil || mediaType != echo.MIMEApplicationJSON {
		return req, echo.NewHTTPError(http.StatusUnsupportedMediaType, msgContentTypeJSONRequired)
	}

	dec := json.NewDecoder(io.LimitReader(c.Request().Body, maxLoginBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, apperrors.BadRequest(msgInvalidRequestBody)
	}
	if _, err := dec.Token(); err != io.EOF {
		return req, apperrors.BadRequest(msgInvalidRequestBody)
	}

	return req, nil
}
