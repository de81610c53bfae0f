package http

import (
	"net/http"

	"sessionguard/internal/http/handler"
	"sessionguard/internal/http/middleware"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// NewHTTPErrorHandler handles all errors returned by handlers and middleware.
// Every error goes through the public error mapping so internal detail never
// reaches the client.
func NewHTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, message := handler.MapToPublicError(err)

		requestID := middleware.GetRequestID(c)
		if requestID == "" {
			requestID = "unknown"
		}

		fields := []zap.Field{
			zap.String(middleware.RequestIDContextKey, requestID),
			zap.Int("status", code),
			zap.Error(err),
		}
		if code >= http.StatusInternalServerError {
			logger.Error("internal_server_error", fields...)
		} else {
			logger.Warn("client_error", fields...)
		}

		if err := c.JSON(code, map[string]interface{}{
			"error":      message,
			"request_id": requestID,
		}); err != nil {
			logger.Error("write error response", zap.Error(err))
		}
	}
}
