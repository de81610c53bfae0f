package handler

import (
	"net/http"

	"sessionguard/internal/authapi"
	"sessionguard/internal/claims"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type AuthHandler struct {
	session SessionController
	auditor Auditor
	logger  *zap.Logger
}

// NewAuthHandler builds the login endpoints. auditor may be nil.
func NewAuthHandler(session SessionController, auditor Auditor, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{session: session, auditor: auditor, logger: logger.Named("auth")}
}

type LoginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// LoginResponse reports the signed-in identity. Channel is false when the
// forced-logout channel could not be opened; the session is usable anyway.
type LoginResponse struct {
	User    *claims.Identity `json:"user"`
	Channel bool             `json:"channel"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	req, err := decodeLoginRequest(c)
	if err != nil {
		return RespondWithMappedError(c, err)
	}

	ctx := c.Request().Context()
	identity, err := h.session.Login(ctx, authapi.Credentials{UserName: req.UserName, Password: req.Password})
	if err != nil {
		h.logger.Warn("login failed", zap.Error(err))
		if h.auditor != nil {
			h.auditor.LoginFailure(c, req.UserName, err)
		}
		return RespondWithMappedError(c, err)
	}

	channel := true
	if err := h.session.OpenChannel(ctx); err != nil {
		h.logger.Warn("forced logout channel unavailable", zap.Error(err))
		channel = false
	}

	return c.JSON(http.StatusOK, LoginResponse{User: identity, Channel: channel})
}

// Logout always succeeds from the caller's point of view: the local session
// is gone even when the backend could not be told.
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.session.Logout(c.Request().Context()); err != nil {
		h.logger.Warn("logout incomplete", zap.Error(err))
	}
	return respondMessage(c, http.StatusOK, msgLoggedOut)
}

func (h *AuthHandler) Me(c echo.Context) error {
	identity, err := h.session.CurrentUser()
	if err != nil {
		return RespondWithMappedError(c, err)
	}
	return c.JSON(http.StatusOK, identity)
}
