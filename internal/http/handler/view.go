package handler

import (
	"net/http"

	"sessionguard/internal/claims"
	"sessionguard/internal/gate"

	"github.com/labstack/echo/v4"
)

type ViewHandler struct {
	session SessionController
}

func NewViewHandler(session SessionController) *ViewHandler {
	return &ViewHandler{session: session}
}

// ViewResponse describes the view that was entered.
type ViewResponse struct {
	Route string           `json:"route"`
	Path  string           `json:"path"`
	User  *claims.Identity `json:"user,omitempty"`
}

// Show renders route. The gate has already admitted the request.
func (h *ViewHandler) Show(route gate.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := ViewResponse{Route: route.Name, Path: route.Path}
		if identity, err := h.session.CurrentUser(); err == nil {
			resp.User = identity
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// Login is the view every denied navigation lands on.
func (h *ViewHandler) Login(c echo.Context) error {
	return respondMessage(c, http.StatusOK, msgLoginRequired)
}
