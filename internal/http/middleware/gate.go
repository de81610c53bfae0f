package middleware

import (
	"net/http"

	"sessionguard/internal/gate"

	"github.com/labstack/echo/v4"
)

// ContextKeyRoute holds the name of the route a request was admitted to.
const ContextKeyRoute = "route"

// Activator is satisfied by *gate.Gate.
type Activator interface {
	CanActivate(route gate.Route) gate.Decision
}

// RequireRoute admits the request only if the gate allows entering route.
// Denied requests are redirected to the login view, whatever the reason.
func RequireRoute(g Activator, route gate.Route) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := g.CanActivate(route)
			if !decision.Allowed {
				return c.Redirect(http.StatusFound, decision.Redirect)
			}

			c.Set(ContextKeyRoute, route.Name)
			return next(c)
		}
	}
}

// StripAuthorization drops any credential the caller sent; the shell signs
// outbound calls with its own.
func StripAuthorization() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Request().Header.Del(echo.HeaderAuthorization)
			return next(c)
		}
	}
}
