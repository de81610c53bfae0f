package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"sessionguard/internal/gate"
	"sessionguard/internal/rbac"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGate struct {
	decision gate.Decision
	routes   []gate.Route
}

func (s *stubGate) CanActivate(route gate.Route) gate.Decision {
	s.routes = append(s.routes, route)
	return s.decision
}

func ok(c echo.Context) error {
	return c.String(http.StatusOK, "view")
}

func TestRequireRoute(t *testing.T) {
	route := gate.Route{Name: "reports", Path: "/reports", PermittedRoles: rbac.Roles("Admin")}

	t.Run("allowed", func(t *testing.T) {
		g := &stubGate{decision: gate.Decision{Allowed: true}}
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/reports", nil), rec)

		require.NoError(t, RequireRoute(g, route)(ok)(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "reports", c.Get(ContextKeyRoute))
		assert.Equal(t, []gate.Route{route}, g.routes)
	})

	t.Run("denied", func(t *testing.T) {
		g := &stubGate{decision: gate.Decision{Redirect: "/auth/login"}}
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/reports", nil), rec)

		require.NoError(t, RequireRoute(g, route)(ok)(c))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/auth/login", rec.Header().Get(echo.HeaderLocation))
	})
}

func TestRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	var seen string
	e.GET("/", func(c echo.Context) error {
		seen = c.Request().Header.Get(RequestIDHeader)
		return c.String(http.StatusOK, GetRequestID(c))
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rec.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, seen, "request carries the minted ID")
	assert.Equal(t, generated, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

func TestAccessLogPassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(AccessLog(zap.NewNop()))
	e.GET("/", ok)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/", ok)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestStripAuthorization(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer forged")
	c := e.NewContext(req, httptest.NewRecorder())

	require.NoError(t, StripAuthorization()(func(c echo.Context) error {
		assert.Empty(t, c.Request().Header.Get(echo.HeaderAuthorization))
		return nil
	})(c))
}
