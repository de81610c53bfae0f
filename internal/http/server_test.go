package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sessionguard/internal/authapi"
	"sessionguard/internal/config"
	"sessionguard/internal/gate"
	"sessionguard/internal/http/handler"
	"sessionguard/internal/push"
	"sessionguard/internal/rbac"
	"sessionguard/internal/session"
	"sessionguard/internal/signer"
	"sessionguard/pkg/metrics"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shell struct {
	server      *Server
	controller  *session.Controller
	broadcaster *handler.Broadcaster
	backendAuth []string
}

func newShell(t *testing.T, roles string) *shell {
	t.Helper()
	sh := &shell{}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "u-1",
		"name":   "Ada",
		"role":   roles,
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case authapi.PathLogin:
			_ = json.NewEncoder(w).Encode(authapi.ResponseMessage{IsSuccess: true, Token: token})
		case authapi.PathLogout:
			w.WriteHeader(http.StatusOK)
		case "/orders":
			sh.backendAuth = append(sh.backendAuth, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`[]`))
		case "/admin":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(backend.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", ReadTimeout: time.Second},
		API:    config.APIConfig{BaseURL: backend.URL},
		Session: config.SessionConfig{
			LoginView: gate.DefaultLoginView,
			Routes: []gate.Route{
				{Name: "dashboard", Path: "/dashboard"},
				{Name: "reports", Path: "/reports", PermittedRoles: rbac.Roles("Admin")},
			},
		},
		RateLimit: config.RateLimitConfig{LoginPerSecond: 100, LoginBurst: 100},
	}

	m := metrics.New()
	sh.broadcaster = handler.NewBroadcaster(nil)
	sh.controller = session.NewController(session.Options{
		API: authapi.New(backend.URL, nil),
		Dialer: push.DialerFunc(func(context.Context, string, push.TokenFactory) (push.Conn, error) {
			return nil, errors.New("hub offline")
		}),
		Metrics: m,
	})
	sh.controller.Subscribe(sh.broadcaster.SessionEvent)

	g := gate.New(sh.controller.Tokens(), rbac.NewEvaluator(nil), gate.Options{Navigator: sh.broadcaster, Metrics: m})
	tr, err := signer.New(nil, sh.controller.Tokens(), sh.controller, signer.Options{
		Scope:     backend.URL,
		Navigator: sh.broadcaster,
		Metrics:   m,
	})
	require.NoError(t, err)

	sh.server, err = NewServer(&ServerDependencies{
		Config:      cfg,
		Session:     sh.controller,
		Gate:        g,
		Signer:      tr,
		Broadcaster: sh.broadcaster,
		Metrics:     m,
	})
	require.NoError(t, err)
	return sh
}

func (sh *shell) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	sh.server.ServeHTTP(rec, req)
	return rec
}

func (sh *shell) login(t *testing.T) {
	t.Helper()
	rec := sh.do(http.MethodPost, "/auth/login", `{"userName":"ada","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handler.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Channel, "hub offline must not fail the login")
}

func TestHealth(t *testing.T) {
	sh := newShell(t, "Admin")
	rec := sh.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestGatedViews(t *testing.T) {
	sh := newShell(t, "Viewer")

	rec := sh.do(http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, gate.DefaultLoginView, rec.Header().Get("Location"))

	sh.login(t)

	rec = sh.do(http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Ada"`)

	rec = sh.do(http.MethodGet, "/reports", "")
	assert.Equal(t, http.StatusFound, rec.Code, "wrong role lands on the login view too")
	assert.Equal(t, gate.DefaultLoginView, rec.Header().Get("Location"))

	rec = sh.do(http.MethodGet, gate.DefaultLoginView, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProxySignsRequests(t *testing.T) {
	sh := newShell(t, "Admin")
	sh.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	sh.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sh.backendAuth, 1)
	assert.True(t, strings.HasPrefix(sh.backendAuth[0], "Bearer ey"), "shell credential replaces the caller's")
}

func TestUpstreamRejectionEndsSession(t *testing.T) {
	sh := newShell(t, "Admin")
	sh.login(t)
	stream, cancel := sh.broadcaster.Subscribe()
	defer cancel()

	rec := sh.do(http.MethodGet, "/api/admin", "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "rejection reaches the caller")

	assert.False(t, sh.controller.Authenticated())
	rec = sh.do(http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = sh.do(http.MethodGet, "/reports", "")
	assert.Equal(t, http.StatusFound, rec.Code)

	var types []string
	for len(stream) > 0 {
		types = append(types, (<-stream).Type)
	}
	assert.Contains(t, types, handler.StreamSession)
	assert.Contains(t, types, handler.StreamNavigate)
}

func TestLogout(t *testing.T) {
	sh := newShell(t, "Admin")
	sh.login(t)

	rec := sh.do(http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sh.controller.Authenticated())
}

func TestMetricsEndpoint(t *testing.T) {
	sh := newShell(t, "Admin")
	sh.do(http.MethodGet, "/dashboard", "")

	rec := sh.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sessionguard_gate_decisions_total")
}

func TestShutdownWithOpenEventStream(t *testing.T) {
	sh := newShell(t, "Admin")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	sh.server.echo.Listener = ln

	served := make(chan error, 1)
	go func() { served <- sh.server.Start("") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+ln.Addr().String()+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	require.NoError(t, sh.server.Shutdown(shutdownCtx), "open streams must not hold shutdown")
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
}
