package http

import (
	"context"
	"net/http"
	"net/url"

	"sessionguard/internal/config"
	"sessionguard/internal/gate"
	"sessionguard/internal/http/handler"
	"sessionguard/internal/http/middleware"
	"sessionguard/pkg/metrics"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	jsonKeyStatus    = "status"
	statusOK         = "ok"
	requestBodyLimit = "1M"
	apiPrefix        = "/api"
)

type ServerDependencies struct {
	Config      *config.Config
	Session     handler.SessionController
	Gate        middleware.Activator
	Signer      http.RoundTripper
	Broadcaster *handler.Broadcaster
	Audit       handler.Auditor
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type Server struct {
	echo *echo.Echo
	deps *ServerDependencies
}

// NewServer builds the shell. An unparsable API base URL is the only error.
func NewServer(deps *ServerDependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	apiBase, err := url.Parse(deps.Config.API.BaseURL)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = NewHTTPErrorHandler(logger.Named("http"))

	e.Server.ReadTimeout = deps.Config.Server.ReadTimeout
	e.Server.WriteTimeout = deps.Config.Server.WriteTimeout
	// Shutdown does not cancel request contexts; event streams end here.
	e.Server.RegisterOnShutdown(deps.Broadcaster.Close)

	// Request ID middleware (first, so all logs have request ID)
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.AccessLog(logger.Named("access")))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.BodyLimit(requestBodyLimit))
	if deps.Metrics != nil {
		e.Use(deps.Metrics.Middleware())
		e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}

	loginRateLimiter := middleware.NewRateLimiter(deps.Config.RateLimit.LoginPerSecond, deps.Config.RateLimit.LoginBurst)

	authHandler := handler.NewAuthHandler(deps.Session, deps.Audit, logger)
	viewHandler := handler.NewViewHandler(deps.Session)
	eventsHandler := handler.NewEventsHandler(deps.Broadcaster)

	e.GET("/health", healthCheck)
	e.POST("/auth/login", authHandler.Login, loginRateLimiter.Middleware())
	e.POST("/auth/logout", authHandler.Logout)
	e.GET("/auth/me", authHandler.Me)
	e.GET("/events", eventsHandler.Stream)
	e.GET(deps.Config.Session.LoginView, viewHandler.Login)

	for _, route := range deps.Config.Session.Routes {
		e.GET(route.Path, viewHandler.Show(route), middleware.RequireRoute(deps.Gate, route))
	}

	api := e.Group(apiPrefix, middleware.StripAuthorization())
	api.Use(echomiddleware.ProxyWithConfig(echomiddleware.ProxyConfig{
		Balancer:  echomiddleware.NewRoundRobinBalancer([]*echomiddleware.ProxyTarget{{URL: apiBase}}),
		Rewrite:   map[string]string{apiPrefix + "/*": "/$1"},
		Transport: deps.Signer,
	}))

	return &Server{
		echo: e,
		deps: deps,
	}, nil
}

// Routes lists the gated views served by the shell.
func (s *Server) Routes() []gate.Route {
	return s.deps.Config.Session.Routes
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets tests drive the shell without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		jsonKeyStatus: statusOK,
	})
}
