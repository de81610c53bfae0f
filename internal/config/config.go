package config

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"sessionguard/internal/gate"
	"sessionguard/internal/push"
	"sessionguard/internal/rbac"
)

const (
	envPort                  = "PORT"
	envServerReadTimeout     = "SERVER_READ_TIMEOUT"
	envServerWriteTimeout    = "SERVER_WRITE_TIMEOUT"
	envServerShutdownTimeout = "SERVER_SHUTDOWN_TIMEOUT"
	envAPIBaseURL            = "API_BASE_URL"
	envAPITimeout            = "API_TIMEOUT"
	envHubBaseURL            = "HUB_BASE_URL"
	envHubPath               = "HUB_PATH"
	envHubHandshakeTimeout   = "HUB_HANDSHAKE_TIMEOUT"
	envHubKeepAlive          = "HUB_KEEPALIVE"
	envLoginView             = "LOGIN_VIEW"
	envRoutes                = "SHELL_ROUTES"
	envLogLevel              = "LOG_LEVEL"
	envLogDevelopment        = "LOG_DEVELOPMENT"
	envLoginRateLimit        = "LOGIN_RATE_LIMIT"
	envLoginRateBurst        = "LOGIN_RATE_BURST"
)

const (
	defaultServerPort          = "8080"
	defaultServerReadTimeout   = 10 * time.Second
	defaultServerWriteTimeout  = 0
	defaultServerShutdown      = 10 * time.Second
	defaultAPITimeout          = 30 * time.Second
	defaultHubPath             = "/notificationHub"
	defaultHubHandshakeTimeout = 15 * time.Second
	defaultHubKeepAlive        = 15 * time.Second
	defaultRoutes              = "dashboard=/dashboard"
	defaultLogLevel            = "info"
	defaultLoginRateLimit      = 5
	defaultLoginRateBurst      = 10
	routeSeparator             = ";"
	routeFieldSeparator        = "="
	roleSeparator              = "|"
	errPortRequiredFmt         = "PORT must be set"
	errLoginViewFmt            = "LOGIN_VIEW must be an absolute path, got %q"
	errRateLimitFmt            = "LOGIN_RATE_LIMIT and LOGIN_RATE_BURST must be positive"
	errNoRoutesFmt             = "SHELL_ROUTES must declare at least one route"
	errInvalidConfigurationFmt = "invalid configuration: %w"
	ownerLoginView             = "it is the login view"
	ownerShell                 = "it is served by the shell"
)

// ShellPaths are the path prefixes the shell serves itself. Gated routes may
// not live under them.
var ShellPaths = []string{"/auth", "/api", "/events", "/health", "/metrics"}

type Config struct {
	Server    ServerConfig
	API       APIConfig
	Hub       HubConfig
	Session   SessionConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // zero keeps event streams open
	ShutdownTimeout time.Duration
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type HubConfig struct {
	BaseURL          string
	Path             string
	HandshakeTimeout time.Duration
	KeepAlive        time.Duration
}

type SessionConfig struct {
	LoginView string
	Routes    []gate.Route
}

type LogConfig struct {
	Level       string
	Development bool
}

type RateLimitConfig struct {
	LoginPerSecond int
	LoginBurst     int
}

func Load() (*Config, error) {
	apiBase := getEnv(envAPIBaseURL, "")

	routes, err := ParseRoutes(getEnv(envRoutes, defaultRoutes))
	if err != nil {
		return nil, fmt.Errorf(errInvalidConfigurationFmt, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv(envPort, defaultServerPort),
			ReadTimeout:     getDurationEnv(envServerReadTimeout, defaultServerReadTimeout),
			WriteTimeout:    getDurationEnv(envServerWriteTimeout, defaultServerWriteTimeout),
			ShutdownTimeout: getDurationEnv(envServerShutdownTimeout, defaultServerShutdown),
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(apiBase, "/"),
			Timeout: getDurationEnv(envAPITimeout, defaultAPITimeout),
		},
		Hub: HubConfig{
			BaseURL:          strings.TrimRight(getEnv(envHubBaseURL, apiBase), "/"),
			Path:             getEnv(envHubPath, defaultHubPath),
			HandshakeTimeout: getDurationEnv(envHubHandshakeTimeout, defaultHubHandshakeTimeout),
			KeepAlive:        getDurationEnv(envHubKeepAlive, defaultHubKeepAlive),
		},
		Session: SessionConfig{
			LoginView: getEnv(envLoginView, gate.DefaultLoginView),
			Routes:    routes,
		},
		Log: LogConfig{
			Level:       getEnv(envLogLevel, defaultLogLevel),
			Development: getBoolEnv(envLogDevelopment, false),
		},
		RateLimit: RateLimitConfig{
			LoginPerSecond: getIntEnv(envLoginRateLimit, defaultLoginRateLimit),
			LoginBurst:     getIntEnv(envLoginRateBurst, defaultLoginRateBurst),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf(errInvalidConfigurationFmt, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf(errPortRequiredFmt)
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("%s", messages.requiredEnvNotSet(envAPIBaseURL))
	}

	if err := validateHTTPURL(envAPIBaseURL, c.API.BaseURL); err != nil {
		return err
	}

	if err := validateHTTPURL(envHubBaseURL, c.Hub.BaseURL); err != nil {
		return err
	}

	if !strings.HasPrefix(c.Session.LoginView, "/") {
		return fmt.Errorf(errLoginViewFmt, c.Session.LoginView)
	}

	if len(c.Session.Routes) == 0 {
		return fmt.Errorf(errNoRoutesFmt)
	}

	if err := c.Session.validateRoutes(); err != nil {
		return err
	}

	if c.RateLimit.LoginPerSecond <= 0 || c.RateLimit.LoginBurst <= 0 {
		return fmt.Errorf(errRateLimitFmt)
	}

	return nil
}

// validateRoutes keeps gated routes off the login view, off the shell's own
// paths and off each other.
func (s *SessionConfig) validateRoutes() error {
	loginView := path.Clean(s.LoginView)
	taken := make(map[string]string, len(s.Routes))

	for _, route := range s.Routes {
		p := path.Clean(route.Path)
		if p == loginView {
			return fmt.Errorf("%s", messages.routePathTaken(route.Name, route.Path, ownerLoginView))
		}
		for _, prefix := range ShellPaths {
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				return fmt.Errorf("%s", messages.routePathTaken(route.Name, route.Path, ownerShell))
			}
		}
		if other, ok := taken[p]; ok {
			return fmt.Errorf("%s", messages.routePathTaken(route.Name, route.Path, "it belongs to route "+other))
		}
		taken[p] = route.Name
	}
	return nil
}

// HubEndpoint is the push hub address: the hub base URL joined with the hub
// path.
func (c *HubConfig) HubEndpoint() string {
	return push.HubURL(c.BaseURL, c.Path)
}

// ParseRoutes reads the shell's route table. Routes are separated by ";" and
// written name=path or name=path=Role1|Role2. Leaving out the third field
// declares no role requirement; an empty third field admits nobody.
func ParseRoutes(raw string) ([]gate.Route, error) {
	var routes []gate.Route
	seen := make(map[string]bool)

	for _, entry := range strings.Split(raw, routeSeparator) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		fields := strings.SplitN(entry, routeFieldSeparator, 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s", messages.invalidRoute(entry))
		}
		name := strings.TrimSpace(fields[0])
		path := strings.TrimSpace(fields[1])
		if name == "" || !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("%s", messages.invalidRoute(entry))
		}
		if seen[name] {
			return nil, fmt.Errorf("%s", messages.duplicateRoute(name))
		}
		seen[name] = true

		route := gate.Route{Name: name, Path: path}
		if len(fields) == 3 {
			route.PermittedRoles = parseRoles(fields[2])
		}
		routes = append(routes, route)
	}

	return routes, nil
}

func parseRoles(raw string) rbac.RoleSet {
	roles := rbac.Roles()
	for _, r := range strings.Split(raw, roleSeparator) {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

func validateHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s", messages.invalidURL(key, raw))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
