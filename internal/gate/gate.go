// Package gate decides whether a protected view may be entered.
package gate

import (
	"sessionguard/internal/rbac"
	"sessionguard/internal/session"
	"sessionguard/pkg/metrics"

	"go.uber.org/zap"
)

// DefaultLoginView is where denied navigation is sent.
const DefaultLoginView = "/auth/login"

const (
	reasonNoCredential = "no_credential"
	reasonRoleMismatch = "role_mismatch"
	logDenied          = "navigation denied"
	gateLogName        = "gate"
)

// Route describes a navigable view. A nil PermittedRoles means any
// authenticated user may enter.
type Route struct {
	Name           string
	Path           string
	PermittedRoles rbac.RoleSet
}

// Decision is the outcome of one navigation attempt. Redirect is set only
// when the attempt was denied.
type Decision struct {
	Allowed  bool
	Redirect string
}

// Navigator performs the redirect for a denied attempt.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Authorizer is satisfied by *rbac.Evaluator.
type Authorizer interface {
	IsAuthorized(required rbac.RoleSet, token string) bool
}

type Options struct {
	LoginView string
	Navigator Navigator
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type Gate struct {
	tokens    session.TokenSource
	authz     Authorizer
	nav       Navigator
	loginView string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func New(tokens session.TokenSource, authz Authorizer, opts Options) *Gate {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	loginView := opts.LoginView
	if loginView == "" {
		loginView = DefaultLoginView
	}
	return &Gate{
		tokens:    tokens,
		authz:     authz,
		nav:       opts.Navigator,
		loginView: loginView,
		logger:    log.Named(gateLogName),
		metrics:   opts.Metrics,
	}
}

// LoginView returns the redirect target used for every denial.
func (g *Gate) LoginView() string {
	return g.loginView
}

// CanActivate decides one navigation attempt. The credential is read once and
// that value is used for the whole decision. Unauthenticated users and users
// lacking a role are sent to the same place.
func (g *Gate) CanActivate(route Route) Decision {
	token, ok := g.tokens.Token()

	switch {
	case !ok:
		return g.deny(route, reasonNoCredential)
	case !route.PermittedRoles.Declared():
		return g.allow(route)
	case g.authz.IsAuthorized(route.PermittedRoles, token):
		return g.allow(route)
	default:
		return g.deny(route, reasonRoleMismatch)
	}
}

func (g *Gate) allow(route Route) Decision {
	g.metrics.GateDecision(route.Name, true)
	return Decision{Allowed: true}
}

func (g *Gate) deny(route Route, reason string) Decision {
	g.metrics.GateDecision(route.Name, false)
	g.logger.Debug(logDenied,
		zap.String("route", route.Name),
		zap.String("path", route.Path),
		zap.String("reason", reason))

	if g.nav != nil {
		g.nav.Navigate(g.loginView)
	}
	return Decision{Allowed: false, Redirect: g.loginView}
}
