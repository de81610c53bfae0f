// Package signer attaches the session credential to outbound requests and
// ends the session when the backend rejects it.
package signer

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"sessionguard/internal/gate"
	"sessionguard/internal/session"
	apperrors "sessionguard/pkg/errors"
	"sessionguard/pkg/logger"
	"sessionguard/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
	BearerPrefix        = "Bearer "

	logRejected   = "backend rejected session credential"
	signerLogName = "signer"
)

// Terminator ends the current session. *session.Controller satisfies it.
type Terminator interface {
	Teardown(reason session.Reason)
}

type Options struct {
	// Scope limits signing to URLs under this base. Empty signs everything.
	Scope     string
	LoginView string
	Navigator gate.Navigator
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Transport is an http.RoundTripper that signs requests with the current
// credential. A 401 or 403 answer to a signed request tears the session down
// and redirects to the login view; the response itself is returned as is.
type Transport struct {
	base      http.RoundTripper
	tokens    session.TokenSource
	session   Terminator
	scope     *url.URL
	nav       gate.Navigator
	loginView string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New wraps base, which defaults to http.DefaultTransport. An unparsable
// Scope is returned as an error.
func New(base http.RoundTripper, tokens session.TokenSource, term Terminator, opts Options) (*Transport, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	loginView := opts.LoginView
	if loginView == "" {
		loginView = gate.DefaultLoginView
	}

	t := &Transport{
		base:      base,
		tokens:    tokens,
		session:   term,
		nav:       opts.Navigator,
		loginView: loginView,
		logger:    log.Named(signerLogName),
		metrics:   opts.Metrics,
	}
	if opts.Scope != "" {
		u, err := url.Parse(opts.Scope)
		if err != nil {
			return nil, err
		}
		u.Path = strings.TrimRight(u.Path, "/")
		t.scope = u
	}
	return t, nil
}

// Client returns an http.Client that uses t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok := t.tokens.Token()
	if !ok || !t.inScope(req.URL) {
		return t.base.RoundTrip(req)
	}

	signed := req.Clone(req.Context())
	signed.Header.Set(HeaderAuthorization, BearerPrefix+token)
	if signed.Header.Get(HeaderRequestID) == "" {
		signed.Header.Set(HeaderRequestID, uuid.NewString())
	}
	t.metrics.SignedRequest()

	resp, err := t.base.RoundTrip(signed)
	switch {
	case err != nil && errors.Is(err, apperrors.ErrUpstreamAuthFailure):
		t.rejected(signed, token, 0)
	case err == nil && IsUpstreamAuthFailure(resp):
		t.rejected(signed, token, resp.StatusCode)
	}
	return resp, err
}

// IsUpstreamAuthFailure reports whether resp means the credential was refused.
func IsUpstreamAuthFailure(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
}

func (t *Transport) rejected(req *http.Request, token string, status int) {
	t.metrics.UpstreamAuthFailure(status)
	t.logger.Warn(logRejected,
		zap.Int("status", status),
		zap.String("method", req.Method),
		zap.String("url", logger.Sanitize(req.URL.Redacted())),
		zap.String("request_id", req.Header.Get(HeaderRequestID)),
		logger.Session(token))
	t.logger.Debug(logRejected, zap.Any("headers", logger.SanitizeHeaders(req.Header)))

	if t.session != nil {
		t.session.Teardown(session.ReasonUpstreamAuthFailure)
	}
	if t.nav != nil {
		t.nav.Navigate(t.loginView)
	}
}

func (t *Transport) inScope(u *url.URL) bool {
	if t.scope == nil {
		return true
	}
	if !strings.EqualFold(u.Scheme, t.scope.Scheme) || !strings.EqualFold(u.Host, t.scope.Host) {
		return false
	}
	if t.scope.Path == "" {
		return true
	}
	return u.Path == t.scope.Path || strings.HasPrefix(u.Path, t.scope.Path+"/")
}
