// Package session owns the client-held credential: login, logout, the forced
// logout channel and teardown after the backend rejects the credential.
package session

import (
	"context"
	"sync"
	"time"

	"sessionguard/internal/authapi"
	"sessionguard/internal/claims"
	"sessionguard/internal/push"
	apperrors "sessionguard/pkg/errors"
	"sessionguard/pkg/logger"
	"sessionguard/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	msgNoSession        = "no active session"
	msgUndecodableToken = "login returned an unreadable token"
	msgSessionEnded     = "session ended while the push channel was opening"

	logLoggedIn          = "session started"
	logTornDown          = "session ended"
	logStaleForce        = "forced logout from a stale channel ignored"
	logCloseFailed       = "closing push channel failed"
	logChannelLost       = "push channel ended while session active"
	logChannelOpened     = "push channel opened"
	logChannelFailed     = "push channel open failed"
	logChannelSuperseded = "session ended while push channel was dialling"
	logLogoutEndpoint    = "logout endpoint failed; session cleared locally"
	controllerLogName    = "session"
	fieldSessionID       = "session_id"
	fieldUserID          = "user_id"
)

// AuthAPI is the backend authentication surface the controller needs.
type AuthAPI interface {
	Login(ctx context.Context, creds authapi.Credentials) (string, error)
	Logout(ctx context.Context, token string) error
}

// Options configures a Controller. Store defaults to a MemoryStore and Logger
// to a no-op logger. Metrics may be nil.
type Options struct {
	Store       Store
	API         AuthAPI
	Dialer      push.Dialer
	HubEndpoint string
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Controller is the only writer of the credential store. Every path that ends
// a session goes through Teardown.
type Controller struct {
	store    Store
	api      AuthAPI
	dialer   push.Dialer
	endpoint string
	logger   *zap.Logger
	metrics  *metrics.Metrics
	events   *notifier

	mu        sync.Mutex
	sub       *push.Subscription
	sessionID uuid.UUID
	userID    string
}

func NewController(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	log = log.Named(controllerLogName)

	return &Controller{
		store:    store,
		api:      opts.API,
		dialer:   opts.Dialer,
		endpoint: opts.HubEndpoint,
		logger:   log,
		metrics:  opts.Metrics,
		events:   &notifier{logger: log},
	}
}

// Tokens exposes the store read-only.
func (c *Controller) Tokens() TokenSource {
	return c.store
}

// Authenticated reports whether a credential is held.
func (c *Controller) Authenticated() bool {
	_, ok := c.store.Token()
	return ok
}

// Login exchanges credentials for a token and stores it. Any session already
// held is torn down first. The push channel is not opened here.
func (c *Controller) Login(ctx context.Context, creds authapi.Credentials) (*claims.Identity, error) {
	token, err := c.api.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	identity, err := claims.IdentityFromToken(token)
	if err != nil {
		return nil, apperrors.Internal(msgUndecodableToken, err)
	}

	c.Teardown(ReasonReplaced)

	id := uuid.New()
	c.mu.Lock()
	c.store.Set(token)
	c.sessionID = id
	c.userID = identity.UserID
	c.mu.Unlock()

	c.logger.Info(logLoggedIn,
		zap.String(fieldSessionID, id.String()),
		logger.Session(token),
		zap.String(fieldUserID, identity.UserID))
	c.events.publish(Event{Kind: EventStarted, SessionID: id, UserID: identity.UserID, At: time.Now()})

	return identity, nil
}

// OpenChannel subscribes to forced-logout notifications for the current
// session. It is a no-op while a channel is already open or opening. If the
// session ends before the dial completes the error is ErrNoCredential.
func (c *Controller) OpenChannel(ctx context.Context) error {
	c.mu.Lock()
	if _, ok := c.store.Token(); !ok {
		c.mu.Unlock()
		return apperrors.NoCredential(msgNoSession)
	}
	if c.sub != nil {
		c.mu.Unlock()
		return nil
	}
	sub := push.NewSubscription(c.dialer, c.endpoint, c.currentToken, c.logger)
	sub.On(push.EventForceLogout, func() { c.forceLogout(sub) })
	c.sub = sub
	c.mu.Unlock()

	err := sub.Open(ctx)
	if err != nil {
		c.mu.Lock()
		ended := c.sub != sub
		if !ended {
			c.sub = nil
		}
		c.mu.Unlock()

		if ended {
			c.logger.Debug(logChannelSuperseded)
			return apperrors.NoCredential(msgSessionEnded)
		}
		c.metrics.ChannelOpen(err)
		c.logger.Warn(logChannelFailed, zap.Error(err))
		return err
	}
	c.metrics.ChannelOpen(nil)

	c.logger.Info(logChannelOpened, zap.String("endpoint", c.endpoint))
	go c.watch(sub)
	return nil
}

// Teardown ends the session: the credential is cleared, the push channel is
// closed and observers hear about it once. Calling it without a session does
// nothing.
func (c *Controller) Teardown(reason Reason) {
	if err := c.teardown(reason, nil); err != nil {
		c.logger.Warn(logCloseFailed, zap.Error(err))
	}
}

// Logout notifies the backend and then tears down locally whatever the
// backend said. The returned error is informational; the session is gone.
func (c *Controller) Logout(ctx context.Context) error {
	var err error
	if token, ok := c.store.Token(); ok {
		if apiErr := c.api.Logout(ctx, token); apiErr != nil {
			c.logger.Warn(logLogoutEndpoint, zap.Error(apiErr))
			err = multierr.Append(err, apiErr)
		}
	}
	return multierr.Append(err, c.teardown(ReasonLogout, nil))
}

// CurrentUser decodes the identity carried by the current credential.
func (c *Controller) CurrentUser() (*claims.Identity, error) {
	token, ok := c.store.Token()
	if !ok {
		return nil, apperrors.NoCredential(msgNoSession)
	}
	return claims.IdentityFromToken(token)
}

// Subscribe registers fn for session events. Observers run synchronously in
// registration order; a panicking observer is logged and skipped.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.events.subscribe(fn)
}

func (c *Controller) currentToken() (string, error) {
	token, ok := c.store.Token()
	if !ok {
		return "", apperrors.NoCredential(msgNoSession)
	}
	return token, nil
}

func (c *Controller) forceLogout(sub *push.Subscription) {
	if err := c.teardown(ReasonForcedLogout, sub); err != nil {
		c.logger.Warn(logCloseFailed, zap.Error(err))
	}
}

// teardown clears the session. When owner is set the teardown only happens if
// owner is still the session's subscription.
func (c *Controller) teardown(reason Reason, owner *push.Subscription) error {
	c.mu.Lock()
	if owner != nil && c.sub != owner {
		c.mu.Unlock()
		c.logger.Debug(logStaleForce)
		return nil
	}
	token, had := c.store.Token()
	c.store.Clear()
	sub := c.sub
	c.sub = nil
	id := c.sessionID
	c.sessionID = uuid.Nil
	user := c.userID
	c.userID = ""
	c.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	if !had {
		return err
	}

	c.metrics.Teardown(string(reason))
	c.logger.Info(logTornDown,
		zap.String(fieldSessionID, id.String()),
		logger.Session(token),
		zap.String(fieldUserID, user),
		zap.String(logger.FieldReason, string(reason)))
	c.events.publish(Event{Kind: EventEnded, Reason: reason, SessionID: id, UserID: user, At: time.Now()})

	return err
}

// watch drops a subscription that ended on its own so the channel can be
// reopened for the same session.
func (c *Controller) watch(sub *push.Subscription) {
	<-sub.Done()

	c.mu.Lock()
	lost := c.sub == sub
	if lost {
		c.sub = nil
	}
	c.mu.Unlock()

	if lost {
		c.logger.Warn(logChannelLost)
	}
}
