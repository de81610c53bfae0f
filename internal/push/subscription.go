package push

import (
	"context"
	"errors"
	"sync"

	apperrors "sessionguard/pkg/errors"

	"go.uber.org/zap"
)

const (
	msgAlreadyOpened     = "subscription already opened"
	msgSubscriptionEnded = "subscription already closed"
	msgDialFailed        = "failed to open push channel"
)

// Subscription is one push channel's lifetime: dialled once, read until the
// connection drops or Close is called, never reopened.
type Subscription struct {
	dialer   Dialer
	endpoint string
	token    TokenFactory
	logger   *zap.Logger

	mu       sync.Mutex
	handlers map[string]*handlerEntry
	conn     Conn
	opened   bool
	closed   bool

	done     chan struct{}
	doneOnce sync.Once
}

func NewSubscription(dialer Dialer, endpoint string, token TokenFactory, logger *zap.Logger) *Subscription {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscription{
		dialer:   dialer,
		endpoint: endpoint,
		token:    token,
		logger:   logger.Named("push"),
		handlers: make(map[string]*handlerEntry),
		done:     make(chan struct{}),
	}
}

type handlerEntry struct {
	fn func()
}

// On registers the handler for event. There is at most one handler per event;
// registering again replaces it. The returned function removes the handler if
// it is still the registered one.
func (s *Subscription) On(event string, handler func()) (unsubscribe func()) {
	entry := &handlerEntry{fn: handler}
	s.mu.Lock()
	s.handlers[event] = entry
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.handlers[event] == entry {
			delete(s.handlers, event)
		}
	}
}

// Open dials the endpoint and starts delivering events. A dial failure is
// returned wrapped in ErrChannelConnect and leaves the subscription closed.
func (s *Subscription) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ChannelConnect(msgSubscriptionEnded, nil)
	}
	if s.opened {
		s.mu.Unlock()
		return apperrors.ChannelConnect(msgAlreadyOpened, nil)
	}
	s.opened = true
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, s.endpoint, s.token)
	if err != nil {
		s.markClosed()
		s.finish()
		return apperrors.ChannelConnect(msgDialFailed, err)
	}

	s.mu.Lock()
	if s.closed {
		// Close raced the dial; drop the fresh connection.
		s.mu.Unlock()
		_ = conn.Close()
		s.finish()
		return apperrors.ChannelConnect(msgSubscriptionEnded, nil)
	}
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("push channel established", zap.String("endpoint", s.endpoint))
	go s.readLoop(conn)
	return nil
}

func (s *Subscription) readLoop(conn Conn) {
	defer s.finish()

	for {
		msg, err := conn.Next()
		if err != nil {
			if s.isClosed() {
				return
			}
			if errors.Is(err, ErrClosedByServer) {
				s.logger.Warn("push channel closed by server")
			} else {
				s.logger.Warn("push channel read failed", zap.Error(err))
			}
			s.markClosed()
			_ = conn.Close()
			return
		}

		s.mu.Lock()
		entry, ok := s.handlers[msg.Target]
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return
		}
		if !ok {
			s.logger.Debug("push event without handler", zap.String("target", msg.Target))
			continue
		}
		entry.fn()
	}
}

// Close ends the subscription. It is safe on a subscription that was never
// opened, already closed, or ended by the server, and safe to call from
// inside an event handler.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	opened := s.opened
	s.mu.Unlock()

	if conn == nil {
		if !opened {
			s.finish()
		}
		return nil
	}
	return conn.Close()
}

// Done is closed once the subscription stops delivering events.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Active reports whether events can still be delivered.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.closed
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Subscription) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}
