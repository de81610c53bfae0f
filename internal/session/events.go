package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reason says why a session ended.
type Reason string

const (
	ReasonLogout              Reason = "logout"
	ReasonForcedLogout        Reason = "forced_logout"
	ReasonUpstreamAuthFailure Reason = "upstream_auth_failure"
	ReasonReplaced            Reason = "replaced"
	ReasonShutdown            Reason = "shutdown"
)

// EventKind distinguishes session notifications.
type EventKind string

const (
	EventStarted EventKind = "session_started"
	EventEnded   EventKind = "session_ended"
)

// Event is delivered to observers registered with Controller.Subscribe.
// Reason is empty for EventStarted.
type Event struct {
	Kind      EventKind `json:"kind"`
	Reason    Reason    `json:"reason,omitempty"`
	SessionID uuid.UUID `json:"sessionId"`
	UserID    string    `json:"userId,omitempty"`
	At        time.Time `json:"at"`
}

type observer struct {
	fn func(Event)
}

// notifier fans events out to observers in registration order.
type notifier struct {
	mu        sync.Mutex
	observers []*observer
	logger    *zap.Logger
}

func (n *notifier) subscribe(fn func(Event)) func() {
	o := &observer{fn: fn}
	n.mu.Lock()
	n.observers = append(n.observers, o)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, cur := range n.observers {
				if cur == o {
					n.observers = append(n.observers[:i:i], n.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	snapshot := make([]*observer, len(n.observers))
	copy(snapshot, n.observers)
	n.mu.Unlock()

	for _, o := range snapshot {
		n.deliver(o, ev)
	}
}

func (n *notifier) deliver(o *observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("session observer panicked",
				zap.String("kind", string(ev.Kind)),
				zap.Any("panic", r))
		}
	}()
	o.fn(ev)
}
