// Package push holds the server-to-client notification channel a session
// listens on for forced logout.
package push

import (
	"context"
	"encoding/json"
	"errors"
)

// EventForceLogout is the only event the session guard subscribes to.
const EventForceLogout = "ForceLogout"

// ErrClosedByServer is returned by Conn.Next when the server ended the
// channel.
var ErrClosedByServer = errors.New("push channel closed by server")

// TokenFactory returns the bearer token to authenticate with. It is called at
// connect time so that whatever token is current then is used.
type TokenFactory func() (string, error)

// Message is one server invocation.
type Message struct {
	Target    string
	Arguments []json.RawMessage
}

// Conn is an established push connection. Next blocks until the next message
// and returns an error once the connection is gone. Close unblocks Next.
type Conn interface {
	Next() (Message, error)
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, token TokenFactory) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string, token TokenFactory) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string, token TokenFactory) (Conn, error) {
	return f(ctx, endpoint, token)
}
