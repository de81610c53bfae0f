package handler

import (
	"context"

	"sessionguard/internal/authapi"
	"sessionguard/internal/claims"
	"sessionguard/internal/session"

	"github.com/labstack/echo/v4"
)

// Consumer-side interfaces defined by handlers

// SessionController is satisfied by *session.Controller.
type SessionController interface {
	Login(ctx context.Context, creds authapi.Credentials) (*claims.Identity, error)
	OpenChannel(ctx context.Context) error
	Logout(ctx context.Context) error
	CurrentUser() (*claims.Identity, error)
}

// EventSource delivers session events and navigation commands to streams.
// Done is closed when streams must end.
type EventSource interface {
	Subscribe() (<-chan StreamMessage, func())
	Done() <-chan struct{}
}

// Auditor records rejected logins.
type Auditor interface {
	LoginFailure(c echo.Context, userName string, err error)
}

var _ SessionController = (*session.Controller)(nil)
