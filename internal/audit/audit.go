// Package audit writes an append-only trail of session lifecycle events.
package audit

import (
	"time"

	"sessionguard/internal/session"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Action represents what happened to a session
type Action string

const (
	ActionLogin    Action = "login"
	ActionTeardown Action = "teardown"
)

// Status represents the outcome of an action
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

const (
	trailLogName   = "audit"
	msgAuditRecord = "audit"

	fieldEventID   = "event_id"
	fieldAction    = "action"
	fieldStatus    = "status"
	fieldSessionID = "session_id"
	fieldUserID    = "user_id"
	fieldUserName  = "user_name"
	fieldReason    = "reason"
	fieldIP        = "ip"
	fieldUserAgent = "user_agent"
	fieldRequestID = "request_id"
	fieldAt        = "at"
)

// Entry is one audit record.
type Entry struct {
	ID        uuid.UUID
	Action    Action
	Status    Status
	SessionID uuid.UUID
	UserID    string
	UserName  string
	Reason    string
	IPAddress string
	UserAgent string
	RequestID string
	Error     string
	CreatedAt time.Time
}

// Trail writes entries to a dedicated logger. Entries never carry the token.
type Trail struct {
	logger *zap.Logger
}

func NewTrail(logger *zap.Logger) *Trail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trail{logger: logger.Named(trailLogName)}
}

// Log records an entry, filling in ID and CreatedAt when unset.
func (t *Trail) Log(entry *Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	fields := []zap.Field{
		zap.String(fieldEventID, entry.ID.String()),
		zap.String(fieldAction, string(entry.Action)),
		zap.String(fieldStatus, string(entry.Status)),
		zap.Time(fieldAt, entry.CreatedAt),
	}
	if entry.SessionID != uuid.Nil {
		fields = append(fields, zap.String(fieldSessionID, entry.SessionID.String()))
	}
	fields = appendNonEmpty(fields,
		fieldUserID, entry.UserID,
		fieldUserName, entry.UserName,
		fieldReason, entry.Reason,
		fieldIP, entry.IPAddress,
		fieldUserAgent, entry.UserAgent,
		fieldRequestID, entry.RequestID,
	)
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
	}

	t.logger.Info(msgAuditRecord, fields...)
}

// Record is a session observer: register it with Controller.Subscribe.
func (t *Trail) Record(ev session.Event) {
	entry := &Entry{
		Status:    StatusSuccess,
		SessionID: ev.SessionID,
		UserID:    ev.UserID,
		Reason:    string(ev.Reason),
		CreatedAt: ev.At,
	}
	switch ev.Kind {
	case session.EventStarted:
		entry.Action = ActionLogin
	case session.EventEnded:
		entry.Action = ActionTeardown
	default:
		return
	}
	t.Log(entry)
}

// LoginFailure records a rejected login with the caller's request details.
func (t *Trail) LoginFailure(c echo.Context, userName string, err error) {
	entry := &Entry{
		Action:    ActionLogin,
		Status:    StatusFailure,
		UserName:  userName,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	t.Log(entry)
}

func appendNonEmpty(fields []zap.Field, kv ...string) []zap.Field {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			fields = append(fields, zap.String(kv[i], kv[i+1]))
		}
	}
	return fields
}
