package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"sessionguard/internal/session"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	StreamSession  = "session"
	StreamNavigate = "navigate"

	defaultStreamBuffer    = 16
	defaultStreamHeartbeat = 25 * time.Second
	contentTypeEventStream = "text/event-stream"
)

// StreamMessage is one server-sent event.
type StreamMessage struct {
	Type    string         `json:"type"`
	Path    string         `json:"path,omitempty"`
	Session *session.Event `json:"session,omitempty"`
}

// Broadcaster fans session events and navigation commands out to every open
// event stream. It is the shell's gate.Navigator. Slow streams miss messages
// rather than block the publisher. Close ends every stream.
type Broadcaster struct {
	mu      sync.Mutex
	streams map[chan StreamMessage]struct{}
	buffer  int
	logger  *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		streams: make(map[chan StreamMessage]struct{}),
		buffer:  defaultStreamBuffer,
		logger:  logger.Named("events"),
		done:    make(chan struct{}),
	}
}

// Done is closed once the broadcaster has been closed.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

// Close releases every open stream so the HTTP server can drain. It is safe
// to call more than once.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *Broadcaster) Subscribe() (<-chan StreamMessage, func()) {
	ch := make(chan StreamMessage, b.buffer)
	b.mu.Lock()
	b.streams[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.streams, ch)
			b.mu.Unlock()
		})
	}
}

func (b *Broadcaster) Publish(msg StreamMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.streams {
		select {
		case ch <- msg:
		default:
			b.logger.Warn("event stream full, message dropped", zap.String("type", msg.Type))
		}
	}
}

// Navigate tells connected clients to move to path.
func (b *Broadcaster) Navigate(path string) {
	b.Publish(StreamMessage{Type: StreamNavigate, Path: path})
}

// SessionEvent forwards a controller notification. Pass it to
// session.Controller.Subscribe.
func (b *Broadcaster) SessionEvent(ev session.Event) {
	b.Publish(StreamMessage{Type: StreamSession, Session: &ev})
}

type EventsHandler struct {
	source    EventSource
	heartbeat time.Duration
}

func NewEventsHandler(source EventSource) *EventsHandler {
	return &EventsHandler{source: source, heartbeat: defaultStreamHeartbeat}
}

// Stream holds the connection open and writes each message as a server-sent
// event until the client goes away or the broadcaster is closed.
func (h *EventsHandler) Stream(c echo.Context) error {
	w := c.Response()
	if _, ok := w.Writer.(http.Flusher); !ok {
		return respondError(c, http.StatusInternalServerError, msgStreamingUnsupported)
	}

	closing := h.source.Done()
	select {
	case <-closing:
		return respondError(c, http.StatusServiceUnavailable, msgShuttingDown)
	default:
	}

	messages, cancel := h.source.Subscribe()
	defer cancel()

	w.Header().Set(echo.HeaderContentType, contentTypeEventStream)
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	done := c.Request().Context().Done()

	for {
		select {
		case <-done:
			return nil
		case <-closing:
			return nil
		case msg := <-messages:
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
				return nil
			}
			w.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
