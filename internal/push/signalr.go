package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SignalR JSON hub protocol, version 1. Every record ends with 0x1E.
const (
	recordSeparator = 0x1E

	messageTypeInvocation = 1
	messageTypePing       = 6
	messageTypeClose      = 7

	handshakeRequest = `{"protocol":"json","version":1}`

	queryAccessToken = "access_token"
	headerAuth       = "Authorization"
	bearerPrefix     = "Bearer "

	defaultHandshakeTimeout = 15 * time.Second
	defaultKeepAlive        = 15 * time.Second
)

const (
	errTokenFactoryFmt      = "access token factory: %w"
	errEmptyAccessToken     = "access token factory returned an empty token"
	errParseEndpointFmt     = "parse hub endpoint: %w"
	errUnsupportedSchemeFmt = "unsupported hub scheme %q"
	errDialStatusFmt        = "hub dial failed with status %d: %w"
	errDialFmt              = "hub dial failed: %w"
	errHandshakeWriteFmt    = "hub handshake write: %w"
	errHandshakeReadFmt     = "hub handshake read: %w"
	errHandshakeRejectFmt   = "hub rejected handshake: %s"
	errHandshakeParseFmt    = "hub handshake response: %w"
	errDecodeMessageFmt     = "decode hub message: %w"
	errServerCloseFmt       = "%w: %s"
)

var pingRecord = []byte(`{"type":6}` + string(rune(recordSeparator)))

// WebSocketDialer connects to a SignalR hub over WebSockets, skipping the
// negotiate round trip.
type WebSocketDialer struct {
	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration
	KeepAlive        time.Duration
}

// HubURL joins the configured base address and the fixed hub path.
func HubURL(baseAddress, hubPath string) string {
	return strings.TrimRight(baseAddress, "/") + "/" + strings.TrimLeft(hubPath, "/")
}

func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string, token TokenFactory) (Conn, error) {
	accessToken, err := token()
	if err != nil {
		return nil, fmt.Errorf(errTokenFactoryFmt, err)
	}
	if accessToken == "" {
		return nil, fmt.Errorf(errEmptyAccessToken)
	}

	target, err := websocketURL(endpoint, accessToken)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(headerAuth, bearerPrefix+accessToken)

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf(errDialStatusFmt, resp.StatusCode, err)
		}
		return nil, fmt.Errorf(errDialFmt, err)
	}

	conn := &hubConn{ws: ws, stop: make(chan struct{})}
	if err := conn.handshake(d.handshakeTimeout()); err != nil {
		_ = ws.Close()
		return nil, err
	}

	go conn.keepAlive(d.keepAlive())
	return conn, nil
}

func (d *WebSocketDialer) handshakeTimeout() time.Duration {
	if d.HandshakeTimeout > 0 {
		return d.HandshakeTimeout
	}
	return defaultHandshakeTimeout
}

func (d *WebSocketDialer) keepAlive() time.Duration {
	if d.KeepAlive > 0 {
		return d.KeepAlive
	}
	return defaultKeepAlive
}

func websocketURL(endpoint, accessToken string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf(errParseEndpointFmt, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf(errUnsupportedSchemeFmt, u.Scheme)
	}

	q := u.Query()
	q.Set(queryAccessToken, accessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type hubMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type hubConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	pending [][]byte

	stop     chan struct{}
	stopOnce sync.Once
}

func (c *hubConn) handshake(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(deadline)
	err := c.ws.WriteMessage(websocket.TextMessage, append([]byte(handshakeRequest), recordSeparator))
	_ = c.ws.SetWriteDeadline(time.Time{})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf(errHandshakeWriteFmt, err)
	}

	_ = c.ws.SetReadDeadline(deadline)
	defer func() { _ = c.ws.SetReadDeadline(time.Time{}) }()

	record, err := c.nextRecord()
	if err != nil {
		return fmt.Errorf(errHandshakeReadFmt, err)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(record, &resp); err != nil {
		return fmt.Errorf(errHandshakeParseFmt, err)
	}
	if resp.Error != "" {
		return fmt.Errorf(errHandshakeRejectFmt, resp.Error)
	}
	return nil
}

// nextRecord returns the next separator-terminated record, reading a new
// frame only when the previous one has been fully consumed.
func (c *hubConn) nextRecord() ([]byte, error) {
	for len(c.pending) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		for _, rec := range bytes.Split(data, []byte{recordSeparator}) {
			if len(bytes.TrimSpace(rec)) > 0 {
				c.pending = append(c.pending, rec)
			}
		}
	}
	rec := c.pending[0]
	c.pending = c.pending[1:]
	return rec, nil
}

func (c *hubConn) Next() (Message, error) {
	for {
		record, err := c.nextRecord()
		if err != nil {
			return Message{}, err
		}

		var msg hubMessage
		if err := json.Unmarshal(record, &msg); err != nil {
			return Message{}, fmt.Errorf(errDecodeMessageFmt, err)
		}

		switch msg.Type {
		case messageTypeInvocation:
			return Message{Target: msg.Target, Arguments: msg.Arguments}, nil
		case messageTypeClose:
			return Message{}, fmt.Errorf(errServerCloseFmt, ErrClosedByServer, msg.Error)
		case messageTypePing:
		default:
			// stream items and completions are not used by this client
		}
	}
}

func (c *hubConn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteMessage(websocket.TextMessage, pingRecord)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *hubConn) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
