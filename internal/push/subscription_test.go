package push

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "sessionguard/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type fakeConn struct {
	messages  chan Message
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{messages: make(chan Message, 8), closed: make(chan struct{})}
}

func (c *fakeConn) Next() (Message, error) {
	select {
	case msg, ok := <-c.messages:
		if !ok {
			return Message{}, ErrClosedByServer
		}
		return msg, nil
	case <-c.closed:
		return Message{}, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func dialerFor(conn Conn, err error) (Dialer, *atomic.Int32) {
	calls := &atomic.Int32{}
	return DialerFunc(func(ctx context.Context, endpoint string, token TokenFactory) (Conn, error) {
		calls.Add(1)
		if _, tokErr := token(); tokErr != nil {
			return nil, tokErr
		}
		return conn, err
	}), calls
}

func staticToken(tok string) TokenFactory {
	return func() (string, error) { return tok, nil }
}

func waitDone(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("subscription did not finish")
	}
}

func TestSubscription_DeliversRegisteredEvent(t *testing.T) {
	conn := newFakeConn()
	dialer, _ := dialerFor(conn, nil)
	sub := NewSubscription(dialer, "http://hub/notificationHub", staticToken("tok"), nil)

	fired := make(chan struct{}, 1)
	sub.On(EventForceLogout, func() { fired <- struct{}{} })

	require.NoError(t, sub.Open(context.Background()))
	assert.True(t, sub.Active())

	conn.messages <- Message{Target: "SomethingElse"}
	conn.messages <- Message{Target: EventForceLogout}

	select {
	case <-fired:
	case <-time.After(waitTimeout):
		t.Fatal("handler was not invoked")
	}

	require.NoError(t, sub.Close())
	waitDone(t, sub)
	assert.False(t, sub.Active())
}

func TestSubscription_ReRegisterReplacesHandler(t *testing.T) {
	conn := newFakeConn()
	dialer, _ := dialerFor(conn, nil)
	sub := NewSubscription(dialer, "ws://hub", staticToken("tok"), nil)

	var first, second atomic.Int32
	unsubFirst := sub.On(EventForceLogout, func() { first.Add(1) })
	done := make(chan struct{}, 1)
	sub.On(EventForceLogout, func() { second.Add(1); done <- struct{}{} })

	// removing a handler that was already replaced leaves the new one intact
	unsubFirst()

	require.NoError(t, sub.Open(context.Background()))
	conn.messages <- Message{Target: EventForceLogout}

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("handler was not invoked")
	}
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
	_ = sub.Close()
}

func TestSubscription_UnsubscribeStopsDelivery(t *testing.T) {
	conn := newFakeConn()
	dialer, _ := dialerFor(conn, nil)
	sub := NewSubscription(dialer, "ws://hub", staticToken("tok"), nil)

	var calls atomic.Int32
	unsubscribe := sub.On(EventForceLogout, func() { calls.Add(1) })
	unsubscribe()

	require.NoError(t, sub.Open(context.Background()))
	conn.messages <- Message{Target: EventForceLogout}
	close(conn.messages)

	waitDone(t, sub)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSubscription_DialFailure(t *testing.T) {
	dialer, _ := dialerFor(nil, errors.New("connection refused"))
	sub := NewSubscription(dialer, "ws://hub", staticToken("tok"), nil)

	err := sub.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrChannelConnect)

	waitDone(t, sub)
	assert.False(t, sub.Active())
	assert.NoError(t, sub.Close())
}

func TestSubscription_OpenTwice(t *testing.T) {
	conn := newFakeConn()
	dialer, calls := dialerFor(conn, nil)
	sub := NewSubscription(dialer, "ws://hub", staticToken("tok"), nil)

	require.NoError(t, sub.Open(context.Background()))
	assert.ErrorIs(t, sub.Open(context.Background()), apperrors.ErrChannelConnect)
	assert.Equal(t, int32(1), calls.Load())
	_ = sub.Close()
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	t.Run("never opened", func(t *testing.T) {
		sub := NewSubscription(nil, "ws://hub", staticToken("tok"), nil)
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
		waitDone(t, sub)
		assert.ErrorIs(t, sub.Open(context.Background()), apperrors.ErrChannelConnect)
	})

	t.Run("opened", func(t *testing.T) {
		conn := newFakeConn()
		dialer, _ := dialerFor(conn, nil)
		sub := NewSubscription(dialer, "ws://hub", staticToken("tok"), nil)
		require.NoError(t, sub.Open(context.Background()))

		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
		waitDone(t, sub)
		assert.Equal(t, int32(1), conn.closes.Load())
	})

	t.Run("ended by server", func(t *testing.T) {
		conn := newFakeConn()
		dialer, _ := dialerFor(conn, nil)
		sub := NewSubscription(dialer, "ws://hub", staticToken("tok"), nil)
		require.NoError(t, sub.Open(context.Background()))

		close(conn.messages)
		waitDone(t, sub)
		assert.NoError(t, sub.Close())
	})
}

func TestSubscription_CloseFromHandler(t *testing.T) {
	conn := newFakeConn()
	dialer, _ := dialerFor(conn, nil)
	sub := NewSubscription(dialer, "ws://hub", staticToken("tok"), nil)

	sub.On(EventForceLogout, func() { _ = sub.Close() })
	require.NoError(t, sub.Open(context.Background()))

	conn.messages <- Message{Target: EventForceLogout}
	waitDone(t, sub)
	assert.False(t, sub.Active())
}

func TestSubscription_TokenFetchedAtConnect(t *testing.T) {
	var fetched atomic.Int32
	conn := newFakeConn()
	dialer, _ := dialerFor(conn, nil)
	sub := NewSubscription(dialer, "ws://hub", func() (string, error) {
		fetched.Add(1)
		return "tok", nil
	}, nil)

	assert.Equal(t, int32(0), fetched.Load())
	require.NoError(t, sub.Open(context.Background()))
	assert.Equal(t, int32(1), fetched.Load())
	_ = sub.Close()
}
