package gorillaws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawbase/petsync/pkg/connection"
)

// wsServer is a minimal change-feed endpoint: it acks every subscribe
// frame and lets tests push frames to the connected client.
type wsServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader gorilla.Upgrader

	mu   sync.Mutex
	conn *gorilla.Conn

	frames chan connection.Frame
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{t: t, frames: make(chan connection.Frame, 32)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		var f connection.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Type == connection.FrameSubscribe {
			s.send(connection.Frame{Type: connection.FrameSubscribed, Ref: f.Ref})
		}
		s.frames <- f
	}
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) send(f connection.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.WriteJSON(f)
	}
}

func (s *wsServer) dropConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *wsServer) nextFrame(timeout time.Duration) (connection.Frame, bool) {
	select {
	case f := <-s.frames:
		return f, true
	case <-time.After(timeout):
		return connection.Frame{}, false
	}
}

func dialTestServer(t *testing.T, s *wsServer, opts ...Option) *Connection {
	t.Helper()
	c := New(s.url(), opts...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func waitStatus(t *testing.T, sub connection.Subscription, want connection.Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st, ok := <-sub.Updates():
			if !ok {
				t.Fatalf("updates channel closed while waiting for %v", want)
			}
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %v", want)
		}
	}
}

func TestSubscribeGoesLive(t *testing.T) {
	srv := newWSServer(t)
	c := dialTestServer(t, srv)

	sub, err := c.Subscribe(context.Background(), "messages", connection.Filter{
		Column: "session_id", Value: "s-1",
	})
	require.NoError(t, err)

	f, ok := srv.nextFrame(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, connection.FrameSubscribe, f.Type)
	assert.Equal(t, "messages", f.Topic)
	require.NotNil(t, f.Filter)
	assert.Equal(t, "session_id", f.Filter.Column)
	assert.Equal(t, "s-1", f.Filter.Value)
	assert.NotEmpty(t, f.Ref)

	waitStatus(t, sub, connection.StatusLive)
}

func TestRecordRouting(t *testing.T) {
	srv := newWSServer(t)
	c := dialTestServer(t, srv)

	sub, err := c.Subscribe(context.Background(), "messages", connection.Filter{})
	require.NoError(t, err)

	f, ok := srv.nextFrame(2 * time.Second)
	require.True(t, ok)
	waitStatus(t, sub, connection.StatusLive)

	srv.send(connection.Frame{
		Type:   connection.FrameInsert,
		Ref:    f.Ref,
		Topic:  "messages",
		Record: json.RawMessage(`{"id":"m1"}`),
	})

	select {
	case rec := <-sub.Records():
		assert.Equal(t, connection.ActionInsert, rec.Action)
		assert.Equal(t, "messages", rec.Topic)
		assert.JSONEq(t, `{"id":"m1"}`, string(rec.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed record")
	}

	// Pushes for unknown refs are dropped without disturbing the rest.
	srv.send(connection.Frame{Type: connection.FrameInsert, Ref: "no-such-ref", Record: json.RawMessage(`{}`)})
	srv.send(connection.Frame{Type: connection.FrameInsert, Ref: f.Ref, Record: json.RawMessage(`{"id":"m2"}`)})

	select {
	case rec := <-sub.Records():
		assert.JSONEq(t, `{"id":"m2"}`, string(rec.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the record after the unknown ref")
	}
}

func TestServerPingAnsweredWithPong(t *testing.T) {
	srv := newWSServer(t)
	dialTestServer(t, srv)

	srv.send(connection.Frame{Type: connection.FramePing})

	f, ok := srv.nextFrame(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, connection.FramePong, f.Type)
}

func TestErrorFrameDegrades(t *testing.T) {
	srv := newWSServer(t)
	c := dialTestServer(t, srv)

	sub, err := c.Subscribe(context.Background(), "messages", connection.Filter{})
	require.NoError(t, err)

	f, ok := srv.nextFrame(2 * time.Second)
	require.True(t, ok)
	waitStatus(t, sub, connection.StatusLive)

	srv.send(connection.Frame{Type: connection.FrameError, Ref: f.Ref, Error: "filter rejected"})
	waitStatus(t, sub, connection.StatusDegraded)
}

func TestUnsubscribe(t *testing.T) {
	srv := newWSServer(t)
	c := dialTestServer(t, srv)

	sub, err := c.Subscribe(context.Background(), "messages", connection.Filter{})
	require.NoError(t, err)
	subFrame, ok := srv.nextFrame(2 * time.Second)
	require.True(t, ok)

	require.NoError(t, sub.Unsubscribe())
	assert.ErrorIs(t, sub.Unsubscribe(), connection.ErrSubscriptionClosed)

	f, ok := srv.nextFrame(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, connection.FrameUnsubscribe, f.Type)
	assert.Equal(t, subFrame.Ref, f.Ref)

	// Both channels close so consumer loops can exit on range.
	for range sub.Records() {
	}
	for range sub.Updates() {
	}
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	srv := newWSServer(t)
	c := dialTestServer(t, srv, WithCheckInterval(20*time.Millisecond))

	sub, err := c.Subscribe(context.Background(), "messages", connection.Filter{
		Column: "session_id", Value: "s-1",
	})
	require.NoError(t, err)

	first, ok := srv.nextFrame(2 * time.Second)
	require.True(t, ok)
	waitStatus(t, sub, connection.StatusLive)

	// Kill the socket server-side: the subscription degrades, the
	// reconnection loop re-dials and replays the same ref.
	srv.dropConn()
	waitStatus(t, sub, connection.StatusDegraded)

	replayed, ok := srv.nextFrame(5 * time.Second)
	require.True(t, ok)
	assert.Equal(t, connection.FrameSubscribe, replayed.Type)
	assert.Equal(t, first.Ref, replayed.Ref, "resubscribe reuses the original ref")

	waitStatus(t, sub, connection.StatusLive)
}

func TestCloseAfterFailedConnect(t *testing.T) {
	// Nothing listens here; the initial dial fails.
	c := New("ws://127.0.0.1:1/feed")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.Error(t, c.Connect(ctx))

	done := make(chan error, 1)
	go func() { done <- c.Close(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung after a failed Connect")
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	c := New("ws://127.0.0.1:1/feed")

	done := make(chan error, 1)
	go func() { done <- c.Close(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung without a prior Connect")
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	srv := newWSServer(t)
	c := dialTestServer(t, srv)

	require.NoError(t, c.Close(context.Background()))

	_, err := c.Subscribe(context.Background(), "messages", connection.Filter{})
	assert.ErrorIs(t, err, connection.ErrNotConnected)
	assert.ErrorIs(t, c.Connect(context.Background()), connection.ErrNotConnected)
}
