// Package gorillaws implements the realtime push transport over a
// gorilla/websocket connection speaking the Pawbase JSON change-feed
// protocol.
//
// The connection self-heals: a read error or heartbeat timeout degrades
// every open subscription and a background loop re-dials on a check
// interval, resubscribing with the original client-generated refs.
// Consumers observe the outage only as a degraded status, never as a
// fatal error.
package gorillaws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/logger"
)

const (
	// DefaultCheckInterval is the interval at which the reconnection loop
	// inspects the socket. It bounds how long subscriptions stay degraded
	// after a drop before the first redial attempt.
	DefaultCheckInterval = 5 * time.Second

	// DefaultHeartbeatTimeout is how long the socket may stay silent
	// (no frames, not even pings) before it is considered stuck and
	// forcibly re-dialed. Resolves the "assumed healthy" failure mode:
	// a half-open socket must degrade rather than silently deliver
	// nothing.
	DefaultHeartbeatTimeout = 30 * time.Second
)

// DefaultDialer is the gorilla dialer used unless WithDialer overrides it.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
	Subprotocols:      []string{"json"},
}

type Option func(c *Connection)

func WithLogger(log logger.Logger) Option {
	return func(c *Connection) { c.logger = log }
}

func WithDialer(d *gorilla.Dialer) Option {
	return func(c *Connection) { c.dialer = d }
}

func WithCheckInterval(d time.Duration) Option {
	return func(c *Connection) { c.checkInterval = d }
}

func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *Connection) { c.heartbeatTimeout = d }
}

// Connection is a realtime transport over one WebSocket.
type Connection struct {
	url              string
	dialer           *gorilla.Dialer
	checkInterval    time.Duration
	heartbeatTimeout time.Duration
	logger           logger.Logger

	// connLock guards writes to conn and the conn pointer itself.
	// It is never held across a dial, only around individual writes,
	// so Subscribe and Unsubscribe cannot block behind a reconnect.
	connLock sync.Mutex
	conn     *gorilla.Conn

	// subsLock guards the subscription table. Record and status delivery
	// happens under the read lock; closing a subscription's channels
	// happens under the write lock, so a send can never race a close.
	subsLock sync.RWMutex
	subs     map[string]*subscription

	stateLock     sync.Mutex
	connected     bool
	closed        bool
	reconnStarted bool

	// lastFrame is the wall-clock time of the last frame received,
	// consulted by the heartbeat check.
	lastFrameLock sync.Mutex
	lastFrame     time.Time

	closeCh    chan struct{}
	reconnDone chan struct{}
	reconnOnce sync.Once
}

var _ connection.Realtime = (*Connection)(nil)

func New(url string, opts ...Option) *Connection {
	c := &Connection{
		url:              url,
		dialer:           DefaultDialer,
		checkInterval:    DefaultCheckInterval,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		logger:           logger.Nop(),
		subs:             make(map[string]*subscription),
		closeCh:          make(chan struct{}),
		reconnDone:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the WebSocket connection and starts the
// reconnection loop.
//
// Only the initial connection failure is returned to the caller: it is
// usually misconfiguration (wrong URL, bad credentials) that no retry
// loop can fix. Failures after a successful Connect are handled
// internally by degrading subscriptions and re-dialing.
func (c *Connection) Connect(ctx context.Context) error {
	c.stateLock.Lock()
	if c.closed {
		c.stateLock.Unlock()
		return connection.ErrNotConnected
	}
	c.stateLock.Unlock()

	if err := c.dial(ctx); err != nil {
		return fmt.Errorf("gorillaws: failed to connect to %s: %w", c.url, err)
	}

	c.reconnOnce.Do(func() {
		c.stateLock.Lock()
		c.reconnStarted = true
		c.stateLock.Unlock()
		go c.reconnectionLoop()
	})

	return nil
}

func (c *Connection) dial(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.connLock.Lock()
	c.conn = conn
	c.connLock.Unlock()

	c.stateLock.Lock()
	c.connected = true
	c.stateLock.Unlock()

	c.touch()

	go c.readLoop(conn)

	c.logger.Debug("gorillaws connected", "url", c.url)
	return nil
}

// Subscribe opens a filtered change-feed subscription. The returned
// subscription starts in the connecting status and transitions to live
// once the server acknowledges the ref.
func (c *Connection) Subscribe(ctx context.Context, topic string, filter connection.Filter) (connection.Subscription, error) {
	c.stateLock.Lock()
	closed := c.closed
	c.stateLock.Unlock()
	if closed {
		return nil, connection.ErrNotConnected
	}

	ref := uuid.Must(uuid.NewV4()).String()

	sub := newSubscription(c, ref, topic, filter)

	c.subsLock.Lock()
	c.subs[ref] = sub
	c.subsLock.Unlock()

	sub.setStatus(connection.StatusConnecting)

	if err := c.writeFrame(connection.Frame{
		Type:   connection.FrameSubscribe,
		Ref:    ref,
		Topic:  topic,
		Filter: &filter,
	}); err != nil {
		// The subscription stays registered: the reconnection loop will
		// replay the subscribe frame once the socket is back. The caller
		// sees a degraded subscription, not an error.
		c.logger.Warn("gorillaws subscribe frame not sent, will retry on reconnect",
			"ref", ref, "topic", topic, "error", err)
		sub.setStatus(connection.StatusDegraded)
	}

	return sub, nil
}

// Close stops the reconnection loop, closes every open subscription, and
// releases the socket. The connection cannot be reused afterwards.
func (c *Connection) Close(ctx context.Context) error {
	c.stateLock.Lock()
	if c.closed {
		c.stateLock.Unlock()
		return nil
	}
	c.closed = true
	reconnStarted := c.reconnStarted
	c.stateLock.Unlock()

	close(c.closeCh)
	// The reconnection loop only runs after a successful Connect; waiting
	// for it when it never started would block forever.
	if reconnStarted {
		<-c.reconnDone
	}

	c.subsLock.Lock()
	for ref, sub := range c.subs {
		sub.close()
		delete(c.subs, ref)
	}
	c.subsLock.Unlock()

	c.connLock.Lock()
	conn := c.conn
	c.conn = nil
	c.connLock.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("gorillaws: failed to close socket: %w", err)
		}
	}
	return nil
}

func (c *Connection) writeFrame(f connection.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("gorillaws: failed to marshal frame: %w", err)
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.conn == nil {
		return connection.ErrNotConnected
	}
	return c.conn.WriteMessage(gorilla.TextMessage, data)
}

func (c *Connection) touch() {
	c.lastFrameLock.Lock()
	c.lastFrame = time.Now()
	c.lastFrameLock.Unlock()
}

func (c *Connection) sinceLastFrame() time.Duration {
	c.lastFrameLock.Lock()
	defer c.lastFrameLock.Unlock()
	return time.Since(c.lastFrame)
}

// readLoop drains one socket until it errors, routing frames to
// subscriptions. On exit it degrades everything so the poll fallback
// takes over until the reconnection loop restores the socket.
func (c *Connection) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.stateLock.Lock()
			closed := c.closed
			c.connected = false
			c.stateLock.Unlock()

			if !closed {
				c.logger.Warn("gorillaws read failed, degrading subscriptions", "error", err)
				c.degradeAll()
			}
			return
		}

		c.touch()

		var f connection.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("gorillaws dropped undecodable frame", "error", err)
			continue
		}

		c.handleFrame(f)
	}
}

func (c *Connection) handleFrame(f connection.Frame) {
	switch f.Type {
	case connection.FrameSubscribed:
		c.subsLock.RLock()
		sub := c.subs[f.Ref]
		c.subsLock.RUnlock()
		if sub == nil {
			c.logger.Debug("gorillaws ack for unknown ref", "ref", f.Ref)
			return
		}
		sub.setStatus(connection.StatusLive)

	case connection.FramePing:
		if err := c.writeFrame(connection.Frame{Type: connection.FramePong}); err != nil {
			c.logger.Debug("gorillaws pong not sent", "error", err)
		}

	case connection.FrameError:
		c.subsLock.RLock()
		sub := c.subs[f.Ref]
		c.subsLock.RUnlock()
		if sub != nil {
			c.logger.Warn("gorillaws subscription error from server", "ref", f.Ref, "error", f.Error)
			sub.setStatus(connection.StatusDegraded)
		} else {
			c.logger.Warn("gorillaws server error", "error", f.Error)
		}

	default:
		action, ok := connection.ActionFor(f.Type)
		if !ok {
			c.logger.Debug("gorillaws ignored frame", "type", f.Type)
			return
		}

		c.subsLock.RLock()
		sub := c.subs[f.Ref]
		if sub != nil {
			sub.deliver(connection.Record{
				Topic:  f.Topic,
				Action: action,
				Data:   f.Record,
			})
		}
		c.subsLock.RUnlock()

		if sub == nil {
			c.logger.Debug("gorillaws push for unknown ref", "ref", f.Ref)
		}
	}
}

func (c *Connection) degradeAll() {
	c.subsLock.RLock()
	defer c.subsLock.RUnlock()
	for _, sub := range c.subs {
		sub.setStatus(connection.StatusDegraded)
	}
}

// reconnectionLoop re-dials a dropped socket and replays subscribe frames
// for every registered subscription. It also runs the heartbeat check: a
// socket that has gone silent past the heartbeat timeout is force-closed
// so the read loop surfaces the failure.
func (c *Connection) reconnectionLoop() {
	defer close(c.reconnDone)

	for {
		select {
		case <-c.closeCh:
			return
		case <-time.After(c.checkInterval):
		}

		c.stateLock.Lock()
		connected := c.connected
		c.stateLock.Unlock()

		if connected {
			if c.sinceLastFrame() > c.heartbeatTimeout {
				c.logger.Warn("gorillaws heartbeat timeout, forcing reconnect",
					"silent_for", c.sinceLastFrame())
				c.connLock.Lock()
				if c.conn != nil {
					_ = c.conn.Close()
				}
				c.connLock.Unlock()
			}
			continue
		}

		c.logger.Info("gorillaws attempting to reconnect", "url", c.url)

		if err := c.dial(context.Background()); err != nil {
			c.logger.Error("gorillaws reconnect failed", "error", err)
			continue
		}

		c.resubscribeAll()
	}
}

func (c *Connection) resubscribeAll() {
	c.subsLock.RLock()
	defer c.subsLock.RUnlock()

	for ref, sub := range c.subs {
		sub.setStatus(connection.StatusConnecting)
		filter := sub.filter
		if err := c.writeFrame(connection.Frame{
			Type:   connection.FrameSubscribe,
			Ref:    ref,
			Topic:  sub.topic,
			Filter: &filter,
		}); err != nil {
			c.logger.Error("gorillaws resubscribe failed", "ref", ref, "error", err)
			sub.setStatus(connection.StatusDegraded)
		}
	}
}

// unregister removes a subscription and closes its channels. Called from
// subscription.Unsubscribe exactly once.
func (c *Connection) unregister(sub *subscription) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	if _, ok := c.subs[sub.ref]; !ok {
		return
	}
	delete(c.subs, sub.ref)
	sub.close()
}
