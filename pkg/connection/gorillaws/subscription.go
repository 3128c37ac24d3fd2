package gorillaws

import (
	"sync"

	"github.com/pawbase/petsync/pkg/connection"
)

const (
	// recordBuffer bounds how far a slow consumer may fall behind before
	// pushes are dropped. Dropped pushes are not lost data: the poll
	// fallback redelivers the full list and the reconciler deduplicates.
	recordBuffer = 100

	statusBuffer = 8
)

type subscription struct {
	conn   *Connection
	ref    string
	topic  string
	filter connection.Filter

	// mu guards status, closed, and every send on and close of the two
	// channels below. Lock order is always the connection's subsLock
	// before mu, never the reverse.
	mu      sync.Mutex
	status  connection.Status
	closed  bool
	records chan connection.Record
	updates chan connection.Status
}

var _ connection.Subscription = (*subscription)(nil)

func newSubscription(c *Connection, ref, topic string, filter connection.Filter) *subscription {
	return &subscription{
		conn:    c,
		ref:     ref,
		topic:   topic,
		filter:  filter,
		records: make(chan connection.Record, recordBuffer),
		updates: make(chan connection.Status, statusBuffer),
	}
}

func (s *subscription) Records() <-chan connection.Record {
	return s.records
}

func (s *subscription) Updates() <-chan connection.Status {
	return s.updates
}

// Unsubscribe releases the subscription: it is removed from the routing
// table, a best-effort unsubscribe frame is sent, and both channels are
// closed. Calling it more than once returns ErrSubscriptionClosed.
func (s *subscription) Unsubscribe() error {
	s.mu.Lock()
	already := s.closed
	s.mu.Unlock()
	if already {
		return connection.ErrSubscriptionClosed
	}

	// Best effort: the server drops the channel on socket close anyway.
	if err := s.conn.writeFrame(connection.Frame{
		Type: connection.FrameUnsubscribe,
		Ref:  s.ref,
	}); err != nil {
		s.conn.logger.Debug("gorillaws unsubscribe frame not sent", "ref", s.ref, "error", err)
	}

	s.conn.unregister(s)
	return nil
}

// deliver routes one pushed record to the consumer. Never blocks.
func (s *subscription) deliver(rec connection.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.records <- rec:
	default:
		s.conn.logger.Warn("gorillaws record dropped, consumer is behind",
			"ref", s.ref, "topic", s.topic)
	}
}

// setStatus transitions the subscription status and notifies the
// consumer. Repeating the current status is a no-op; an illegal
// transition is logged and skipped rather than crashing the transport,
// because duplicate error paths (read failure plus heartbeat timeout)
// may race to degrade the same subscription.
func (s *subscription) setStatus(next connection.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.status == next {
		return
	}
	if err := s.status.ValidateTransitionTo(next); err != nil {
		s.conn.logger.Debug("gorillaws skipped status transition", "ref", s.ref, "error", err)
		return
	}
	s.status = next

	select {
	case s.updates <- next:
	default:
		// Drop the oldest pending transition so the consumer always
		// eventually sees the newest one.
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- next:
		default:
		}
	}
}

// close marks the subscription closed and closes its channels, after
// which deliver and setStatus become no-ops.
func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.status = connection.StatusClosed
	close(s.records)
	close(s.updates)
}
