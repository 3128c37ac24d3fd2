package petsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pawbase/petsync/pkg/api"
	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/logger"
	"github.com/pawbase/petsync/pkg/models"
)

// Stream is one open logical stream: a chat session or a notification
// feed. It owns the reconciler, the push adapter, the poll fallback, and
// the mutation tracker for its scope, and must be closed exactly once
// when the owning surface (e.g. a chat page) is torn down.
type Stream struct {
	scope       models.Scope
	localUserID string
	api         *api.Client
	log         logger.Logger

	rec     *reconciler
	adapter *streamAdapter
	poller  *pollScheduler
	tracker *mutationTracker

	closeOnce sync.Once
	closeErr  error
}

// View returns the current merged snapshot. The returned value is
// read-only; mutations only happen inside the reconciler.
func (s *Stream) View() View {
	return s.rec.snapshot()
}

// Updates delivers view snapshots as the stream changes, latest-wins: a
// consumer that falls behind sees only the newest state. The channel is
// never closed; stop reading after Close.
func (s *Stream) Updates() <-chan View {
	return s.rec.updates
}

// Status is the last known push channel status, informational only.
// Delivery is independent of it: while anything but live, the poll
// fallback is fetching.
func (s *Stream) Status() connection.Status {
	if s.adapter == nil {
		return connection.StatusDegraded
	}
	return s.adapter.lastStatus()
}

// Send submits a chat message optimistically: the preview appears in the
// view before the network round-trip, and is replaced by the
// server-assigned record from the write endpoint's echo. On error the
// preview is rolled back and the error returned; retry is left to the
// user's re-action.
func (s *Stream) Send(ctx context.Context, payload json.RawMessage) (models.StreamItem, error) {
	if s.rec.isClosed() {
		return models.StreamItem{}, ErrStreamClosed
	}

	preview := models.StreamItem{
		StreamID:  s.scope.ID,
		SenderID:  s.localUserID,
		Payload:   payload,
		CreatedAt: time.Now(),
		Read:      true,
	}
	localID := s.tracker.apply(models.MutationCreate, preview)

	item, err := s.api.CreateItem(ctx, s.scope, s.localUserID, payload)
	if err != nil {
		if failErr := s.tracker.fail(localID); failErr != nil {
			s.log.Error("BUG: optimistic rollback failed", "local_id", localID, "error", failErr)
		}
		return models.StreamItem{}, fmt.Errorf("petsync: send failed: %w", err)
	}

	if err := s.tracker.confirm(localID, item); err != nil {
		s.log.Error("BUG: optimistic confirm failed", "local_id", localID, "error", err)
	}
	return item, nil
}

// Begin records an optimistic mutation (toggle-like, toggle-favorite,
// mark-read, or a create whose write the caller performs itself) and
// returns its local ID. The caller must settle it with Confirm or Fail.
func (s *Stream) Begin(kind models.MutationKind, preview models.StreamItem) string {
	return s.tracker.apply(kind, preview)
}

// Confirm settles an optimistic mutation with the authoritative item
// echoed by the server.
func (s *Stream) Confirm(localID string, item models.StreamItem) error {
	return s.tracker.confirm(localID, item)
}

// Fail rolls an optimistic mutation back after a write error.
func (s *Stream) Fail(localID string) error {
	return s.tracker.fail(localID)
}

// MarkRead marks one item read, locally first and then on the server.
// The local flip is kept even if the write fails — the server copy stays
// unread and a later fetch cannot regress the flag locally — so the
// caller decides whether to retry based on the returned error.
func (s *Stream) MarkRead(ctx context.Context, itemID string) error {
	if s.rec.isClosed() {
		return ErrStreamClosed
	}

	s.rec.enqueue(markReadEvent{id: itemID})

	if err := s.api.MarkRead(ctx, s.scope, itemID); err != nil {
		return fmt.Errorf("petsync: mark-read failed: %w", err)
	}
	return nil
}

// MarkAllRead zeroes the unread counter and marks every item read,
// locally first and then on the server.
func (s *Stream) MarkAllRead(ctx context.Context) error {
	if s.rec.isClosed() {
		return ErrStreamClosed
	}

	s.rec.enqueue(markAllReadEvent{})

	if err := s.api.MarkAllRead(ctx, s.scope); err != nil {
		return fmt.Errorf("petsync: mark-all-read failed: %w", err)
	}
	return nil
}

// RefreshNow forces an immediate poll fetch regardless of the push
// channel status. Used for pull-to-refresh interactions.
func (s *Stream) RefreshNow() {
	s.poller.refreshNow()
}

// Close tears the stream down: the poll timer stops, the push
// subscription is released, and the reconciler discards the identity set
// and backing list. Safe to call more than once; later calls return the
// first result.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.poller.stop()
		if s.adapter != nil {
			if err := s.adapter.close(); err != nil && err != connection.ErrSubscriptionClosed {
				s.closeErr = fmt.Errorf("petsync: unsubscribe failed: %w", err)
			}
		}
		s.rec.close()
	})
	return s.closeErr
}
