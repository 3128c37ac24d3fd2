package petsync

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pawbase/petsync/pkg/logger"
	"github.com/pawbase/petsync/pkg/models"
)

// mutationTracker records locally-initiated writes before server
// confirmation. Previews are applied to the view immediately via the
// reconciler's optimistic path (distinct from the arrival path, so the
// identity set is never fooled), and are removed again on confirm or
// fail. Entries live only in memory and only until resolution.
type mutationTracker struct {
	rec    *reconciler
	window time.Duration
	log    logger.Logger

	mu      sync.Mutex
	entries map[string]models.OptimisticEntry

	// resolved remembers local IDs settled by a racing push echo, so the
	// caller's later confirm or fail call is an idempotent no-op instead
	// of an unknown-mutation error.
	resolved map[string]struct{}
}

func newMutationTracker(rec *reconciler, window time.Duration, log logger.Logger) *mutationTracker {
	return &mutationTracker{
		rec:      rec,
		window:   window,
		log:      log,
		entries:  make(map[string]models.OptimisticEntry),
		resolved: make(map[string]struct{}),
	}
}

// apply inserts a pending preview into the merged view synchronously and
// returns the temporary local ID. ULIDs keep local IDs unique and
// time-ordered, and visibly distinct from server-assigned IDs.
func (t *mutationTracker) apply(kind models.MutationKind, preview models.StreamItem) string {
	localID := ulid.Make().String()

	entry := models.OptimisticEntry{
		LocalID:     localID,
		Kind:        kind,
		SubmittedAt: time.Now(),
		Preview:     preview,
		Resolution:  models.ResolutionPending,
	}

	t.mu.Lock()
	t.entries[localID] = entry
	t.mu.Unlock()

	t.rec.enqueue(optimisticInsertEvent{entry: entry})

	return localID
}

// confirm resolves a pending entry to the authoritative item returned by
// the write endpoint. The preview is removed and the item is installed
// through the normal arrival path, so a later push or poll copy of the
// same ID is deduplicated as usual.
func (t *mutationTracker) confirm(localID string, item models.StreamItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("confirm needs a usable authoritative item: %w", err)
	}

	t.mu.Lock()
	if _, ok := t.entries[localID]; !ok {
		_, raced := t.resolved[localID]
		t.mu.Unlock()
		if raced {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownMutation, localID)
	}
	delete(t.entries, localID)
	t.resolved[localID] = struct{}{}
	t.mu.Unlock()

	t.rec.enqueue(optimisticResolveEvent{localID: localID, item: item})
	return nil
}

// fail rolls a pending entry back, removing the preview from the view.
// The design leaves retry to user re-action, so nothing is rescheduled.
func (t *mutationTracker) fail(localID string) error {
	t.mu.Lock()
	if _, ok := t.entries[localID]; !ok {
		_, raced := t.resolved[localID]
		t.mu.Unlock()
		if raced {
			// The server accepted the write (its echo already arrived via
			// push) even though the caller saw an error. The view already
			// holds the authoritative item; nothing to roll back.
			t.log.Debug("fail after push echo, keeping authoritative item", "local_id", localID)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownMutation, localID)
	}
	delete(t.entries, localID)
	t.mu.Unlock()

	t.rec.enqueue(optimisticFailEvent{localID: localID})
	return nil
}

// resolveByMatch is the fallback correlation for create mutations when a
// pushed record lands before (or instead of) the write call's echo:
// origin, stream, payload equality, and a created-at within the
// submission window. Exact echo matching remains the primary path; this
// exists so the preview and the pushed copy never coexist in the view.
func (t *mutationTracker) resolveByMatch(item models.StreamItem) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for localID, entry := range t.entries {
		if entry.Kind != models.MutationCreate {
			continue
		}
		if entry.Preview.StreamID != item.StreamID || entry.Preview.SenderID != item.SenderID {
			continue
		}
		if !bytes.Equal(entry.Preview.Payload, item.Payload) {
			continue
		}
		if delta := item.CreatedAt.Sub(entry.SubmittedAt); delta < -t.window || delta > t.window {
			continue
		}

		delete(t.entries, localID)
		t.resolved[localID] = struct{}{}
		return localID, true
	}

	return "", false
}

// pendingCount reports how many mutations are awaiting resolution.
func (t *mutationTracker) pendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
