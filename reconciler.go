package petsync

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/pawbase/petsync/internal/identity"
	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/logger"
	"github.com/pawbase/petsync/pkg/models"
)

// ViewItem is one entry of the merged view: either an accepted
// authoritative item, or a pending optimistic preview.
type ViewItem struct {
	models.StreamItem

	// Pending marks an optimistic preview that has not been confirmed by
	// the server yet. For pending entries LocalID carries the temporary
	// mutation ID and the embedded item's ID field may be empty.
	Pending bool
	LocalID string
}

// View is a snapshot of one logical stream: the ordered, deduplicated
// item list, the unread count, and the last known connection status.
// Snapshots are read-only; all mutation funnels through the reconciler.
type View struct {
	Items  []ViewItem
	Unread int
	Status connection.Status
}

// reconciler is the merge engine for one logical stream. A single
// consumer goroutine (run) owns every field below the events channel:
// arrivals from the push adapter, the poll scheduler, and the mutation
// tracker are serialized through the queue, which is what makes the
// identity-set idempotency check sufficient despite multiple
// uncoordinated sources.
type reconciler struct {
	scope       models.Scope
	localUserID string
	log         logger.Logger

	events   chan event
	done     chan struct{}
	loopDone chan struct{}

	// resolvePending lets a push arrival settle a pending create before
	// the write call's echo lands, so the preview and the pushed copy
	// never coexist. Set once by the mutation tracker before run starts.
	resolvePending func(models.StreamItem) (string, bool)

	// Loop-owned state. Only the consumer goroutine touches these.
	seen    *identity.Set
	items   []models.StreamItem
	pending []models.OptimisticEntry
	unread  int
	status  connection.Status
	state   streamState

	// viewMu guards the published snapshot read by View callers.
	viewMu  sync.RWMutex
	view    View
	updates chan View
}

func newReconciler(scope models.Scope, localUserID string, queueSize int, log logger.Logger) *reconciler {
	return &reconciler{
		scope:       scope,
		localUserID: localUserID,
		log:         log,
		events:      make(chan event, queueSize),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		seen:        identity.NewSet(),
		state:       stateUninitialized,
		updates:     make(chan View, 1),
	}
}

// enqueue hands an event to the consumer loop. It reports false once the
// reconciler is torn down, which is the guard keeping late-arriving
// callbacks from mutating dead state.
func (r *reconciler) enqueue(ev event) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case <-r.done:
		return false
	case r.events <- ev:
		return true
	}
}

func (r *reconciler) isClosed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// run is the single consumer loop. It processes each event to completion
// (mutate identity set, mutate backing list, re-sort, publish) before
// picking up the next.
func (r *reconciler) run() {
	defer close(r.loopDone)

	for {
		select {
		case <-r.done:
			return
		case ev := <-r.events:
			r.step(ev)
		}
	}
}

// close stops the loop and discards the stream's state. Safe to call
// once; the caller (Stream.Close) sequences it after the poller and
// adapter are stopped.
func (r *reconciler) close() {
	close(r.done)
	<-r.loopDone

	// The loop has exited; no goroutine touches loop-owned state anymore.
	r.transition(stateTornDown)
	r.seen = identity.NewSet()
	r.items = nil
	r.pending = nil
}

func (r *reconciler) transition(next streamState) {
	if err := r.state.validateTransitionTo(next); err != nil {
		r.log.Error("BUG: reconciler state transition rejected", "scope", r.scope, "error", err)
		return
	}
	r.state = next
}

func (r *reconciler) step(ev event) {
	if r.state == stateSubscribing {
		r.transition(stateSynced)
	}
	r.transition(stateReconciling)
	r.handle(ev)
	r.publish()
	r.transition(stateSynced)
}

func (r *reconciler) handle(ev event) {
	switch e := ev.(type) {
	case pushEvent:
		r.handlePush(e.rec)
	case pollEvent:
		for i := range e.items {
			item := e.items[i]
			if err := item.Validate(); err != nil {
				// One bad record never aborts the rest of the batch.
				r.log.Warn("dropped malformed polled item", "scope", r.scope, "error", err)
				continue
			}
			r.accept(item, true)
		}
	case statusEvent:
		r.status = e.status
	case optimisticInsertEvent:
		r.pending = append(r.pending, e.entry)
	case optimisticResolveEvent:
		r.removePending(e.localID)
		r.accept(e.item, false)
	case optimisticFailEvent:
		r.removePending(e.localID)
	case markReadEvent:
		r.markRead(e.id)
	case markAllReadEvent:
		r.markAllRead()
	default:
		r.log.Error("BUG: reconciler received unknown event", "scope", r.scope)
	}
}

func (r *reconciler) handlePush(rec connection.Record) {
	var item models.StreamItem
	if err := json.Unmarshal(rec.Data, &item); err != nil {
		r.log.Warn("dropped undecodable pushed record", "scope", r.scope, "error", err)
		return
	}
	if err := item.Validate(); err != nil {
		r.log.Warn("dropped malformed pushed record", "scope", r.scope, "error", err)
		return
	}

	switch rec.Action {
	case connection.ActionInsert:
		if r.resolvePending != nil {
			if localID, ok := r.resolvePending(item); ok {
				r.log.Debug("push echo settled pending mutation",
					"scope", r.scope, "local_id", localID, "id", item.ID)
				r.removePending(localID)
				r.accept(item, false)
				return
			}
		}
		r.accept(item, true)
	case connection.ActionUpdate:
		// Read state is the only field mutable after creation. An update
		// mutates in place and must neither perturb ordering nor trip the
		// duplicate-id rejection.
		if item.Read {
			r.markRead(item.ID)
		}
	case connection.ActionDelete:
		// Deletion is not part of the stream contract; moderation removals
		// arrive as a fresh fetch. Logged so a protocol change is noticed.
		r.log.Debug("ignored delete push", "scope", r.scope, "id", item.ID)
	default:
		r.log.Warn("dropped push with unknown action", "scope", r.scope, "action", rec.Action)
	}
}

// accept applies one authoritative arrival: idempotent no-op for an
// already-seen ID, otherwise insert, re-sort, and bump the unread count
// when appropriate. countUnread is false on the optimistic confirm path,
// because items the local user authored never count as unread.
func (r *reconciler) accept(item models.StreamItem, countUnread bool) {
	if !r.seen.Add(item.ID) {
		r.log.Debug("discarded duplicate arrival", "scope", r.scope, "id", item.ID)
		return
	}

	r.items = append(r.items, item)
	r.sortItems()

	if countUnread && !item.Read && item.SenderID != r.localUserID {
		r.unread++
	}
}

func (r *reconciler) sortItems() {
	descending := r.scope.Kind.Descending()
	sort.SliceStable(r.items, func(i, j int) bool {
		return r.items[i].Less(&r.items[j], descending)
	})
}

func (r *reconciler) markRead(id string) {
	for i := range r.items {
		if r.items[i].ID != id {
			continue
		}
		if !r.items[i].Read {
			r.items[i].Read = true
			// Decrement only what was counted on arrival; the counter
			// must never go negative.
			if r.items[i].SenderID != r.localUserID && r.unread > 0 {
				r.unread--
			}
		}
		return
	}
	r.log.Debug("mark-read for unknown item", "scope", r.scope, "id", id)
}

func (r *reconciler) markAllRead() {
	for i := range r.items {
		r.items[i].Read = true
	}
	r.unread = 0
}

func (r *reconciler) removePending(localID string) {
	for i := range r.pending {
		if r.pending[i].LocalID == localID {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

// publish rebuilds the snapshot and notifies the updates channel.
// Pending previews ride along at the newest end of the view: appended
// for ascending chat order, prepended for the descending feed. Previews
// targeting an item already in the view (toggles, mark-read) are tracked
// for resolution but not rendered as extra rows.
func (r *reconciler) publish() {
	items := make([]ViewItem, 0, len(r.items)+len(r.pending))

	pending := make([]ViewItem, 0, len(r.pending))
	for i := range r.pending {
		if id := r.pending[i].Preview.ID; id != "" && r.seen.Has(id) {
			continue
		}
		pending = append(pending, ViewItem{
			StreamItem: r.pending[i].Preview,
			Pending:    true,
			LocalID:    r.pending[i].LocalID,
		})
	}

	if r.scope.Kind.Descending() {
		items = append(items, pending...)
	}
	for i := range r.items {
		items = append(items, ViewItem{StreamItem: r.items[i]})
	}
	if !r.scope.Kind.Descending() {
		items = append(items, pending...)
	}

	v := View{Items: items, Unread: r.unread, Status: r.status}

	r.viewMu.Lock()
	r.view = v
	r.viewMu.Unlock()

	// Latest-wins delivery: a consumer that falls behind skips straight
	// to the newest snapshot instead of replaying stale ones.
	select {
	case r.updates <- v:
	default:
		select {
		case <-r.updates:
		default:
		}
		select {
		case r.updates <- v:
		default:
		}
	}
}

func (r *reconciler) snapshot() View {
	r.viewMu.RLock()
	defer r.viewMu.RUnlock()
	return r.view
}
