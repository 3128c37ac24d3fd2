package petsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/models"
)

// newTestReconciler builds a reconciler in the state Open leaves it in,
// without starting the consumer goroutine: tests step events through it
// synchronously for determinism.
func newTestReconciler(t *testing.T, kind models.ScopeKind) *reconciler {
	t.Helper()
	r := newReconciler(models.Scope{Kind: kind, ID: "s-1"}, "me", 64, testLogger(t))
	r.transition(stateSubscribing)
	return r
}

func pushRecord(t *testing.T, item models.StreamItem, action connection.Action) pushEvent {
	t.Helper()
	data, err := json.Marshal(item)
	require.NoError(t, err)
	return pushEvent{rec: connection.Record{Topic: "messages", Action: action, Data: data}}
}

func viewIDs(v View) []string {
	ids := make([]string, 0, len(v.Items))
	for _, it := range v.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestReconcilerIdempotency(t *testing.T) {
	r := newTestReconciler(t, models.ScopeChatSession)
	base := time.Now()

	item := chatItem("m1", "them", base, false)

	// Deliver the same item through every source mix, several times.
	r.step(pushRecord(t, item, connection.ActionInsert))
	r.step(pollEvent{items: []models.StreamItem{item}})
	r.step(pushRecord(t, item, connection.ActionInsert))
	r.step(pollEvent{items: []models.StreamItem{item, item}})

	v := r.snapshot()
	assert.Equal(t, []string{"m1"}, viewIDs(v))
	assert.Equal(t, 1, v.Unread, "duplicate deliveries must not inflate unread")
}

func TestReconcilerOrdering(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("chat ascending regardless of arrival order", func(t *testing.T) {
		r := newTestReconciler(t, models.ScopeChatSession)

		r.step(pushRecord(t, chatItem("m3", "them", base.Add(3*time.Second), false), connection.ActionInsert))
		r.step(pushRecord(t, chatItem("m1", "them", base.Add(1*time.Second), false), connection.ActionInsert))
		r.step(pollEvent{items: []models.StreamItem{chatItem("m2", "them", base.Add(2*time.Second), false)}})

		assert.Equal(t, []string{"m1", "m2", "m3"}, viewIDs(r.snapshot()))
	})

	t.Run("notification feed descending", func(t *testing.T) {
		r := newTestReconciler(t, models.ScopeNotificationFeed)

		r.step(pollEvent{items: []models.StreamItem{
			chatItem("n1", "them", base.Add(1*time.Second), false),
			chatItem("n2", "them", base.Add(2*time.Second), false),
		}})

		assert.Equal(t, []string{"n2", "n1"}, viewIDs(r.snapshot()))
	})

	t.Run("created-at ties broken by id", func(t *testing.T) {
		r := newTestReconciler(t, models.ScopeChatSession)

		r.step(pushRecord(t, chatItem("mB", "them", base, false), connection.ActionInsert))
		r.step(pushRecord(t, chatItem("mA", "them", base, false), connection.ActionInsert))

		assert.Equal(t, []string{"mA", "mB"}, viewIDs(r.snapshot()))
	})
}

func TestReconcilerMalformedArrivals(t *testing.T) {
	r := newTestReconciler(t, models.ScopeChatSession)
	base := time.Now()

	t.Run("undecodable push is dropped", func(t *testing.T) {
		r.step(pushEvent{rec: connection.Record{
			Topic:  "messages",
			Action: connection.ActionInsert,
			Data:   json.RawMessage(`{"id":`),
		}})
		assert.Empty(t, r.snapshot().Items)
	})

	t.Run("missing fields are dropped", func(t *testing.T) {
		r.step(pushRecord(t, models.StreamItem{ID: "m-noid"}, connection.ActionInsert))
		assert.Empty(t, r.snapshot().Items)
	})

	t.Run("bad item does not abort the rest of the batch", func(t *testing.T) {
		good1 := chatItem("m1", "them", base, false)
		good2 := chatItem("m2", "them", base.Add(time.Second), false)
		bad := models.StreamItem{ID: "m-bad"} // no stream, no created_at

		r.step(pollEvent{items: []models.StreamItem{good1, bad, good2}})
		assert.Equal(t, []string{"m1", "m2"}, viewIDs(r.snapshot()))
	})
}

func TestReconcilerUnreadCounter(t *testing.T) {
	base := time.Now()

	t.Run("counts remote unread only", func(t *testing.T) {
		r := newTestReconciler(t, models.ScopeChatSession)

		r.step(pushRecord(t, chatItem("m1", "them", base, false), connection.ActionInsert))
		r.step(pushRecord(t, chatItem("m2", "me", base.Add(time.Second), false), connection.ActionInsert))
		r.step(pushRecord(t, chatItem("m3", "them", base.Add(2*time.Second), true), connection.ActionInsert))

		assert.Equal(t, 1, r.snapshot().Unread)
	})

	t.Run("targeted mark-read decrements once", func(t *testing.T) {
		r := newTestReconciler(t, models.ScopeChatSession)

		r.step(pushRecord(t, chatItem("m1", "them", base, false), connection.ActionInsert))
		require.Equal(t, 1, r.snapshot().Unread)

		r.step(markReadEvent{id: "m1"})
		assert.Equal(t, 0, r.snapshot().Unread)

		// Repeating must not go negative.
		r.step(markReadEvent{id: "m1"})
		r.step(markReadEvent{id: "missing"})
		assert.Equal(t, 0, r.snapshot().Unread)
	})

	t.Run("mark-read keeps ordering and identity intact", func(t *testing.T) {
		r := newTestReconciler(t, models.ScopeChatSession)

		r.step(pushRecord(t, chatItem("m1", "them", base, false), connection.ActionInsert))
		r.step(pushRecord(t, chatItem("m2", "them", base.Add(time.Second), false), connection.ActionInsert))

		r.step(pushRecord(t, chatItem("m1", "them", base, true), connection.ActionUpdate))

		v := r.snapshot()
		assert.Equal(t, []string{"m1", "m2"}, viewIDs(v))
		assert.True(t, v.Items[0].Read)
		assert.Equal(t, 1, v.Unread)
	})

	t.Run("mark-all-read zeroes", func(t *testing.T) {
		r := newTestReconciler(t, models.ScopeChatSession)

		for i, id := range []string{"m1", "m2", "m3"} {
			r.step(pushRecord(t, chatItem(id, "them", base.Add(time.Duration(i)*time.Second), false), connection.ActionInsert))
		}
		require.Equal(t, 3, r.snapshot().Unread)

		r.step(markAllReadEvent{})
		v := r.snapshot()
		assert.Equal(t, 0, v.Unread)
		for _, it := range v.Items {
			assert.True(t, it.Read)
		}
	})

	t.Run("random interleavings never go negative", func(t *testing.T) {
		r := newTestReconciler(t, models.ScopeChatSession)

		ids := []string{"a", "b", "c", "d"}
		for i, id := range ids {
			r.step(pushRecord(t, chatItem(id, "them", base.Add(time.Duration(i)*time.Second), false), connection.ActionInsert))
			r.step(markReadEvent{id: id})
			r.step(markReadEvent{id: id})
			assert.GreaterOrEqual(t, r.snapshot().Unread, 0)
		}
		r.step(markAllReadEvent{})
		r.step(markReadEvent{id: "a"})
		assert.Equal(t, 0, r.snapshot().Unread)
	})
}

func TestReconcilerStatus(t *testing.T) {
	r := newTestReconciler(t, models.ScopeChatSession)

	r.step(statusEvent{status: connection.StatusConnecting})
	assert.Equal(t, connection.StatusConnecting, r.snapshot().Status)

	r.step(statusEvent{status: connection.StatusLive})
	assert.Equal(t, connection.StatusLive, r.snapshot().Status)
}

func TestReconcilerTeardownGuard(t *testing.T) {
	r := newTestReconciler(t, models.ScopeChatSession)
	go r.run()

	require.True(t, r.enqueue(pollEvent{items: []models.StreamItem{chatItem("m1", "them", time.Now(), false)}}))

	r.close()

	assert.False(t, r.enqueue(pushRecord(t, chatItem("m2", "them", time.Now(), false), connection.ActionInsert)),
		"late arrivals must be rejected after teardown")
	assert.True(t, r.isClosed())
	assert.Equal(t, stateTornDown, r.state)
}
