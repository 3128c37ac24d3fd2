package petsync

import (
	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/models"
)

// event is the single funnel through which every trigger reaches the
// reconciler loop: push callbacks, poll results, optimistic mutations,
// and read-state changes all enqueue here and are processed one at a
// time by the consumer goroutine. Modeling the sources as tagged
// variants removes any need to reason about callback interleaving.
type event interface {
	isEvent()
}

// pushEvent is one raw record off the push channel. Validation happens
// in the reconciler, so a malformed push is dropped there, not here.
type pushEvent struct {
	rec connection.Record
}

// pollEvent is a full-list poll result. Items already accepted are
// discarded one by one via the identity set.
type pollEvent struct {
	items []models.StreamItem
}

// statusEvent records a connection status transition for the view.
type statusEvent struct {
	status connection.Status
}

// optimisticInsertEvent inserts a pending preview. It deliberately does
// not pass through the identity set: previews have no server ID and must
// never fool the dedupe.
type optimisticInsertEvent struct {
	entry models.OptimisticEntry
}

// optimisticResolveEvent replaces a preview with the authoritative item.
type optimisticResolveEvent struct {
	localID string
	item    models.StreamItem
}

// optimisticFailEvent rolls a preview back.
type optimisticFailEvent struct {
	localID string
}

// markReadEvent marks one item read in place.
type markReadEvent struct {
	id string
}

// markAllReadEvent marks the whole stream read.
type markAllReadEvent struct{}

func (pushEvent) isEvent()              {}
func (pollEvent) isEvent()              {}
func (statusEvent) isEvent()            {}
func (optimisticInsertEvent) isEvent()  {}
func (optimisticResolveEvent) isEvent() {}
func (optimisticFailEvent) isEvent()    {}
func (markReadEvent) isEvent()          {}
func (markAllReadEvent) isEvent()       {}
