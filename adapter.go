package petsync

import (
	"sync"
	"sync/atomic"

	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/logger"
)

// streamAdapter bridges one push subscription into the reconciler's
// event queue. It forwards every pushed record and status transition,
// and keeps the last known status readable without touching the queue so
// the poll scheduler can consult it on every tick.
type streamAdapter struct {
	sub connection.Subscription
	rec *reconciler
	log logger.Logger

	last atomic.Int32

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newStreamAdapter(sub connection.Subscription, rec *reconciler, log logger.Logger) *streamAdapter {
	a := &streamAdapter{
		sub: sub,
		rec: rec,
		log: log,
	}
	a.last.Store(int32(connection.StatusUnknown))

	a.wg.Add(2)
	go a.forwardRecords()
	go a.forwardStatus()

	return a
}

func (a *streamAdapter) forwardRecords() {
	defer a.wg.Done()

	for rec := range a.sub.Records() {
		if !a.rec.enqueue(pushEvent{rec: rec}) {
			// Reconciler torn down; drain silently until unsubscribe
			// closes the channel.
			return
		}
	}
}

func (a *streamAdapter) forwardStatus() {
	defer a.wg.Done()

	for st := range a.sub.Updates() {
		a.last.Store(int32(st))
		a.log.Debug("push channel status changed", "status", st)
		if !a.rec.enqueue(statusEvent{status: st}) {
			return
		}
	}
}

// lastStatus returns the most recent status observed on the push
// channel. StatusUnknown until the first transition arrives; the poll
// scheduler treats anything but live as a reason to fetch.
func (a *streamAdapter) lastStatus() connection.Status {
	return connection.Status(a.last.Load())
}

// close releases the subscription exactly once and waits for the
// forwarding goroutines to drain.
func (a *streamAdapter) close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.sub.Unsubscribe()
		a.wg.Wait()
		a.last.Store(int32(connection.StatusClosed))
	})
	return a.closeErr
}
