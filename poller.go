package petsync

import (
	"context"
	"sync"
	"time"

	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/logger"
	"github.com/pawbase/petsync/pkg/models"
)

// fetchAllFunc retrieves the authoritative full item list for a scope.
type fetchAllFunc func(ctx context.Context, scope models.Scope) ([]models.StreamItem, error)

// pollScheduler is the timer-driven fallback delivery path. It is armed
// for the whole life of a stream: every tick it consults the adapter's
// last known status and skips the fetch only when the push channel is
// confirmed live. Connecting, degraded, and unknown all fetch — the
// system must never stop delivering because the push channel is assumed,
// possibly incorrectly, to be healthy.
type pollScheduler struct {
	scope    models.Scope
	interval time.Duration
	fetchAll fetchAllFunc
	status   func() connection.Status
	deliver  func(items []models.StreamItem) bool
	log      logger.Logger

	kickCh   chan struct{}
	stopCh   chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
}

func newPollScheduler(
	scope models.Scope,
	interval time.Duration,
	fetchAll fetchAllFunc,
	status func() connection.Status,
	deliver func(items []models.StreamItem) bool,
	log logger.Logger,
) *pollScheduler {
	return &pollScheduler{
		scope:    scope,
		interval: interval,
		fetchAll: fetchAll,
		status:   status,
		deliver:  deliver,
		log:      log,
		kickCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

func (p *pollScheduler) start() {
	go p.loop()
}

func (p *pollScheduler) loop() {
	defer close(p.loopDone)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.tick(false)
		case <-p.kickCh:
			p.tick(true)
		}
	}
}

func (p *pollScheduler) tick(forced bool) {
	if !forced {
		if st := p.status(); st == connection.StatusLive {
			p.log.Debug("poll skipped, push channel is live", "scope", p.scope)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	items, err := p.fetchAll(ctx, p.scope)
	if err != nil {
		// Logged and ignored: the next tick retries unconditionally.
		p.log.Warn("poll fetch failed, retrying next tick", "scope", p.scope, "error", err)
		return
	}

	p.deliver(items)
}

// refreshNow forces an immediate fetch regardless of the push channel
// status. Never blocks; overlapping requests coalesce into one tick.
func (p *pollScheduler) refreshNow() {
	select {
	case p.kickCh <- struct{}{}:
	default:
	}
}

func (p *pollScheduler) stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.loopDone
	})
}
