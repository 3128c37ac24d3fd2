package petsync

import (
	"context"
	"fmt"

	"github.com/pawbase/petsync/pkg/api"
	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/connection/gorillaws"
	"github.com/pawbase/petsync/pkg/logger"
	"github.com/pawbase/petsync/pkg/models"
)

// Client is the process-wide entry point: one REST client plus at most
// one realtime transport, from which per-scope Streams are opened. There
// is deliberately no process-wide stream state; every logical stream
// gets its own reconciler.
type Client struct {
	conf Config
	api  *api.Client
	rt   connection.Realtime
	log  logger.Logger
}

func New(conf Config) (*Client, error) {
	conf = conf.withDefaults()
	if err := conf.validate(); err != nil {
		return nil, err
	}

	apiOpts := []api.Option{api.WithLogger(conf.Logger)}
	if conf.Token != "" {
		apiOpts = append(apiOpts, api.WithToken(conf.Token))
	}
	if conf.HTTPClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(conf.HTTPClient))
	}

	rt := conf.Realtime
	if rt == nil && conf.RealtimeURL != "" {
		rt = gorillaws.New(conf.RealtimeURL, gorillaws.WithLogger(conf.Logger))
	}

	return &Client{
		conf: conf,
		api:  api.New(conf.BaseURL, apiOpts...),
		rt:   rt,
		log:  conf.Logger,
	}, nil
}

// Connect establishes the realtime transport. A no-op in poll-only mode.
// Only the initial connection error is surfaced; later drops degrade the
// affected streams and recover internally.
func (c *Client) Connect(ctx context.Context) error {
	if c.rt == nil {
		return nil
	}
	if err := c.rt.Connect(ctx); err != nil {
		return fmt.Errorf("petsync: realtime connect failed: %w", err)
	}
	return nil
}

// Close releases the realtime transport. Streams must be closed first;
// Close does not track them.
func (c *Client) Close(ctx context.Context) error {
	if c.rt == nil {
		return nil
	}
	return c.rt.Close(ctx)
}

// Open subscribes a logical stream and starts its reconciler, poll
// fallback, and mutation tracker. The initial load is kicked off
// immediately via the fetch-all endpoint.
//
// A failed push subscription is not fatal: the stream opens degraded and
// the poll fallback carries delivery until the transport recovers.
func (c *Client) Open(ctx context.Context, scope models.Scope) (*Stream, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	rec := newReconciler(scope, c.conf.LocalUserID, c.conf.QueueSize, c.log)
	tracker := newMutationTracker(rec, c.conf.MatchWindow, c.log)
	rec.resolvePending = tracker.resolveByMatch

	rec.transition(stateSubscribing)
	go rec.run()

	var adapter *streamAdapter
	if c.rt != nil {
		sub, err := c.rt.Subscribe(ctx, scope.Topic(), connection.Filter{
			Column: scope.FilterColumn(),
			Value:  scope.ID,
		})
		if err != nil {
			c.log.Warn("push subscribe failed, stream opens on poll fallback only",
				"scope", scope, "error", err)
			rec.enqueue(statusEvent{status: connection.StatusDegraded})
		} else {
			adapter = newStreamAdapter(sub, rec, c.log)
		}
	} else {
		rec.enqueue(statusEvent{status: connection.StatusDegraded})
	}

	statusFn := func() connection.Status {
		if adapter == nil {
			return connection.StatusDegraded
		}
		return adapter.lastStatus()
	}

	poller := newPollScheduler(scope, c.conf.PollInterval, c.api.FetchAll, statusFn,
		func(items []models.StreamItem) bool {
			return rec.enqueue(pollEvent{items: items})
		}, c.log)
	poller.start()
	poller.refreshNow()

	return &Stream{
		scope:       scope,
		localUserID: c.conf.LocalUserID,
		api:         c.api,
		log:         c.log,
		rec:         rec,
		adapter:     adapter,
		poller:      poller,
		tracker:     tracker,
	}, nil
}
