package petsync

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/pawbase/petsync/pkg/connection"
	"github.com/pawbase/petsync/pkg/logger"
)

const (
	// DefaultPollInterval is the fallback polling cadence. New items are
	// visible within one interval even if the push channel never
	// connects.
	DefaultPollInterval = 3 * time.Second

	// DefaultQueueSize is the depth of the reconciler's event queue.
	DefaultQueueSize = 256

	// DefaultMatchWindow is the created-at tolerance used when a pushed
	// record is correlated against a pending create without an echo.
	DefaultMatchWindow = 10 * time.Second
)

// ErrMissingBaseURL is returned by New when the REST endpoint is not
// configured. The fetch-all endpoint is mandatory: without it neither
// the initial load nor the poll fallback can run.
var ErrMissingBaseURL = errors.New("config: BaseURL is required")

// Config configures a Client. The zero value of every optional field is
// replaced by a sensible default; only BaseURL is mandatory.
type Config struct {
	// BaseURL is the REST API endpoint, e.g. "https://api.pawbase.example".
	BaseURL string

	// RealtimeURL is the WebSocket change-feed endpoint. Leave empty to
	// run poll-only; the reconciler then keeps streams fresh on the
	// polling interval alone.
	RealtimeURL string

	// Token authenticates both transports.
	Token string

	// LocalUserID is the authenticated user. Arrivals authored by this
	// user never count toward the unread counter.
	LocalUserID string

	// PollInterval is the fallback polling cadence.
	PollInterval time.Duration

	// QueueSize bounds the reconciler event queue per stream.
	QueueSize int

	// MatchWindow is the tolerance for heuristic create matching.
	MatchWindow time.Duration

	Logger logger.Logger

	// Realtime overrides the transport built from RealtimeURL. Used by
	// tests and by callers that manage their own connection.
	Realtime connection.Realtime

	// HTTPClient overrides http.DefaultClient for the REST calls.
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MatchWindow <= 0 {
		c.MatchWindow = DefaultMatchWindow
	}
	if c.Logger == nil {
		c.Logger = logger.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return c
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	return nil
}
