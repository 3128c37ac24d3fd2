package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidScope indicates a Scope that cannot identify a logical stream.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrMalformedItem indicates a pushed or polled record that is missing
	// required fields. Such records are dropped individually; they must not
	// abort processing of the rest of a batch.
	ErrMalformedItem = errors.New("malformed stream item")
)

// StreamItem is the unit flowing through the sync layer: one chat message
// or one notification.
//
// ID is assigned by the server and never changes. Optimistic previews are
// not StreamItems with made-up IDs: they are tracked separately under a
// temporary local ID and replaced, not merged by equality, once the server
// echo arrives.
type StreamItem struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
	SenderID string `json:"sender_id"`

	// Payload is the opaque content blob: message text, or a typed
	// notification body. The sync layer never interprets it.
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is server-assigned and is the sole ordering key within a
	// stream. Arrival order must never be assumed to equal logical order.
	CreatedAt time.Time `json:"created_at"`

	// Read is the only field that is mutable after creation.
	Read bool `json:"read"`
}

// Validate checks the fields every arrival must carry. It is the mandatory
// boundary step for records coming off the push channel or a poll fetch.
func (it *StreamItem) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedItem)
	}
	if it.StreamID == "" {
		return fmt.Errorf("%w: missing stream_id (item %s)", ErrMalformedItem, it.ID)
	}
	if it.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created_at (item %s)", ErrMalformedItem, it.ID)
	}
	return nil
}

// Less reports whether it orders before other within a stream of the given
// direction. Ties on CreatedAt are broken by ID so that re-sorting is
// deterministic regardless of arrival order.
func (it *StreamItem) Less(other *StreamItem, descending bool) bool {
	if !it.CreatedAt.Equal(other.CreatedAt) {
		if descending {
			return it.CreatedAt.After(other.CreatedAt)
		}
		return it.CreatedAt.Before(other.CreatedAt)
	}
	if descending {
		return it.ID > other.ID
	}
	return it.ID < other.ID
}
