// Package connection defines the realtime push transport consumed by the
// sync layer: a filtered change-feed subscription delivering insert and
// update events for one logical stream.
package connection

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotConnected is returned when a subscription is requested before
	// the transport has connected, or after it has closed.
	ErrNotConnected = errors.New("realtime transport is not connected")

	// ErrSubscriptionClosed is returned by Unsubscribe when the
	// subscription has already been released.
	ErrSubscriptionClosed = errors.New("subscription already closed")
)

// Action is the change kind carried by a pushed record.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Filter is a column equality filter selecting the rows of one logical
// stream, e.g. session_id = X.
type Filter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Record is one raw pushed change. Data is opaque here; the reconciler
// performs the mandatory validation step before accepting it.
//
// The transport guarantees neither ordering nor at-most-once delivery:
// the same logical change may arrive zero, one, or several times, and the
// consumer must be idempotent.
type Record struct {
	Topic  string          `json:"topic"`
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"record"`
}

// Subscription is one live filtered feed.
//
// Unsubscribe must be called exactly once when the owning scope is torn
// down; a subscription that is never unsubscribed holds its channel for
// the process lifetime.
type Subscription interface {
	// Records delivers pushed changes. The channel is closed after
	// Unsubscribe returns.
	Records() <-chan Record

	// Updates delivers status transitions. Sends are non-blocking on the
	// transport side; consumers that fall behind observe only the most
	// recent transitions.
	Updates() <-chan Status

	Unsubscribe() error
}

// Realtime is a push transport capable of opening filtered change-feed
// subscriptions.
type Realtime interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, filter Filter) (Subscription, error)
	Close(ctx context.Context) error
}
