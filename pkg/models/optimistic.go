package models

import "time"

// MutationKind classifies a locally-initiated write that is applied
// before server confirmation.
type MutationKind int

const (
	MutationUnknown MutationKind = iota
	// MutationCreate submits a new item (chat message). The preview is
	// rendered in the merged view immediately and replaced by the server
	// echo on confirm.
	MutationCreate
	// MutationToggleLike toggles a like on an existing item, matched by
	// target ID on confirm.
	MutationToggleLike
	// MutationToggleFavorite toggles a favorite on an existing item,
	// matched by target ID on confirm.
	MutationToggleFavorite
	// MutationMarkRead marks an existing item read, matched by target ID
	// on confirm.
	MutationMarkRead
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreate:
		return "create"
	case MutationToggleLike:
		return "toggle-like"
	case MutationToggleFavorite:
		return "toggle-favorite"
	case MutationMarkRead:
		return "mark-read"
	default:
		return "unknown"
	}
}

// Resolution is the lifecycle state of an OptimisticEntry.
type Resolution int

const (
	ResolutionPending Resolution = iota
	ResolutionConfirmed
	ResolutionFailed
)

func (r Resolution) String() string {
	switch r {
	case ResolutionPending:
		return "pending"
	case ResolutionConfirmed:
		return "confirmed"
	case ResolutionFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// OptimisticEntry records one pending local mutation. It is created
// synchronously on user action, owned exclusively by the mutation
// tracker, and never persisted.
type OptimisticEntry struct {
	// LocalID is the temporary identifier for the entry. It is never a
	// server ID; on confirm it is explicitly resolved to the server ID of
	// the authoritative item rather than compared for equality.
	LocalID string

	Kind        MutationKind
	SubmittedAt time.Time

	// Preview is the best-effort StreamItem rendered immediately. For
	// create mutations its ID field is empty until the server echo
	// arrives; for toggles it carries the target item's server ID.
	Preview StreamItem

	Resolution Resolution
}
