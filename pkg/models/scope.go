package models

import "fmt"

// ScopeKind selects the kind of logical stream a Scope identifies.
//
// The kind decides two things that differ between stream types:
// the REST paths used to fetch and write items, and the ordering
// direction of the merged view (chat ascending, notification feed
// descending).
type ScopeKind int

const (
	// ScopeUnknown indicates that the Scope has been initialized in an
	// unexpected way.
	//
	// This is intentionally the zero value of ScopeKind, so that a
	// forgotten Kind field is caught by validation rather than silently
	// treated as a chat session.
	ScopeUnknown ScopeKind = iota
	// ScopeChatSession identifies one support-chat session.
	// Items are chat messages, ordered by CreatedAt ascending.
	ScopeChatSession
	// ScopeNotificationFeed identifies one user's notification feed.
	// Items are notifications, ordered by CreatedAt descending.
	ScopeNotificationFeed
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeChatSession:
		return "session"
	case ScopeNotificationFeed:
		return "feed"
	default:
		return "unknown"
	}
}

// Descending reports whether the merged view for this kind is ordered
// by CreatedAt descending.
func (k ScopeKind) Descending() bool {
	return k == ScopeNotificationFeed
}

// Scope is the identity of one logical stream: one chat session, or one
// user's notification feed. Ordering and deduplication apply within a
// single Scope.
type Scope struct {
	Kind ScopeKind
	ID   string
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// Validate returns an error if the Scope cannot identify a stream.
func (s Scope) Validate() error {
	if s.Kind != ScopeChatSession && s.Kind != ScopeNotificationFeed {
		return fmt.Errorf("%w: kind %v", ErrInvalidScope, s.Kind)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidScope)
	}
	return nil
}

// FilterColumn returns the change-feed filter column for the scope,
// i.e. the column whose equality against the scope ID selects the
// scope's rows.
func (s Scope) FilterColumn() string {
	if s.Kind == ScopeNotificationFeed {
		return "user_id"
	}
	return "session_id"
}

// Topic returns the change-feed topic name for the scope's item table.
func (s Scope) Topic() string {
	if s.Kind == ScopeNotificationFeed {
		return "notifications"
	}
	return "messages"
}
