// Package identity tracks the server IDs a reconciler has accepted for
// one logical stream, so that duplicate arrivals from any source are
// discarded as no-ops.
package identity

// Set is a grow-only set of item IDs. It lives for the lifetime of one
// stream subscription and is dropped wholesale on teardown.
//
// Set is not safe for concurrent use: it is owned by the reconciler's
// single consumer goroutine.
type Set struct {
	ids map[string]struct{}
}

func NewSet() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Add records id and reports whether it was newly added. A false return
// means the same item was already accepted and the arrival must be
// discarded.
func (s *Set) Add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *Set) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *Set) Len() int {
	return len(s.ids)
}
