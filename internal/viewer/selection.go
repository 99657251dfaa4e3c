package viewer

import (
	"sync"

	"github.com/okian/gaitlog/internal/domain/types"
)

// Selection holds the fetched detail of every active session, in the order
// they were activated. It is owned by a Viewer and shared by reference with
// its Registry and Renderer.
type Selection struct {
	mu      sync.RWMutex
	order   []string
	details map[string]types.Detail
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{details: make(map[string]types.Detail)}
}

// Add inserts d, or replaces it in place when already present.
func (s *Selection) Add(d types.Detail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.details[d.SessionID]; !ok {
		s.order = append(s.order, d.SessionID)
	}
	s.details[d.SessionID] = d
}

// Remove drops id and reports whether it was present.
func (s *Selection) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.details[id]; !ok {
		return false
	}
	delete(s.details, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether id is selected.
func (s *Selection) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.details[id]
	return ok
}

// Len returns the number of selected sessions.
func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// IDs returns the selected ids in activation order.
func (s *Selection) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Details returns a snapshot of the selected details in activation order.
func (s *Selection) Details() []types.Detail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Detail, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.details[id])
	}
	return out
}
