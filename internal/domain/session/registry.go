package session

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry holds the open sessions of a proxy
type Registry struct {
	sessions sync.Map
	count    atomic.Int64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a session. A duplicate id returns ErrSessionExists.
func (r *Registry) Add(s *Session) error {
	if _, loaded := r.sessions.LoadOrStore(s.ID(), s); loaded {
		return fmt.Errorf("%w: %s", ErrSessionExists, s.ID())
	}
	r.count.Add(1)
	return nil
}

// Get looks up an open session
func (r *Registry) Get(id string) (*Session, bool) {
	if v, ok := r.sessions.Load(id); ok {
		return v.(*Session), true
	}
	return nil, false
}

// Remove unregisters a session and returns it
func (r *Registry) Remove(id string) (*Session, bool) {
	v, ok := r.sessions.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	r.count.Add(-1)
	return v.(*Session), true
}

// List returns the open sessions, oldest first
func (r *Registry) List() []*Session {
	sessions := make([]*Session, 0, r.Len())
	r.sessions.Range(func(_, value interface{}) bool {
		sessions = append(sessions, value.(*Session))
		return true
	})

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].created.Equal(sessions[j].created) {
			return sessions[i].id < sessions[j].id
		}
		return sessions[i].created.Before(sessions[j].created)
	})
	return sessions
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	return int(r.count.Load())
}
