package ws

import "sync"

// Registry is the process-wide map of live client sessions. A multi-threaded
// runtime needs an explicit lock here; iteration works on a snapshot so a
// session may be removed mid-broadcast without invalidating the loop.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*ClientSession
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*ClientSession)}
}

// Add registers a session under its id.
func (r *Registry) Add(s *ClientSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get returns the session for an id, or nil.
func (r *Registry) Get(id string) *ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove deletes a session by id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ForEach calls fn for every session present when the iteration started.
func (r *Registry) ForEach(fn func(*ClientSession)) {
	r.mu.RLock()
	snapshot := make([]*ClientSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}
