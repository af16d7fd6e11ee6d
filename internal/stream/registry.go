package stream

import "sync"

// Registry tracks the sessions currently attached to live connections
// so the HTTP API can reach them (reset, status).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.ID)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ResetAll asks every live session to drop its tracker state before its
// next frame, and returns how many were signalled.
func (r *Registry) ResetAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.RequestReset()
	}
	return len(r.sessions)
}
