package session

import "sync"

// Registry enforces the single-active-session rule. Activate claims the
// slot; a second claim while one is held reports ErrAlreadyActive.
type Registry struct {
	mu     sync.Mutex
	active *Session
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Activate(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrAlreadyActive
	}
	r.active = s
	return nil
}

// Deactivate releases the slot if s holds it.
func (r *Registry) Deactivate(s *Session) {
	r.mu.Lock()
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()
}

func (r *Registry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
