package reminders

import "sync"

// SessionStore holds the ephemeral per-tab session id. It is cleared when the
// viewer's session ends.
type SessionStore interface {
	CurrentSessionID() (string, bool)
	SetCurrentSessionID(id string)
}

// MemorySession is a SessionStore that lives as long as the process.
type MemorySession struct {
	mu sync.RWMutex
	id string
}

// NewMemorySession returns an empty session.
func NewMemorySession() *MemorySession {
	return &MemorySession{}
}

// CurrentSessionID implements SessionStore.
func (s *MemorySession) CurrentSessionID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.id != ""
}

// SetCurrentSessionID implements SessionStore.
func (s *MemorySession) SetCurrentSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}
