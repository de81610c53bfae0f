package session

import "sync"

// TokenSource is the read side of the credential store. Everything except the
// Controller gets one of these.
type TokenSource interface {
	// Token returns the current credential and whether one is present.
	Token() (string, bool)
}

// Store holds the session credential.
type Store interface {
	TokenSource
	// Set replaces the credential. Setting "" is the same as Clear.
	Set(token string)
	// Clear removes the credential. Clearing an empty store is a no-op.
	Clear()
}

// MemoryStore keeps the credential in process memory only. It is lost on
// restart and never written to disk.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *MemoryStore) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *MemoryStore) Clear() {
	s.Set("")
}
