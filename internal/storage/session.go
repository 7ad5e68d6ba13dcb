package storage

import "sync"

// SessionStore is an ephemeral, process-scoped key-value store. It holds
// flow-scoped values that must not outlive the application session: the raw
// OAuth state string, the PKCE verifier, and the used-code set. Nothing in
// it is ever written to disk.
type SessionStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{values: make(map[string]string)}
}

// Get returns the value for key, or "" if none is set.
func (s *SessionStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores value under key.
func (s *SessionStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Remove deletes the value under key.
func (s *SessionStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Clear removes all values. Called on logout so no flow state survives
// into the next authentication attempt.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
}
