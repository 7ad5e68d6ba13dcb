package oauth

import (
	"encoding/json"
	"sync"

	"panelauth/internal/storage"
	"panelauth/pkg/logging"
)

// secretKeyToken is the durable-store key holding the serialized token.
const secretKeyToken = "oauth:access-token"

// TokenStore persists the OAuth access token in durable client storage with
// an in-memory copy. Expiry is enforced lazily at read time, not via a
// background timer: the first read that discovers a past expiry evicts the
// entry and returns nil.
//
// All operations are best-effort against the underlying persistence:
// storage failures are logged and the in-memory value serves the call.
type TokenStore struct {
	mu      sync.Mutex
	secrets storage.SecretStore
	cached  *Token
	loaded  bool
}

// NewTokenStore creates a token store over the given durable secret store.
func NewTokenStore(secrets storage.SecretStore) *TokenStore {
	return &TokenStore{secrets: secrets}
}

// Store saves the token. Persistence failure does not fail the call; the
// token remains available in memory.
func (s *TokenStore) Store(token *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = token
	s.loaded = true

	data, err := json.Marshal(token)
	if err != nil {
		logging.Warn("TokenStore", "Failed to serialize token, keeping in-memory only: %v", err)
		return
	}
	if err := s.secrets.Set(secretKeyToken, string(data)); err != nil {
		logging.Warn("TokenStore", "Failed to persist token, keeping in-memory only: %v", err)
	}
}

// Read returns the stored token, or nil if none exists or it has expired.
// An expired token is evicted before returning.
func (s *TokenStore) Read() *Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.cached = s.readPersisted()
		s.loaded = true
	}

	if s.cached == nil {
		return nil
	}

	if s.cached.Expired() {
		logging.Debug("TokenStore", "Evicting expired access token")
		s.cached = nil
		if err := s.secrets.Remove(secretKeyToken); err != nil {
			logging.Warn("TokenStore", "Failed to evict expired token from storage: %v", err)
		}
		return nil
	}

	return s.cached
}

// Clear removes the token from memory and durable storage. Called on logout
// or unlink.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = nil
	s.loaded = true
	if err := s.secrets.Remove(secretKeyToken); err != nil {
		logging.Warn("TokenStore", "Failed to clear token from storage: %v", err)
	}
}

// readPersisted loads the token from durable storage. Any failure is treated
// as an absent token.
func (s *TokenStore) readPersisted() *Token {
	data, ok, err := s.secrets.Get(secretKeyToken)
	if err != nil {
		logging.Warn("TokenStore", "Failed to read token from storage: %v", err)
		return nil
	}
	if !ok {
		return nil
	}

	var token Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		logging.Warn("TokenStore", "Discarding unparseable stored token: %v", err)
		return nil
	}
	return &token
}
