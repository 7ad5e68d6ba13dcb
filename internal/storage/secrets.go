// Package storage provides the persistence collaborators for the credential
// lifecycle: a durable string-keyed secret store for long-lived credentials
// (OAuth tokens, cached deploy keys) and an ephemeral session store for
// flow-scoped values (PKCE verifiers, state strings, the used-code set).
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultSecretsDir is the default directory for durable secrets, relative
// to the user's home directory.
const DefaultSecretsDir = ".config/panelauth/secrets"

// SecretStore is a durable string-keyed blob store.
// All implementations must be safe for concurrent use.
type SecretStore interface {
	// Get returns the value for key. The second return is false when no
	// value is stored under key.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any existing value.
	Set(key, value string) error

	// Remove deletes the value under key. Removing a missing key is not
	// an error.
	Remove(key string) error
}

// FileSecretStore persists secrets as individual files.
//
// SECURITY: the store handles credentials. The directory is created with
// 0700 and files with 0600 permissions, and values are never logged.
// File names are derived from a SHA-256 hash of the key so arbitrary key
// strings cannot escape the storage directory.
type FileSecretStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileSecretStore creates a file-backed secret store rooted at dir.
// If dir is empty, DefaultSecretsDir under the home directory is used.
func NewFileSecretStore(dir string) (*FileSecretStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultSecretsDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret storage directory: %w", err)
	}

	return &FileSecretStore{dir: dir}, nil
}

// Get implements SecretStore.
func (s *FileSecretStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path is derived from a hash of the key, not user input
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read secret: %w", err)
	}
	return string(data), true, nil
}

// Set implements SecretStore.
func (s *FileSecretStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(key), []byte(value), 0600); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	return nil
}

// Remove implements SecretStore.
func (s *FileSecretStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove secret: %w", err)
	}
	return nil
}

// path maps a key to a filesystem-safe file name inside the store directory.
func (s *FileSecretStore) path(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(hash[:16])+".secret")
}

// MemorySecretStore is an in-memory SecretStore for tests and for callers
// that explicitly opt out of durable persistence.
type MemorySecretStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemorySecretStore creates an empty in-memory secret store.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{values: make(map[string]string)}
}

// Get implements SecretStore.
func (s *MemorySecretStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements SecretStore.
func (s *MemorySecretStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove implements SecretStore.
func (s *MemorySecretStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
