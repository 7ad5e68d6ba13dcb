package oauth

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"panelauth/internal/storage"
)

// Session store keys for flow-scoped values. The raw verifier is persisted
// separately from the encoded state as defense in depth: even if the encoded
// state round-trip were tampered with, the stored verifier is the source of
// truth at exchange time.
const (
	sessionKeyState    = "oauth:state"
	sessionKeyVerifier = "oauth:pkce-verifier"
	sessionKeyUsed     = "oauth:used-codes"
)

// maxUsedCodes bounds the replay-protection set. Oldest entries are evicted
// first once the bound is reached.
const maxUsedCodes = 10

// Client is the client-side OAuth protocol participant. It owns all mutable
// flow state (pending exchanges, the used-code set, session storage keys),
// is constructed once per application session, and is torn down on logout.
type Client struct {
	session *storage.SessionStore
	tokens  *TokenStore

	httpClient *http.Client

	// pending coalesces concurrent exchanges for the same authorization
	// code into a single network call.
	pending singleflight.Group

	// usedMu guards the used-code set read-modify-write. The source system
	// relied on a cooperative scheduler for this; under Go's preemptive
	// goroutines an explicit lock is required.
	usedMu sync.Mutex
}

// NewClient creates an OAuth client over the given stores.
func NewClient(session *storage.SessionStore, tokens *TokenStore) *Client {
	return &Client{
		session:    session,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// TokenStore returns the token store for credential consumers.
func (c *Client) TokenStore() *TokenStore {
	return c.tokens
}

// Reset clears all session-scoped flow state. Called on logout.
func (c *Client) Reset() {
	c.session.Remove(sessionKeyState)
	c.session.Remove(sessionKeyVerifier)
	c.session.Remove(sessionKeyUsed)
}
