package deploykey

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"panelauth/internal/oauth"
	"panelauth/internal/storage"
	"panelauth/pkg/logging"
)

// State is the observable credential state for the currently selected
// deployment. Key is empty while no usable credential exists.
type State struct {
	// Key is the active deploy credential, empty when none is available.
	Key string
	// OwnerDeployment names the deployment the key is bound to. A key is
	// only usable while OwnerDeployment equals the selected deployment.
	OwnerDeployment string
	// Err holds a user-facing description of why no key is available.
	Err string
	// Loading reports an in-progress cache probe or generation.
	Loading bool
	// IsManual is true for keys supplied by the user or adopted from the
	// cache, false for freshly generated keys and OAuth fallbacks.
	IsManual bool
}

// RetryPolicy bounds the generation retry loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy matches the backend's rate limiting headroom.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// GenerationExhaustedError reports that every generation attempt failed
// and no fallback credential was available.
type GenerationExhaustedError struct {
	Deployment string
	Attempts   int
	LastErr    error
}

// Error implements the error interface.
func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("deploy key generation for %q failed after %d attempts: %v",
		e.Deployment, e.Attempts, e.LastErr)
}

// Unwrap exposes the final attempt's error.
func (e *GenerationExhaustedError) Unwrap() error {
	return e.LastErr
}

// cachedKey is the persisted per-deployment record.
type cachedKey struct {
	Key       string `json:"key"`
	ProjectID string `json:"projectId,omitempty"`
	TeamID    string `json:"teamId,omitempty"`
}

// Manager owns the deploy key lifecycle for one project: deployment
// selection, cache adoption, generation with retries, manual overrides.
type Manager struct {
	mu         sync.Mutex
	secrets    storage.SecretStore
	tokens     *oauth.TokenStore
	issuer     Issuer
	retry      RetryPolicy
	projectID  string
	teamID     string
	deployment string
	state      State
	inflight   map[string]bool
}

// NewManager creates a deploy key manager. projectID and teamID are
// recorded alongside cached keys so stale entries can be traced.
func NewManager(secrets storage.SecretStore, tokens *oauth.TokenStore, issuer Issuer, retry RetryPolicy, projectID, teamID string) *Manager {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Manager{
		secrets:   secrets,
		tokens:    tokens,
		issuer:    issuer,
		retry:     retry,
		projectID: projectID,
		teamID:    teamID,
		inflight:  make(map[string]bool),
	}
}

// State returns a snapshot of the current credential state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Deployment returns the currently selected deployment name.
func (m *Manager) Deployment() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deployment
}

// SetDeployment switches the selected deployment. Any key bound to a
// different deployment is discarded before anything else happens, then the
// per-deployment cache is probed for a previously persisted key.
func (m *Manager) SetDeployment(name string) {
	m.mu.Lock()
	m.deployment = name
	m.state = State{OwnerDeployment: name, Loading: true}
	m.mu.Unlock()

	if name == "" {
		m.mu.Lock()
		m.state = State{}
		m.mu.Unlock()
		return
	}

	cached := m.readCached(name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deployment != name {
		// Selection moved on while we probed the cache.
		return
	}
	if cached != "" {
		m.state = State{Key: cached, OwnerDeployment: name, IsManual: true}
		logging.Debug("deploykey", "Adopted cached deploy key for %s", name)
		return
	}
	m.state = State{
		OwnerDeployment: name,
		Err:             fmt.Sprintf("no deploy key available for deployment %q", name),
	}
}

// readCached loads and validates the persisted key for a deployment.
// Entries that fail validation are dropped so they cannot be adopted again.
func (m *Manager) readCached(deployment string) string {
	raw, ok, err := m.secrets.Get(cacheKey(deployment))
	if err != nil {
		logging.Warn("deploykey", "Failed to read cached deploy key for %s: %v", deployment, err)
		return ""
	}
	if !ok {
		return ""
	}

	var record cachedKey
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		logging.Warn("deploykey", "Discarding unreadable deploy key cache entry for %s: %v", deployment, err)
		m.removeCached(deployment)
		return ""
	}
	if err := ValidateKeyFor(record.Key, deployment); err != nil {
		logging.Warn("deploykey", "Discarding invalid cached deploy key for %s: %v", deployment, err)
		m.removeCached(deployment)
		return ""
	}
	return record.Key
}

func (m *Manager) removeCached(deployment string) {
	if err := m.secrets.Remove(cacheKey(deployment)); err != nil {
		logging.Warn("deploykey", "Failed to remove cached deploy key for %s: %v", deployment, err)
	}
}

func (m *Manager) persistKey(deployment, key string) {
	record := cachedKey{Key: key, ProjectID: m.projectID, TeamID: m.teamID}
	encoded, err := json.Marshal(record)
	if err != nil {
		logging.Warn("deploykey", "Failed to encode deploy key record for %s: %v", deployment, err)
		return
	}
	if err := m.secrets.Set(cacheKey(deployment), string(encoded)); err != nil {
		logging.Warn("deploykey", "Failed to persist deploy key for %s: %v", deployment, err)
	}
}

func cacheKey(deployment string) string {
	return "deploykey:" + deployment
}

// Regenerate creates a fresh deploy key for the selected deployment. At
// most one generation runs per deployment at a time; a concurrent call is
// a no-op. Attempts back off exponentially, and when every attempt fails
// a still-valid OAuth access token is adopted as a makeshift credential.
func (m *Manager) Regenerate(ctx context.Context) error {
	m.mu.Lock()
	deployment := m.deployment
	if deployment == "" {
		m.mu.Unlock()
		return fmt.Errorf("no deployment selected")
	}
	if m.inflight[deployment] {
		m.mu.Unlock()
		logging.Debug("deploykey", "Generation already running for %s, ignoring", deployment)
		return nil
	}
	m.inflight[deployment] = true
	m.state.Loading = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, deployment)
		if m.deployment == deployment {
			m.state.Loading = false
		}
		m.mu.Unlock()
	}()

	token := m.tokens.Read()
	if token == nil {
		err := fmt.Errorf("not authenticated, log in before generating a deploy key")
		m.setError(deployment, err.Error())
		return err
	}

	keyName := "panelauth-" + uuid.NewString()
	key, err := m.generateWithRetry(ctx, token.AccessToken, deployment, keyName)
	if err == nil {
		if verr := ValidateKeyFor(key, deployment); verr != nil {
			err = verr
		}
	}
	if err != nil {
		// All attempts failed. A still-valid access token authorizes the
		// same backend surface, so adopt it rather than leaving the user
		// without a credential.
		if fallback := m.tokens.Read(); fallback != nil {
			logging.Warn("deploykey", "Generation for %s failed, falling back to OAuth access token: %v", deployment, err)
			m.mu.Lock()
			if m.deployment == deployment {
				m.state = State{Key: fallback.AccessToken, OwnerDeployment: deployment}
			}
			m.mu.Unlock()
			return nil
		}
		exhausted := &GenerationExhaustedError{
			Deployment: deployment,
			Attempts:   m.retry.MaxAttempts,
			LastErr:    err,
		}
		m.setError(deployment, exhausted.Error())
		return exhausted
	}

	m.persistKey(deployment, key)

	m.mu.Lock()
	if m.deployment == deployment {
		m.state = State{Key: key, OwnerDeployment: deployment}
	}
	m.mu.Unlock()

	logging.Info("deploykey", "Generated deploy key %s for %s", keyName, deployment)
	return nil
}

// generateWithRetry runs the issuer call under an exponential backoff
// schedule with no jitter so delays are strictly non-decreasing.
func (m *Manager) generateWithRetry(ctx context.Context, accessToken, deployment, keyName string) (string, error) {
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = m.retry.BaseDelay
	ebo.Multiplier = 2
	ebo.RandomizationFactor = 0

	attempt := 0
	return backoff.Retry(ctx, func() (string, error) {
		attempt++
		key, err := m.issuer.CreateDeployKey(ctx, accessToken, deployment, keyName)
		if err != nil {
			logging.Warn("deploykey", "Deploy key generation attempt %d/%d for %s failed: %v",
				attempt, m.retry.MaxAttempts, deployment, err)
			return "", err
		}
		return key, nil
	}, backoff.WithBackOff(ebo), backoff.WithMaxTries(uint(m.retry.MaxAttempts)))
}

func (m *Manager) setError(deployment, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deployment != deployment {
		return
	}
	m.state = State{OwnerDeployment: deployment, Err: msg}
}

// SetManualKey validates and adopts a user-supplied key for the given
// deployment (the selected one when deployment is empty). Prior state is
// preserved when validation fails.
func (m *Manager) SetManualKey(key, deployment string) error {
	m.mu.Lock()
	if deployment == "" {
		deployment = m.deployment
	}
	m.mu.Unlock()

	if deployment == "" {
		return fmt.Errorf("no deployment selected")
	}
	if err := ValidateKeyFor(key, deployment); err != nil {
		return err
	}

	m.persistKey(deployment, key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deployment == deployment {
		m.state = State{Key: key, OwnerDeployment: deployment, IsManual: true}
	}
	return nil
}

// ClearManualKey drops the in-memory key for the selected deployment.
// Cached keys for other deployments are untouched.
func (m *Manager) ClearManualKey() {
	m.mu.Lock()
	deployment := m.deployment
	if deployment == "" {
		m.mu.Unlock()
		return
	}
	m.state = State{
		OwnerDeployment: deployment,
		Err:             fmt.Sprintf("no deploy key available for deployment %q", deployment),
	}
	m.mu.Unlock()

	m.removeCached(deployment)
}

// Clear wipes all state, including the cached key for the selected
// deployment. Used on logout.
func (m *Manager) Clear() {
	m.mu.Lock()
	deployment := m.deployment
	m.deployment = ""
	m.state = State{}
	m.mu.Unlock()

	if deployment != "" {
		m.removeCached(deployment)
	}
}
