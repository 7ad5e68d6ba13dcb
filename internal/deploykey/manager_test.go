package deploykey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelauth/internal/oauth"
	"panelauth/internal/storage"
)

// fakeIssuer records call times and fails the first failN calls.
type fakeIssuer struct {
	mu      sync.Mutex
	calls   []time.Time
	failN   int
	key     string
	entered chan struct{}
	release chan struct{}
}

func (f *fakeIssuer) CreateDeployKey(ctx context.Context, accessToken, deploymentName, keyName string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	n := len(f.calls)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	if n <= f.failN {
		return "", errors.New("backend unavailable")
	}
	return f.key, nil
}

func (f *fakeIssuer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeIssuer) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

func newTestManager(issuer Issuer, retry RetryPolicy) (*Manager, storage.SecretStore) {
	secrets := storage.NewMemorySecretStore()
	tokens := oauth.NewTokenStore(storage.NewMemorySecretStore())
	tokens.Store(&oauth.Token{AccessToken: "oauth-tok", TokenType: "bearer"})
	return NewManager(secrets, tokens, issuer, retry, "proj-1", "team-1"), secrets
}

func TestSetDeployment_NoCachedKey(t *testing.T) {
	issuer := &fakeIssuer{}
	m, _ := newTestManager(issuer, DefaultRetryPolicy())

	m.SetDeployment("my-app")

	state := m.State()
	assert.Empty(t, state.Key)
	assert.Equal(t, "my-app", state.OwnerDeployment)
	assert.Contains(t, state.Err, "my-app")
	assert.Equal(t, 0, issuer.callCount(), "deployment selection must not trigger generation")
}

func TestSetDeployment_AdoptsCachedKey(t *testing.T) {
	issuer := &fakeIssuer{}
	m, secrets := newTestManager(issuer, DefaultRetryPolicy())

	m.SetDeployment("my-app")
	require.NoError(t, m.SetManualKey("prod:my-app|s3cret", ""))

	// A fresh manager over the same secrets finds the persisted key.
	fresh := NewManager(secrets, oauth.NewTokenStore(storage.NewMemorySecretStore()), issuer, DefaultRetryPolicy(), "proj-1", "team-1")
	fresh.SetDeployment("my-app")

	state := fresh.State()
	assert.Equal(t, "prod:my-app|s3cret", state.Key)
	assert.True(t, state.IsManual, "cached keys are adopted as manual")
	assert.Empty(t, state.Err)
}

func TestSetDeployment_DiscardsKeyBeforeCacheProbe(t *testing.T) {
	issuer := &fakeIssuer{}
	m, _ := newTestManager(issuer, DefaultRetryPolicy())

	m.SetDeployment("my-app")
	require.NoError(t, m.SetManualKey("prod:my-app|s3cret", ""))
	require.NotEmpty(t, m.State().Key)

	m.SetDeployment("other-app")

	state := m.State()
	assert.Empty(t, state.Key, "key bound to my-app must not survive switching to other-app")
	assert.Equal(t, "other-app", state.OwnerDeployment)
}

func TestSetDeployment_InvalidCacheEntryDropped(t *testing.T) {
	issuer := &fakeIssuer{}
	m, secrets := newTestManager(issuer, DefaultRetryPolicy())

	// A record whose key is bound to a different deployment.
	require.NoError(t, secrets.Set("deploykey:my-app", `{"key":"prod:other-app|abc"}`))

	m.SetDeployment("my-app")

	state := m.State()
	assert.Empty(t, state.Key)
	assert.NotEmpty(t, state.Err)

	_, ok, err := secrets.Get("deploykey:my-app")
	require.NoError(t, err)
	assert.False(t, ok, "invalid cache entry must be removed")
}

func TestRegenerate_Success(t *testing.T) {
	issuer := &fakeIssuer{key: "prod:my-app|fresh"}
	m, secrets := newTestManager(issuer, DefaultRetryPolicy())

	m.SetDeployment("my-app")
	require.NoError(t, m.Regenerate(context.Background()))

	state := m.State()
	assert.Equal(t, "prod:my-app|fresh", state.Key)
	assert.False(t, state.IsManual, "generated keys are not manual")
	assert.False(t, state.Loading)
	assert.Equal(t, 1, issuer.callCount())

	// The key is persisted per deployment.
	raw, ok, err := secrets.Get("deploykey:my-app")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, "prod:my-app|fresh")
	assert.Contains(t, raw, "proj-1")
}

func TestRegenerate_NoDeploymentSelected(t *testing.T) {
	m, _ := newTestManager(&fakeIssuer{}, DefaultRetryPolicy())

	err := m.Regenerate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no deployment")
}

func TestRegenerate_RetriesWithExponentialBackoff(t *testing.T) {
	issuer := &fakeIssuer{failN: 2, key: "prod:my-app|late"}
	retry := RetryPolicy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond}
	m, _ := newTestManager(issuer, retry)

	m.SetDeployment("my-app")
	require.NoError(t, m.Regenerate(context.Background()))

	assert.Equal(t, "prod:my-app|late", m.State().Key)

	calls := issuer.callTimes()
	require.Len(t, calls, 3)
	d1 := calls[1].Sub(calls[0])
	d2 := calls[2].Sub(calls[1])
	assert.GreaterOrEqual(t, d1, 20*time.Millisecond, "first retry waits at least the base delay")
	assert.GreaterOrEqual(t, d2, 40*time.Millisecond, "second retry waits at least twice the base delay")
}

func TestRegenerate_ExhaustionFallsBackToAccessToken(t *testing.T) {
	issuer := &fakeIssuer{failN: 100}
	retry := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	m, _ := newTestManager(issuer, retry)

	m.SetDeployment("my-app")
	require.NoError(t, m.Regenerate(context.Background()))

	state := m.State()
	assert.Equal(t, "oauth-tok", state.Key, "access token adopted as makeshift credential")
	assert.Equal(t, "my-app", state.OwnerDeployment)
	assert.False(t, state.IsManual)
	assert.Equal(t, 2, issuer.callCount())
}

func TestRegenerate_ExhaustionWithoutTokenSurfacesError(t *testing.T) {
	issuer := &fakeIssuer{failN: 100}
	retry := RetryPolicy{MaxAttempts: 2, BaseDelay: 50 * time.Millisecond}

	secrets := storage.NewMemorySecretStore()
	tokens := oauth.NewTokenStore(storage.NewMemorySecretStore())
	// Valid when generation starts, expired by the time the retries end.
	expiry := time.Now().Add(25 * time.Millisecond)
	tokens.Store(&oauth.Token{AccessToken: "short-lived", TokenType: "bearer", ExpiresAt: &expiry})
	m := NewManager(secrets, tokens, issuer, retry, "proj-1", "team-1")

	m.SetDeployment("my-app")
	err := m.Regenerate(context.Background())

	var exhausted *GenerationExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Equal(t, "my-app", exhausted.Deployment)
	assert.NotEmpty(t, m.State().Err)
}

func TestRegenerate_NotAuthenticated(t *testing.T) {
	issuer := &fakeIssuer{}
	secrets := storage.NewMemorySecretStore()
	tokens := oauth.NewTokenStore(storage.NewMemorySecretStore())
	m := NewManager(secrets, tokens, issuer, DefaultRetryPolicy(), "proj-1", "team-1")

	m.SetDeployment("my-app")
	err := m.Regenerate(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authenticated")
	assert.Equal(t, 0, issuer.callCount(), "no network call without a token")
}

func TestRegenerate_ConcurrentCallIsNoOp(t *testing.T) {
	issuer := &fakeIssuer{
		key:     "prod:my-app|once",
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m, _ := newTestManager(issuer, DefaultRetryPolicy())
	m.SetDeployment("my-app")

	done := make(chan error, 1)
	go func() {
		done <- m.Regenerate(context.Background())
	}()
	<-issuer.entered

	// Second call while the first is in flight: returns immediately, no
	// second issuer call.
	require.NoError(t, m.Regenerate(context.Background()))

	close(issuer.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, issuer.callCount())
	assert.Equal(t, "prod:my-app|once", m.State().Key)
}

func TestRegenerate_RejectsMisboundGeneratedKey(t *testing.T) {
	// The backend answers with a key bound to the wrong deployment; the
	// fallback path takes over instead of adopting it.
	issuer := &fakeIssuer{key: "prod:other-app|oops"}
	retry := RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond}
	m, _ := newTestManager(issuer, retry)

	m.SetDeployment("my-app")
	require.NoError(t, m.Regenerate(context.Background()))

	assert.Equal(t, "oauth-tok", m.State().Key)
}

func TestSetManualKey(t *testing.T) {
	m, _ := newTestManager(&fakeIssuer{}, DefaultRetryPolicy())
	m.SetDeployment("my-app")

	require.NoError(t, m.SetManualKey("dev:my-app|manual", ""))

	state := m.State()
	assert.Equal(t, "dev:my-app|manual", state.Key)
	assert.True(t, state.IsManual)
	assert.Empty(t, state.Err)
}

func TestSetManualKey_RejectsMisboundKeyAndKeepsState(t *testing.T) {
	m, _ := newTestManager(&fakeIssuer{}, DefaultRetryPolicy())
	m.SetDeployment("my-app")
	require.NoError(t, m.SetManualKey("prod:my-app|good", ""))

	err := m.SetManualKey("prod:other-app|bad", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// The previously adopted key survives the failed attempt.
	assert.Equal(t, "prod:my-app|good", m.State().Key)
}

func TestSetManualKey_NoDeployment(t *testing.T) {
	m, _ := newTestManager(&fakeIssuer{}, DefaultRetryPolicy())

	err := m.SetManualKey("prod:my-app|abc", "")
	require.Error(t, err)
}

func TestClearManualKey(t *testing.T) {
	m, secrets := newTestManager(&fakeIssuer{}, DefaultRetryPolicy())
	m.SetDeployment("my-app")
	require.NoError(t, m.SetManualKey("prod:my-app|gone", ""))

	m.ClearManualKey()

	state := m.State()
	assert.Empty(t, state.Key)
	assert.NotEmpty(t, state.Err)

	_, ok, err := secrets.Get("deploykey:my-app")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearManualKey_OtherDeploymentsUntouched(t *testing.T) {
	m, secrets := newTestManager(&fakeIssuer{}, DefaultRetryPolicy())

	m.SetDeployment("keep-app")
	require.NoError(t, m.SetManualKey("prod:keep-app|kept", ""))
	m.SetDeployment("drop-app")
	require.NoError(t, m.SetManualKey("prod:drop-app|dropped", ""))

	m.ClearManualKey()

	_, ok, err := secrets.Get("deploykey:keep-app")
	require.NoError(t, err)
	assert.True(t, ok, "other deployments keep their cached keys")
}

func TestClear(t *testing.T) {
	m, secrets := newTestManager(&fakeIssuer{}, DefaultRetryPolicy())
	m.SetDeployment("my-app")
	require.NoError(t, m.SetManualKey("prod:my-app|bye", ""))

	m.Clear()

	assert.Equal(t, State{}, m.State())
	assert.Empty(t, m.Deployment())
	_, ok, err := secrets.Get("deploykey:my-app")
	require.NoError(t, err)
	assert.False(t, ok)
}
