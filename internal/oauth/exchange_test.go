package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeCode_DelegatedMode(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		expiresAt := time.Now().Add(time.Hour).Unix()
		fmt.Fprintf(w, `{"access_token":"tok-1","token_type":"bearer","expires_at":%d}`, expiresAt)
	}))
	defer srv.Close()

	client, _ := newTestClient()
	cfg := testConfig()
	cfg.TokenExchangeURL = srv.URL

	token, err := client.ExchangeCode(context.Background(), "code-1", cfg, "verifier-1")
	require.NoError(t, err)

	assert.Equal(t, "tok-1", token.AccessToken)
	assert.Equal(t, "bearer", token.TokenType)
	require.NotNil(t, token.ExpiresAt)

	assert.Equal(t, "code-1", gotBody["code"])
	assert.Equal(t, "verifier-1", gotBody["codeVerifier"])
	assert.Equal(t, "https://app/x", gotBody["redirectUri"])
}

func TestExchangeCode_DelegatedMissingSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"code":"missing_client_secret"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient()
	cfg := testConfig()
	cfg.TokenExchangeURL = srv.URL

	_, err := client.ExchangeCode(context.Background(), "code-1", cfg, "")
	var cfgErr *ServerConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Remediation, "client secret")
	assert.Contains(t, cfgErr.Remediation, srv.URL)
}

func TestExchangeCode_DelegatedGenericFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, _ := newTestClient()
	cfg := testConfig()
	cfg.TokenExchangeURL = srv.URL

	_, err := client.ExchangeCode(context.Background(), "code-1", cfg, "")
	require.Error(t, err)

	var cfgErr *ServerConfigError
	assert.False(t, errors.As(err, &cfgErr), "generic failures must not masquerade as misconfiguration")
}

func TestExchangeCode_DirectMode(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		fmt.Fprint(w, `{"access_token":"tok-2","token_type":"bearer"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient()
	cfg := testConfig()
	cfg.AuthBaseURL = srv.URL

	token, err := client.ExchangeCode(context.Background(), "code-2", cfg, "verifier-2")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token.AccessToken)
	assert.Nil(t, token.ExpiresAt)

	assert.Equal(t, "abc", gotForm.Get("client_id"))
	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "code-2", gotForm.Get("code"))
	assert.Equal(t, "verifier-2", gotForm.Get("code_verifier"))
	assert.Empty(t, gotForm.Get("client_secret"))
}

func TestExchangeCode_DirectRejectionSignalsServerExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient()
	cfg := testConfig()
	cfg.AuthBaseURL = srv.URL

	_, err := client.ExchangeCode(context.Background(), "code-3", cfg, "")
	require.ErrorIs(t, err, ErrServerExchangeRequired)
}

func TestExchangeCode_DirectTransportFailureSignalsServerExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client, _ := newTestClient()
	cfg := testConfig()
	cfg.AuthBaseURL = srv.URL

	_, err := client.ExchangeCode(context.Background(), "code-4", cfg, "")
	require.ErrorIs(t, err, ErrServerExchangeRequired)
}

func TestExchangeCode_ExpiryDerivedFromJWT(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Unix()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	claims := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp)))
	jwtToken := header + "." + claims + "."

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer"}`, jwtToken)
	}))
	defer srv.Close()

	client, _ := newTestClient()
	cfg := testConfig()
	cfg.TokenExchangeURL = srv.URL

	token, err := client.ExchangeCode(context.Background(), "code-5", cfg, "")
	require.NoError(t, err)
	require.NotNil(t, token.ExpiresAt)
	assert.Equal(t, exp, token.ExpiresAt.Unix())
}

func TestExchangeCode_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token_type":"bearer"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient()
	cfg := testConfig()
	cfg.TokenExchangeURL = srv.URL

	_, err := client.ExchangeCode(context.Background(), "code-6", cfg, "")
	require.Error(t, err)
}
