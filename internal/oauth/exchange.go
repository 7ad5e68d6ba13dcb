package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"panelauth/pkg/logging"
)

// tokenResponse is the wire shape returned by both exchange modes.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	// ExpiresAt is a Unix timestamp in seconds, if the server reports one.
	ExpiresAt *int64 `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// serverSecretMissingCode is the recognizable error code a delegated
// exchange endpoint returns when its client secret is not configured.
const serverSecretMissingCode = "missing_client_secret"

// ExchangeCode turns an authorization code into an access token.
//
// With cfg.TokenExchangeURL set it POSTs JSON to that trusted endpoint
// (delegated mode); the endpoint holds any client secret. Otherwise it POSTs
// a form-encoded body directly to the authorization server's token endpoint
// (direct mode). Direct-mode transport failures are re-signaled as
// ErrServerExchangeRequired because the remediation (configure a delegated
// endpoint) differs from a transient network problem.
func (c *Client) ExchangeCode(ctx context.Context, code string, cfg Config, codeVerifier string) (*Token, error) {
	if cfg.TokenExchangeURL != "" {
		return c.exchangeDelegated(ctx, code, cfg, codeVerifier)
	}
	return c.exchangeDirect(ctx, code, cfg, codeVerifier)
}

// exchangeDelegated POSTs {code, codeVerifier, redirectUri} as JSON to the
// configured exchange endpoint.
func (c *Client) exchangeDelegated(ctx context.Context, code string, cfg Config, codeVerifier string) (*Token, error) {
	body, err := json.Marshal(map[string]string{
		"code":         code,
		"codeVerifier": codeVerifier,
		"redirectUri":  cfg.RedirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenExchangeURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange response: %w", err)
	}

	var parsed tokenResponse
	// Ignore decode errors here; non-JSON error bodies are handled below.
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if isServerSecretMissing(parsed, respBody) {
			return nil, &ServerConfigError{
				Remediation: "the token exchange endpoint has no OAuth client secret configured; " +
					"set the client secret on the server that serves " + cfg.TokenExchangeURL,
			}
		}
		logging.Debug("OAuth", "Delegated exchange failed: status=%d body=%s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
	}

	return tokenFromResponse(parsed)
}

// exchangeDirect POSTs a form-encoded grant directly to the authorization
// server's token endpoint. Public deployments of the authorization server
// reject this path (origin policy, confidential client requirement), which
// is why failures map to ErrServerExchangeRequired.
func (c *Client) exchangeDirect(ctx context.Context, code string, cfg Config, codeVerifier string) (*Token, error) {
	data := url.Values{}
	data.Set("client_id", cfg.ClientID)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", cfg.RedirectURI)
	data.Set("code", code)
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}
	if cfg.ClientSecret != "" {
		data.Set("client_secret", cfg.ClientSecret)
	}

	endpoint := strings.TrimSuffix(cfg.AuthBaseURL, "/") + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Warn("OAuth", "Direct token exchange transport failure: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrServerExchangeRequired, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var parsed tokenResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized || parsed.Error == "invalid_client" {
			logging.Warn("OAuth", "Direct token exchange rejected (status=%d, error=%s)", resp.StatusCode, parsed.Error)
			return nil, ErrServerExchangeRequired
		}
		logging.Debug("OAuth", "Direct exchange failed: status=%d body=%s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
	}

	return tokenFromResponse(parsed)
}

// isServerSecretMissing recognizes the delegated endpoint's missing-secret
// condition in either a structured error code or a plain-text body.
func isServerSecretMissing(parsed tokenResponse, body []byte) bool {
	if parsed.Code == serverSecretMissingCode || parsed.Error == serverSecretMissingCode {
		return true
	}
	return bytes.Contains(bytes.ToLower(body), []byte("client secret"))
}

// tokenFromResponse validates and converts a wire response into a Token.
func tokenFromResponse(parsed tokenResponse) (*Token, error) {
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	tokenType := parsed.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}

	token := &Token{
		AccessToken: parsed.AccessToken,
		TokenType:   tokenType,
	}

	if parsed.ExpiresAt != nil {
		expiry := time.Unix(*parsed.ExpiresAt, 0)
		token.ExpiresAt = &expiry
	} else if expiry, ok := expiryFromJWT(parsed.AccessToken); ok {
		token.ExpiresAt = &expiry
	}

	return token, nil
}

// expiryFromJWT derives an expiry from the token's exp claim when the server
// omitted expires_at and the access token happens to be a JWT. The token is
// not verified here; signature validation is the resource server's job.
func expiryFromJWT(accessToken string) (time.Time, bool) {
	if strings.Count(accessToken, ".") != 2 {
		return time.Time{}, false
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	logging.Debug("OAuth", "Derived token expiry from JWT exp claim: %s", exp.Time.Format(time.RFC3339))
	return exp.Time, true
}
