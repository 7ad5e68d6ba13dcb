package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"panelauth/pkg/logging"
)

// AuthorizationURL composes the redirect URL to the remote authorization
// endpoint.
//
// When explicitState is empty the client manages state itself: it generates
// a nonce, attempts PKCE, bundles both into an encoded state payload, and
// persists the raw PKCE verifier and the chosen state string in the session
// store before returning. When explicitState is supplied the caller owns the
// state and nothing is persisted here.
//
// PKCE generation failure does not fail the flow: the URL is built without
// the challenge parameters, trading code-exchange hardening for
// availability. The degradation is logged.
func (c *Client) AuthorizationURL(ctx context.Context, cfg Config, explicitState string) (string, error) {
	if !cfg.Scope.Valid() {
		return "", fmt.Errorf("invalid oauth scope %q", cfg.Scope)
	}

	state := explicitState
	var pkce *PKCE

	if explicitState == "" {
		nonce, err := GenerateNonce()
		if err != nil {
			return "", fmt.Errorf("failed to generate state nonce: %w", err)
		}

		pkce, err = GeneratePKCE()
		if err != nil {
			logging.Warn("OAuth", "PKCE generation failed, continuing without code challenge: %v", err)
			pkce = nil
		}

		payload := NewStatePayload(nonce, verifierOf(pkce))
		state, err = EncodeState(payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode state: %w", err)
		}

		c.session.Set(sessionKeyState, state)
		if pkce != nil {
			c.session.Set(sessionKeyVerifier, pkce.CodeVerifier)
		} else {
			c.session.Remove(sessionKeyVerifier)
		}
	}

	authURL, err := url.Parse(strings.TrimSuffix(cfg.AuthBaseURL, "/") + "/oauth/authorize/" + string(cfg.Scope))
	if err != nil {
		return "", fmt.Errorf("invalid authorization base URL: %w", err)
	}

	query := authURL.Query()
	query.Set("client_id", cfg.ClientID)
	query.Set("redirect_uri", cfg.RedirectURI)
	query.Set("response_type", "code")
	query.Set("state", state)
	if pkce != nil {
		query.Set("code_challenge", pkce.CodeChallenge)
		query.Set("code_challenge_method", pkce.Method)
	}
	authURL.RawQuery = query.Encode()

	logging.Debug("OAuth", "Built authorization URL (scope=%s, pkce=%t, explicit_state=%t)",
		cfg.Scope, pkce != nil, explicitState != "")

	return authURL.String(), nil
}

func verifierOf(p *PKCE) string {
	if p == nil {
		return ""
	}
	return p.CodeVerifier
}
