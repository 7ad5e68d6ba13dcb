package oauth

import (
	"time"

	"golang.org/x/oauth2"
)

// Scope selects which authorization audience a login targets.
type Scope string

const (
	// ScopeTeam requests a token scoped to the whole team.
	ScopeTeam Scope = "team"

	// ScopeProject requests a token scoped to a single project.
	ScopeProject Scope = "project"
)

// Valid reports whether the scope is one of the supported values.
func (s Scope) Valid() bool {
	return s == ScopeTeam || s == ScopeProject
}

// Config describes one authentication attempt. It is immutable for the
// duration of the attempt.
type Config struct {
	// ClientID identifies this application to the authorization server.
	ClientID string

	// RedirectURI is where the authorization server sends the user back.
	RedirectURI string

	// Scope is the authorization audience (team or project).
	Scope Scope

	// AuthBaseURL is the base URL of the authorization server
	// (e.g. "https://auth.example.com").
	AuthBaseURL string

	// TokenExchangeURL, when set, selects delegated exchange: the code is
	// POSTed to this trusted endpoint, which holds the client secret.
	TokenExchangeURL string

	// ClientSecret is only honored by a server-side delegated exchange
	// endpoint. The client-side exchange path never reads it.
	ClientSecret string
}

// Token is an OAuth access token with its expiry.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is "bearer".
	TokenType string `json:"token_type"`

	// ExpiresAt is the expiration timestamp, if the server provided one.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token's expiry has passed. Tokens without an
// expiry never expire.
func (t *Token) Expired() bool {
	if t == nil || t.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*t.ExpiresAt)
}

// ToOAuth2Token converts the token to the golang.org/x/oauth2 representation
// for consumers that speak that interface.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	if t == nil {
		return nil
	}
	out := &oauth2.Token{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
	}
	if t.ExpiresAt != nil {
		out.Expiry = *t.ExpiresAt
	}
	return out
}

// StatePayload is the structured content of the anti-CSRF state parameter.
// It is serialized into a single opaque URL-safe token by the state codec.
type StatePayload struct {
	// Version is the codec version. Payloads with a different version are
	// treated as unparseable, never as an error.
	Version int `json:"v"`

	// Nonce is a random value binding the callback to this attempt.
	Nonce string `json:"nonce"`

	// PKCEVerifier carries the raw PKCE verifier as a recovery path for
	// redirects completed in a different context than the one that stored
	// the verifier. The separately stored copy remains the source of truth.
	PKCEVerifier string `json:"pkce,omitempty"`

	// CreatedAt is when the state was created.
	CreatedAt time.Time `json:"created_at"`
}
