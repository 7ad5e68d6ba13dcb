package config

import (
	"time"

	"panelauth/internal/oauth"
)

// PanelConfig is the top-level configuration structure for panelauth.
type PanelConfig struct {
	OAuth    OAuthConfig  `yaml:"oauth"`
	Deploy   DeployConfig `yaml:"deploy,omitempty"`
	LogLevel string       `yaml:"logLevel,omitempty"` // debug, info, warn, error (default: info)
}

// OAuthConfig configures the authorization flow.
type OAuthConfig struct {
	ClientID         string `yaml:"clientId,omitempty"`
	RedirectURI      string `yaml:"redirectUri,omitempty"`
	Scope            string `yaml:"scope,omitempty"`            // team or project (default: project)
	AuthBaseURL      string `yaml:"authBaseUrl,omitempty"`      // authorization server base URL
	TokenExchangeURL string `yaml:"tokenExchangeUrl,omitempty"` // delegated exchange endpoint, empty for direct exchange
}

// DeployConfig configures deploy key management.
type DeployConfig struct {
	ProjectID  string      `yaml:"projectId,omitempty"`
	TeamID     string      `yaml:"teamId,omitempty"`
	APIBaseURL string      `yaml:"apiBaseUrl,omitempty"` // deploy key issuing API (default: authBaseUrl)
	EnvFile    string      `yaml:"envFile,omitempty"`    // env file the key is exported to (default: .env.local)
	Retry      RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig bounds deploy key generation retries.
type RetryConfig struct {
	MaxAttempts int `yaml:"maxAttempts,omitempty"` // default: 3
	BaseDelayMs int `yaml:"baseDelayMs,omitempty"` // default: 500
}

// BaseDelay returns the configured delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// ToOAuthConfig converts the loaded configuration into the oauth package's
// flow configuration. The client secret only ever comes from the
// environment, never from the config file.
func (c PanelConfig) ToOAuthConfig(clientSecret string) oauth.Config {
	return oauth.Config{
		ClientID:         c.OAuth.ClientID,
		RedirectURI:      c.OAuth.RedirectURI,
		Scope:            oauth.Scope(c.OAuth.Scope),
		AuthBaseURL:      c.OAuth.AuthBaseURL,
		TokenExchangeURL: c.OAuth.TokenExchangeURL,
		ClientSecret:     clientSecret,
	}
}
