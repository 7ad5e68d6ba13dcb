package config

const (
	// DefaultRedirectURI is the loopback callback used by the CLI login flow.
	DefaultRedirectURI = "http://127.0.0.1:8976/oauth/callback"

	// DefaultEnvFile is where deploy keys are exported for build tooling.
	DefaultEnvFile = ".env.local"
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() PanelConfig {
	return PanelConfig{
		OAuth: OAuthConfig{
			RedirectURI: DefaultRedirectURI,
			Scope:       "project",
		},
		Deploy: DeployConfig{
			EnvFile: DefaultEnvFile,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelayMs: 500,
			},
		},
		LogLevel: "info",
	}
}
