package cmd

import (
	"fmt"

	"panelauth/internal/config"
	"panelauth/internal/deploykey"
	"panelauth/internal/oauth"
	"panelauth/internal/storage"
	"panelauth/pkg/logging"
)

// app bundles the wired-up collaborators every command works with.
type app struct {
	cfg     config.PanelConfig
	secrets storage.SecretStore
	session *storage.SessionStore
	client  *oauth.Client
	tokens  *oauth.TokenStore
	manager *deploykey.Manager
}

// newApp loads configuration, initializes logging, and wires the stores,
// the OAuth client, and the deploy key manager. When validate is true the
// loaded configuration must pass validation.
func newApp(validate bool) (*app, error) {
	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), rootCmd.ErrOrStderr())

	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	secrets, err := storage.NewFileSecretStore("")
	if err != nil {
		return nil, err
	}

	session := storage.NewSessionStore()
	tokens := oauth.NewTokenStore(secrets)
	client := oauth.NewClient(session, tokens)

	apiBase := cfg.Deploy.APIBaseURL
	if apiBase == "" {
		apiBase = cfg.OAuth.AuthBaseURL
	}
	manager := deploykey.NewManager(
		secrets,
		tokens,
		deploykey.NewHTTPIssuer(apiBase),
		deploykey.RetryPolicy{
			MaxAttempts: cfg.Deploy.Retry.MaxAttempts,
			BaseDelay:   cfg.Deploy.Retry.BaseDelay(),
		},
		cfg.Deploy.ProjectID,
		cfg.Deploy.TeamID,
	)

	return &app{
		cfg:     cfg,
		secrets: secrets,
		session: session,
		client:  client,
		tokens:  tokens,
		manager: manager,
	}, nil
}

// oauthConfig builds the flow configuration, pulling the optional client
// secret from the environment.
func (a *app) oauthConfig() oauth.Config {
	return a.cfg.ToOAuthConfig(config.ClientSecretFromEnv())
}

// requireToken returns the stored access token or errAuthRequired.
func (a *app) requireToken() (*oauth.Token, error) {
	token := a.tokens.Read()
	if token == nil {
		return nil, errAuthRequired
	}
	return token, nil
}
