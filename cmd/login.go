package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"panelauth/internal/oauth"
)

// Login-specific flags
var (
	loginScope     string
	loginNoBrowser bool
	loginTimeout   time.Duration
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate via the browser-based OAuth flow",
	Long: `Authenticate to the panel's authorization server.

This command starts a local callback server, opens the authorization page
in your browser, and waits for the redirect to complete the flow. The
obtained access token is stored for later commands.

Examples:
  panelauth login                  # Login with the configured scope
  panelauth login --scope team     # Request a team-scoped token
  panelauth login --no-browser     # Print the URL instead of opening it`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginScope, "scope", "", "authorization scope: team or project (default from config)")
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "how long to wait for the browser callback")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}

	cfg := a.oauthConfig()
	if loginScope != "" {
		cfg.Scope = oauth.Scope(loginScope)
	}

	server, err := oauth.NewCallbackServer(a.client, cfg)
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	defer server.Close()

	authURL, err := a.client.AuthorizationURL(cmd.Context(), cfg, "")
	if err != nil {
		return err
	}

	if loginNoBrowser {
		fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in your browser:\n\n  %s\n\n", authURL)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Opening your browser to complete the login...")
		if err := oauth.OpenBrowser(authURL); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Could not open a browser (%v).\nOpen this URL manually:\n\n  %s\n\n", err, authURL)
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for authorization..."
	s.Writer = cmd.ErrOrStderr()
	s.Start()

	ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
	defer cancel()
	token, err := server.Wait(ctx)
	s.Stop()

	if err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("authorization completed without a token")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", text.FgGreen.Sprint("Login successful"))
	if token.ExpiresAt != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Token expires %s\n", formatExpiryWithDirection(*token.ExpiresAt))
	}
	return nil
}
