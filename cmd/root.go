package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"panelauth/internal/oauth"
)

// Exit codes for CLI commands.
// These follow common conventions so scripts can branch on the outcome.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// errAuthRequired signals that a command needs a valid login session.
var errAuthRequired = errors.New("not authenticated, run 'panelauth login' first")

// configPath holds the --config-path persistent flag value. Empty means the
// user-level default directory.
var configPath string

// rootCmd represents the base command for the panelauth application.
var rootCmd = &cobra.Command{
	Use:   "panelauth",
	Short: "Manage panel credentials: OAuth login and deploy keys",
	Long: `panelauth manages the credentials a project panel needs: it runs the
browser-based OAuth authorization flow to obtain an access token, and
manages per-deployment deploy keys (generation, manual override, export
to the project's env file).`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// Called from the main package to inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "panelauth version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if errors.Is(err, errAuthRequired) {
		return ExitCodeAuthRequired
	}

	var denied *oauth.AuthorizationDeniedError
	if errors.As(err, &denied) {
		return ExitCodeAuthFailed
	}
	if errors.Is(err, oauth.ErrStateMismatch) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "",
		"config directory (default is $HOME/.config/panelauth)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(deployKeyCmd)
}
