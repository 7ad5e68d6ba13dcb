package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Logout-specific flags
var logoutDeployment string

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored access token and flow state",
	Long: `Discard the stored OAuth access token and all session-scoped flow
state. With --deployment, the cached deploy key for that deployment is
removed as well.`,
	RunE: runLogout,
}

func init() {
	logoutCmd.Flags().StringVar(&logoutDeployment, "deployment", "", "also remove the cached deploy key for this deployment")
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}

	a.tokens.Clear()
	a.client.Reset()

	if logoutDeployment != "" {
		a.manager.SetDeployment(logoutDeployment)
		a.manager.Clear()
		fmt.Fprintf(cmd.OutOrStdout(), "Removed cached deploy key for %s\n", logoutDeployment)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}
