package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"panelauth/pkg/logging"
)

// Status-specific flags
var statusDeployment string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication and deploy key status",
	Long: `Show whether a valid access token is stored, when it expires, and
the deploy key state for a deployment.

Examples:
  panelauth status                        # Token status only
  panelauth status --deployment my-app    # Include deploy key state`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDeployment, "deployment", "", "deployment to show deploy key status for")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("FIELD"),
		text.FgHiCyan.Sprint("VALUE"),
	})

	token := a.tokens.Read()
	if token != nil {
		t.AppendRow(table.Row{"Authenticated", text.FgGreen.Sprint("yes")})
		t.AppendRow(table.Row{"Token", logging.Redact(token.AccessToken)})
		if token.ExpiresAt != nil {
			t.AppendRow(table.Row{"Expires", formatExpiryWithDirection(*token.ExpiresAt)})
		} else {
			t.AppendRow(table.Row{"Expires", "never"})
		}
	} else {
		t.AppendRow(table.Row{"Authenticated", text.FgYellow.Sprint("no")})
	}

	if statusDeployment != "" {
		a.manager.SetDeployment(statusDeployment)
		state := a.manager.State()

		t.AppendSeparator()
		t.AppendRow(table.Row{"Deployment", state.OwnerDeployment})
		switch {
		case state.Key != "":
			t.AppendRow(table.Row{"Deploy key", logging.Redact(state.Key)})
			if state.IsManual {
				t.AppendRow(table.Row{"Key source", "manual"})
			} else {
				t.AppendRow(table.Row{"Key source", "generated"})
			}
		case state.Err != "":
			t.AppendRow(table.Row{"Deploy key", text.FgYellow.Sprint(state.Err)})
		default:
			t.AppendRow(table.Row{"Deploy key", "none"})
		}
	}

	t.Render()

	if token == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "\nRun: panelauth login")
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiryWithDirection formats a time as "in X" or "expired X ago".
func formatExpiryWithDirection(expiresAt time.Time) string {
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	expiredAgo := -remaining
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(expiredAgo))
}
