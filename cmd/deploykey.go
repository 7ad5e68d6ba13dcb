package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"panelauth/internal/deploykey"
)

// Deploy-key flags shared by the subcommands.
var (
	dkDeployment string
	dkEnvFile    string
)

// deployKeyCmd groups the deploy key subcommands.
var deployKeyCmd = &cobra.Command{
	Use:   "deploy-key",
	Short: "Manage per-deployment deploy keys",
	Long: `Manage deploy keys: generate a fresh key on the backend, adopt a
manually supplied key, export the key to the project's env file, or
remove it.

A deploy key is bound to a single deployment; switching deployments
discards the active key.`,
}

var deployKeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a fresh deploy key for a deployment",
	RunE:  runDeployKeyGenerate,
}

var deployKeySetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Adopt a manually supplied deploy key",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeployKeySet,
}

var deployKeyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the deploy key for a deployment",
	RunE:  runDeployKeyClear,
}

var deployKeyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the deploy key to the project's env file",
	RunE:  runDeployKeyExport,
}

var deployKeyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the deploy key for a deployment",
	RunE:  runDeployKeyShow,
}

func init() {
	deployKeyCmd.PersistentFlags().StringVar(&dkDeployment, "deployment", "", "deployment the key belongs to (required)")
	deployKeyExportCmd.Flags().StringVar(&dkEnvFile, "env-file", "", "env file to write to (default from config)")
	deployKeyClearCmd.Flags().StringVar(&dkEnvFile, "env-file", "", "env file to remove the key from (default from config)")

	deployKeyCmd.AddCommand(deployKeyGenerateCmd)
	deployKeyCmd.AddCommand(deployKeySetCmd)
	deployKeyCmd.AddCommand(deployKeyClearCmd)
	deployKeyCmd.AddCommand(deployKeyExportCmd)
	deployKeyCmd.AddCommand(deployKeyShowCmd)
}

// selectDeployment wires up the app and selects the --deployment target.
func selectDeployment(validate bool) (*app, error) {
	if dkDeployment == "" {
		return nil, fmt.Errorf("--deployment is required")
	}
	a, err := newApp(validate)
	if err != nil {
		return nil, err
	}
	a.manager.SetDeployment(dkDeployment)
	return a, nil
}

func runDeployKeyGenerate(cmd *cobra.Command, args []string) error {
	a, err := selectDeployment(true)
	if err != nil {
		return err
	}
	if _, err := a.requireToken(); err != nil {
		return err
	}

	if err := a.manager.Regenerate(cmd.Context()); err != nil {
		return err
	}

	state := a.manager.State()
	if state.Key == "" {
		return fmt.Errorf("deploy key generation left no usable key: %s", state.Err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", text.FgGreen.Sprintf("Deploy key ready for %s", dkDeployment))
	if !state.IsManual {
		if _, err := deploykey.ParseKey(state.Key); err != nil {
			// The OAuth fallback token is not a real deploy key.
			fmt.Fprintln(cmd.OutOrStdout(), "Note: generation failed, using your access token as a temporary credential.")
		}
	}
	return nil
}

func runDeployKeySet(cmd *cobra.Command, args []string) error {
	a, err := selectDeployment(false)
	if err != nil {
		return err
	}

	if err := a.manager.SetManualKey(args[0], dkDeployment); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", text.FgGreen.Sprintf("Deploy key set for %s", dkDeployment))
	return nil
}

func runDeployKeyClear(cmd *cobra.Command, args []string) error {
	a, err := selectDeployment(false)
	if err != nil {
		return err
	}

	a.manager.ClearManualKey()

	envFile := dkEnvFile
	if envFile == "" {
		envFile = a.cfg.Deploy.EnvFile
	}
	if err := deploykey.RemoveKeyFromEnvFile(envFile); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deploy key removed for %s\n", dkDeployment)
	return nil
}

func runDeployKeyExport(cmd *cobra.Command, args []string) error {
	a, err := selectDeployment(false)
	if err != nil {
		return err
	}

	state := a.manager.State()
	if state.Key == "" {
		return fmt.Errorf("no deploy key for deployment %q, run 'panelauth deploy-key generate' first", dkDeployment)
	}

	envFile := dkEnvFile
	if envFile == "" {
		envFile = a.cfg.Deploy.EnvFile
	}
	if err := deploykey.WriteKeyToEnvFile(envFile, state.Key); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s to %s\n", deploykey.EnvVarName, envFile)
	return nil
}

func runDeployKeyShow(cmd *cobra.Command, args []string) error {
	a, err := selectDeployment(false)
	if err != nil {
		return err
	}

	state := a.manager.State()
	if state.Key == "" {
		return fmt.Errorf("no deploy key for deployment %q", dkDeployment)
	}

	fmt.Fprintln(cmd.OutOrStdout(), state.Key)
	return nil
}
