// Package commands implements the CLI commands for the gateway.
package commands

import (
	"github.com/spf13/cobra"

	configcmd "github.com/emmdurin/georchestra-gateway/cmd/gateway/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "geOrchestra gateway - identity resolution and account provisioning",
	Long: `The geOrchestra gateway sits in front of the platform's backend services.
It resolves the requesting user from session tokens or trusted proxy headers,
provisions missing directory accounts, and forwards requests with a canonical
identity attached.

Use "gateway [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/georchestra-gateway/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(configcmd.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
