package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emmdurin/georchestra-gateway/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample configuration file",
	Long: `Create a sample gateway configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/georchestra-gateway/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  gateway config init

  # Initialize with custom path
  gateway config init --config /etc/georchestra/gateway.yaml

  # Force overwrite existing config
  gateway config init --force`,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var err error
	if configPath != "" {
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the gateway with: gateway start")
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random token secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Printf("    export %s=$(openssl rand -hex 32)\n", config.EnvTokenSecret)

	return nil
}
