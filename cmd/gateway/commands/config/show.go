package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/emmdurin/georchestra-gateway/internal/cli/output"
	"github.com/emmdurin/georchestra-gateway/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current gateway configuration.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show default config as YAML
  gateway config show

  # Show as JSON
  gateway config show --output json

  # Show specific config file
  gateway config show --config /etc/georchestra/gateway.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	default:
		return output.PrintYAML(os.Stdout, cfg)
	}
}
