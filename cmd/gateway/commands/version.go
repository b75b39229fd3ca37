package commands

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/emmdurin/georchestra-gateway/internal/cli/output"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return output.SimpleTable(os.Stdout, [][2]string{
			{"Version", Version},
			{"Commit", Commit},
			{"Built", Date},
			{"Go", runtime.Version()},
			{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
		})
	},
}
