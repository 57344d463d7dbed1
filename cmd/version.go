package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Pairlink/internal/ui"
	"github.com/BioHazard786/Pairlink/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pairlink %s\n", ui.BoldStyle.Render(version.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
