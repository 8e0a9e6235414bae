package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/spacesaver/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
