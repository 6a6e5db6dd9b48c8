package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var versionVerbose bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "promptforge %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

		if versionVerbose {
			v := crucible.GetVersion()
			if v.Gofulmen != "" {
				fmt.Fprintf(out, "gofulmen %s\n", v.Gofulmen)
			}
			if v.Crucible != "" {
				fmt.Fprintf(out, "crucible %s\n", v.Crucible)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionVerbose, "full", false, "Include library versions")
}
