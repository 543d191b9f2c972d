package jobmesh

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Get the version of the jobmesh client",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("Jobmesh Version: %s\n", RootCmd.Version)
		return nil
	},
}
