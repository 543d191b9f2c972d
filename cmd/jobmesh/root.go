package jobmesh

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() { //nolint:gochecknoinits
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(versionCmd)
}

var RootCmd = &cobra.Command{
	Use:   "jobmesh",
	Short: "A decentralized compute job marketplace",
	Long:  `A decentralized compute job marketplace`,
}

func Execute(version string) {
	RootCmd.Version = version
	RootCmd.SetVersionTemplate(fmt.Sprintf("Jobmesh Version: %s\n", version))

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
