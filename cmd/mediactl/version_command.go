package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"media-streamer/internal/startup"
)

func newVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := startup.GetBuildInfo()
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, info)
			}
			fmt.Fprintf(out, "mediactl %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildTime)
			fmt.Fprintf(out, "%s %s/%s\n", info.GoVersion, info.OS, info.Arch)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build information as JSON")
	return cmd
}
