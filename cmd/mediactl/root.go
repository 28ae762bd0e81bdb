package main

import (
	"github.com/spf13/cobra"

	"media-streamer/internal/logging"
)

func newRootCommand() *cobra.Command {
	return buildRootCommand(newCommandContext())
}

func buildRootCommand(ctx *commandContext) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "mediactl",
		Short:         "Maintain a media streamer library and its transcode cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logging.SetLevel(logging.LevelDebug)
			} else if logging.GetLevel() < logging.LevelWarn {
				logging.SetLevel(logging.LevelWarn)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (default: $CONFIG_FILE)")
	flags.StringVar(&ctx.mediaDir, "media-dir", "", "Override the media directory")
	flags.StringVar(&ctx.cacheDir, "cache-dir", "", "Override the cache directory")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newPrewarmCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
