package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newPrewarmCommand(ctx *commandContext) *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "prewarm <file>...",
		Short: "Transcode videos into the HLS cache ahead of playback",
		Long: "Transcode videos into the HLS cache ahead of playback.\n\n" +
			"Relative paths are resolved inside the media directory. A running server\n" +
			"shares the cache; a source it is already encoding is waited for, not\n" +
			"encoded twice.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.shutdown()

			orch, err := ctx.orchestrator(jobs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			report := func(format string, a ...any) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out, format, a...)
			}

			g, gctx := errgroup.WithContext(cmd.Context())
			if jobs > 0 {
				g.SetLimit(jobs)
			}

			var failedMu sync.Mutex
			var failed []error
			fail := func(arg string, err error) {
				report("%s: %v\n", arg, err)
				failedMu.Lock()
				failed = append(failed, err)
				failedMu.Unlock()
			}

			for _, arg := range args {
				src, err := ctx.resolveSource(arg)
				if err != nil {
					fail(arg, err)
					continue
				}
				g.Go(func() error {
					start := time.Now()
					loc, err := orch.EnsureStream(gctx, src)
					if err != nil {
						if gctx.Err() != nil {
							return gctx.Err()
						}
						fail(arg, err)
						return nil
					}
					report("%s: %s %s (%s)\n", arg, loc.Result, loc.Key, time.Since(start).Round(time.Millisecond))
					return nil
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d videos failed: %w", len(failed), len(args), errors.Join(failed...))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Concurrent transcodes (default: MAX_CONCURRENT_TRANSCODES)")
	return cmd
}
