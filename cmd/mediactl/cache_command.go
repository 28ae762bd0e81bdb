package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"media-streamer/internal/transcoder"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the HLS transcode cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cached renditions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := ctx.cacheIndex()
			if err != nil {
				return err
			}
			entries, err := idx.Entries()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if entries == nil {
					entries = []transcoder.Entry{}
				}
				return writeJSON(out, entries)
			}
			printCacheEntries(out, idx, entries)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func printCacheEntries(out io.Writer, idx *transcoder.DirIndex, entries []transcoder.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(out, "No cached renditions in %s\n", idx.Root())
		return
	}

	const stampLayout = "2006-01-02 15:04"
	var total int64
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		total += e.Size
		rows = append(rows, []string{
			e.Key,
			entryState(idx, e),
			strconv.Itoa(e.Segments),
			humanize.IBytes(uint64(e.Size)),
			e.Modified.Local().Format(stampLayout),
		})
	}

	fmt.Fprintln(out, renderTable(out,
		[]string{"Key", "State", "Segments", "Size", "Modified"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "%d renditions, %s\n", len(entries), humanize.IBytes(uint64(total)))
}

func entryState(idx *transcoder.DirIndex, e transcoder.Entry) string {
	switch {
	case idx.Leased(e.Key):
		return "encoding"
	case e.Ready:
		return "ready"
	default:
		return "partial"
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove cached renditions that are not being encoded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := ctx.cacheIndex()
			if err != nil {
				return err
			}
			freed, err := idx.Clear(idx.Leased)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Freed %s\n", humanize.IBytes(uint64(freed)))
			return nil
		},
	}
}
