package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"media-streamer/internal/transcoder"
)

type probeReport struct {
	Source  string                `json:"source"`
	Info    *transcoder.VideoInfo `json:"info"`
	Sidecar string                `json:"sidecar,omitempty"`
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Show codecs, subtitle tracks and cache state of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.shutdown()

			src, err := ctx.resolveSource(args[0])
			if err != nil {
				return err
			}
			orch, err := ctx.orchestrator(1)
			if err != nil {
				return err
			}
			captions, err := ctx.extractor()
			if err != nil {
				return err
			}

			info, err := orch.VideoInfo(cmd.Context(), src)
			if err != nil {
				return err
			}
			report := probeReport{Source: src, Info: info}
			if sidecar, ok := captions.FindSidecar(src); ok {
				report.Sidecar = sidecar
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printProbe(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printProbe(out io.Writer, r probeReport) {
	info := r.Info
	fmt.Fprintf(out, "Source:    %s\n", r.Source)
	fmt.Fprintf(out, "Container: %s\n", info.Container)
	fmt.Fprintf(out, "Video:     %s %dx%d\n", info.Codec, info.Width, info.Height)
	if info.AudioCodec != "" {
		fmt.Fprintf(out, "Audio:     %s\n", info.AudioCodec)
	}
	fmt.Fprintf(out, "Duration:  %s\n", time.Duration(info.Duration*float64(time.Second)).Round(time.Second))
	if info.BitRate > 0 {
		fmt.Fprintf(out, "Bit rate:  %s/s\n", humanize.SI(float64(info.BitRate), "b"))
	}
	playback := "direct"
	if info.NeedsTranscode {
		playback = "transcode"
	}
	fmt.Fprintf(out, "Playback:  %s\n", playback)
	cache := "not cached"
	if info.Cached {
		cache = "cached"
	}
	fmt.Fprintf(out, "Cache:     %s (%s)\n", info.CacheKey, cache)
	if r.Sidecar != "" {
		fmt.Fprintf(out, "Sidecar:   %s\n", r.Sidecar)
	}

	if len(info.Subtitles) == 0 {
		fmt.Fprintln(out, "Subtitles: none")
		return
	}
	rows := make([][]string, 0, len(info.Subtitles))
	for _, s := range info.Subtitles {
		def := ""
		if s.Default {
			def = "yes"
		}
		rows = append(rows, []string{strconv.Itoa(s.Index), s.Codec, s.Language, s.Title, def})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"Track", "Codec", "Language", "Title", "Default"},
		rows,
		[]columnAlignment{alignRight},
	))
}
