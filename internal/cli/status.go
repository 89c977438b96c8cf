package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/framestep/internal/perf"
)

// liveStats mirrors the /api/v1/stats payload.
type liveStats struct {
	RunID            string        `json:"run_id"`
	Frames           int64         `json:"frames"`
	Generation       int64         `json:"generation"`
	State            string        `json:"state"`
	Strategy         string        `json:"strategy"`
	Visited          int           `json:"visited"`
	Total            int           `json:"total"`
	LastPass         time.Duration `json:"last_pass_ns"`
	AveragePass      time.Duration `json:"average_pass_ns"`
	UpdatesPerSecond float64       `json:"updates_per_second"`
	FramesPerSecond  float64       `json:"frames_per_second"`
	Overruns         int64         `json:"overruns"`
}

func newStatusCmd() *cobra.Command {
	var showGeneration bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show live statistics from a running framestep server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/stats")
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			var s liveStats
			if err := json.Unmarshal(resp.Data, &s); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if s.RunID != "" {
				fmt.Fprintf(out, "Run:        %s\n", s.RunID)
			}
			fmt.Fprintf(out, "  Frames:     %s (%s overruns, %s fps)\n",
				humanize.Comma(s.Frames), humanize.Comma(s.Overruns), humanize.FormatFloat("#,###.#", s.FramesPerSecond))
			fmt.Fprintf(out, "  Generation: %s\n", humanize.Comma(s.Generation))
			fmt.Fprintf(out, "  Pass:       %s, %s strategy", s.State, s.Strategy)
			if s.Total > 0 {
				fmt.Fprintf(out, ", %s/%s units", humanize.Comma(int64(s.Visited)), humanize.Comma(int64(s.Total)))
			}
			fmt.Fprintln(out)
			if s.Generation > 0 {
				fmt.Fprintf(out, "  Last pass:  %s\n", perf.FormatDuration(s.LastPass))
				fmt.Fprintf(out, "  Average:    %s (%s updates/s)\n",
					perf.FormatDuration(s.AveragePass), humanize.FormatFloat("#,###.#", s.UpdatesPerSecond))
			}

			if showGeneration {
				text, err := client.GetText("/api/v1/generation")
				if err != nil {
					return fmt.Errorf("get generation: %w", err)
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showGeneration, "generation", false, "Also print the committed generation")

	return cmd
}
