package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/framestep/internal/perf"
	"github.com/me/framestep/pkg/model"
)

func newRunsCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			opts := model.ListOptions{Limit: limit, Offset: offset}
			opts.Clamp()
			runs, total, err := st.ListRuns(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-18s  %-9s  %12s  %-9s  %s\n", "ID", "WORKLOAD", "SIZE", "GENERATIONS", "STATE", "STARTED")
			fmt.Fprintf(out, "%-40s  %-18s  %-9s  %12s  %-9s  %s\n", "--", "--------", "----", "-----------", "-----", "-------")
			for _, run := range runs {
				state := "running"
				if run.IsFinished() {
					state = "finished"
				}
				fmt.Fprintf(out, "%-40s  %-18s  %-9s  %12s  %-9s  %s\n",
					run.ID,
					run.Workload,
					fmt.Sprintf("%dx%d", run.Width, run.Height),
					humanize.Comma(run.Generations),
					state,
					humanize.Time(run.StartedAt),
				)
			}

			if opts.Offset+len(runs) < total {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (1-100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")

	return cmd
}

// runReport is what show prints.
type runReport struct {
	Run     *model.Run         `json:"run" yaml:"run"`
	Summary model.PassSummary  `json:"summary" yaml:"summary"`
	Samples []model.PassSample `json:"samples" yaml:"samples"`
}

func newShowCmd() *cobra.Command {
	var samples int
	var output string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run with its pass summary and recent samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch output {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("invalid --output %q: must be text, json or yaml", output)
			}

			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			id := args[0]
			run, err := st.GetRun(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return model.NewNotFoundError("run", id)
			}
			summary, err := st.SummarizePasses(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("summarize passes: %w", err)
			}
			report := runReport{Run: run, Summary: summary, Samples: []model.PassSample{}}
			if samples > 0 {
				got, err := st.ListPassSamples(cmd.Context(), id, samples)
				if err != nil {
					return fmt.Errorf("list pass samples: %w", err)
				}
				if got != nil {
					report.Samples = got
				}
			}

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return err
				}
				return enc.Close()
			}
			printRunReport(out, report)
			return nil
		},
	}

	cmd.Flags().IntVar(&samples, "samples", 10, "Recent pass samples to include")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")

	return cmd
}

func printRunReport(out io.Writer, r runReport) {
	run := r.Run
	fmt.Fprintf(out, "Run: %s\n", run.ID)
	fmt.Fprintf(out, "  Workload:    %s\n", run.Workload)
	fmt.Fprintf(out, "  Rule:        %s\n", run.Rule)
	fmt.Fprintf(out, "  Size:        %dx%d", run.Width, run.Height)
	if run.Wrap {
		fmt.Fprint(out, " (wrapped)")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Seed:        %d\n", run.Seed)
	fmt.Fprintf(out, "  Target FPS:  %s\n", humanize.FormatFloat("#,###.##", run.TargetFPS))
	fmt.Fprintf(out, "  Started:     %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "  Finished:    %s (ran %s)\n",
			run.FinishedAt.Format("2006-01-02 15:04:05"), perf.FormatDuration(run.FinishedAt.Sub(run.StartedAt)))
		fmt.Fprintf(out, "  Frames:      %s\n", humanize.Comma(run.Frames))
		fmt.Fprintf(out, "  Generations: %s\n", humanize.Comma(run.Generations))
	}

	s := r.Summary
	fmt.Fprintf(out, "  Passes:      %s recorded", humanize.Comma(s.Count))
	if s.Count > 0 {
		fmt.Fprintf(out, ", mean %s, min %s, max %s",
			perf.FormatDuration(s.Mean), perf.FormatDuration(s.Min), perf.FormatDuration(s.Max))
	}
	fmt.Fprintln(out)

	if len(r.Samples) == 0 {
		return
	}
	fmt.Fprintln(out, "  Recent passes:")
	for _, ps := range r.Samples {
		fmt.Fprintf(out, "    - gen %-8d %10s  %2d frame%s  %s\n",
			ps.Generation,
			perf.FormatDuration(ps.Duration),
			ps.FramesSpanned,
			plural(ps.FramesSpanned),
			strings.ToLower(ps.Strategy.String()),
		)
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
