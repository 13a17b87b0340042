package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mandali-ai/mandali/internal/console"
	"github.com/mandali-ai/mandali/internal/metrics"
	"github.com/mandali-ai/mandali/internal/workspace"
)

var statusOutPath string

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show the state of a team workspace",
	RunE:         runStatus,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusOutPath, "out-path", "", "workspace directory to inspect")
	_ = statusCmd.MarkFlagRequired("out-path")
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(statusOutPath)
	if err != nil {
		return err
	}
	ws := workspace.New(root)
	if _, err := os.Stat(ws.ArtifactsDir()); err != nil {
		return fmt.Errorf("no workspace at %s", root)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workspace: %s\n", ws.Root())

	switch {
	case ws.IsPhased():
		phases := ws.PlanIndex()
		done := 0
		for _, p := range phases {
			if p.Status == workspace.PhaseComplete {
				done++
			}
		}
		fmt.Fprintf(out, "Plan: phased, %d/%d phases complete\n", done, len(phases))
	case ws.HasPlan():
		fmt.Fprintln(out, "Plan: flat")
	default:
		fmt.Fprintln(out, "Plan: none")
	}

	if count, err := ws.MessageCount(); err == nil {
		fmt.Fprintf(out, "Messages: %d\n", count)
	}
	if last := ws.LastActivity(); !last.IsZero() {
		fmt.Fprintf(out, "Last activity: %s\n", last.Format("2006-01-02 15:04:05"))
	}

	if statuses, err := ws.Statuses(); err == nil && len(statuses) > 0 {
		fmt.Fprintln(out, "Satisfaction:")
		fmt.Fprintln(out, console.FormatStatusLines(statuses))
	}

	if run, err := metrics.Load(ws.MetricsPath()); err == nil {
		outcome := "defeat"
		switch {
		case run.EndTime == "":
			outcome = "in progress"
		case run.Victory:
			outcome = "victory"
		}
		fmt.Fprintf(out, "Last run: %s (%d messages, %d nudges, %d relaunches)\n",
			outcome, run.TotalMessages, run.Nudges, run.Relaunches)
	}
	return nil
}
