package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mandali-ai/mandali/internal/console"
	"github.com/mandali-ai/mandali/internal/roster"
)

var describeCmd = &cobra.Command{
	Use:   "describe [persona]",
	Short: "Show the bundled personas and their role prompts",
	Long: `Describe lists the bundled worker personas. Given a persona id it
prints the full role prompt that worker is launched with.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	catalog := roster.Catalog()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		for _, p := range catalog {
			fmt.Fprintf(out, "%-10s %s\n", p.ID, p.Title)
			if p.Summary != "" {
				fmt.Fprintf(out, "           %s\n", p.Summary)
			}
		}
		return nil
	}

	id := strings.ToLower(strings.TrimSpace(args[0]))
	for _, p := range catalog {
		if p.ID == id {
			console.New(out).Panel(p.Title, strings.TrimSpace(p.Prompt))
			return nil
		}
	}

	ids := make([]string, 0, len(catalog))
	for _, p := range catalog {
		ids = append(ids, p.ID)
	}
	return fmt.Errorf("unknown persona %q (valid: %s)", args[0], strings.Join(ids, ", "))
}
