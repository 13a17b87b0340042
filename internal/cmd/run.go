package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mandali-ai/mandali/internal/assembly"
	"github.com/mandali-ai/mandali/internal/config"
	"github.com/mandali-ai/mandali/internal/console"
	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/orchestrator"
	"github.com/mandali-ai/mandali/internal/plan"
	"github.com/mandali-ai/mandali/internal/roster"
	"github.com/mandali-ai/mandali/internal/runtime"
	"github.com/mandali-ai/mandali/internal/workspace"
)

// oneShotTimeout bounds the single-query sessions used for plan
// conversion and team assembly.
const oneShotTimeout = 5 * time.Minute

var (
	runOutPath      string
	runPlanFile     string
	runPrompt       string
	runStallTimeout int
	runMaxRetries   int
	runVerbose      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the autonomous team against a plan",
	Long: `Run launches the worker team in the given workspace and supervises it
until every worker reports satisfaction and the result survives
verification. The plan comes either from a plan file or from a prompt;
pointing --plan at a phases/_INDEX.md or _CONTEXT.md file imports the
whole phase directory.`,
	SilenceUsage: true,
	RunE:         runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runOutPath, "out-path", "", "workspace directory the team works in")
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "path to a plan file")
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "prompt with instructions for the team")
	runCmd.Flags().IntVar(&runStallTimeout, "stall-timeout", 5, "minutes of inactivity before human escalation")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 5, "max verification-relaunch cycles after victory (0 = no verification)")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "verbose output")

	_ = runCmd.MarkFlagRequired("out-path")
	runCmd.MarkFlagsOneRequired("plan", "prompt")
	runCmd.MarkFlagsMutuallyExclusive("plan", "prompt")
}

func runRun(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("stall-timeout") && runStallTimeout < 1 {
		return errors.New("--stall-timeout must be >= 1")
	}
	if cmd.Flags().Changed("max-retries") && runMaxRetries < 0 {
		return errors.New("--max-retries must be >= 0")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("stall-timeout") {
		cfg.Stall.TimeoutMinutes = runStallTimeout
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Verification.MaxRounds = runMaxRetries
	}
	if runVerbose {
		cfg.Logging.Enabled = true
		cfg.Logging.Level = logging.LevelDebug
	}

	root, err := filepath.Abs(runOutPath)
	if err != nil {
		return err
	}
	ws := workspace.New(root)
	if err := ws.Init(); err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}

	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		log, err = logging.NewLoggerWithRotation(ws.ArtifactsDir(), cfg.Logging.Level, logging.DefaultRotationConfig())
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer func() { _ = log.Close() }()
	}

	con := console.New(cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := runtime.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := runtime.Connect(ctx, client, cfg.Runtime.ConnectAttempts); err != nil {
		con.Panel("STARTUP FAILED", startupFailureBody(cfg, err))
		return fmt.Errorf("connect %s runtime: %w", cfg.Runtime.Backend, err)
	}

	showActiveModel(ctx, client, cfg, con)

	seed, err := resolvePlan(ws)
	if err != nil {
		return err
	}

	converter := plan.New(client, plan.Config{
		Model:   cfg.Runtime.WorkerModel,
		Timeout: oneShotTimeout,
	}, plan.WithLogger(log))
	_, err = converter.EnsurePhased(ctx, ws, seed)
	if err != nil {
		return fmt.Errorf("prepare plan: %w", err)
	}

	team, err := roster.Load(cfg.Team)
	if err != nil {
		return err
	}
	assembler := assembly.New(client, assembly.Config{
		Model:            cfg.Runtime.WorkerModel,
		Cap:              cfg.Team.MaxSynthesized,
		Timeout:          oneShotTimeout,
		WorkingDirectory: ws.Root(),
	}, assembly.WithLogger(log))
	team, err = assembler.Assemble(ctx, seed, team)
	if err != nil {
		return fmt.Errorf("assemble team: %w", err)
	}

	lines := console.NewLineSource(cmd.InOrStdin())
	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithEscalator(console.NewEscalator(con, lines)),
		orchestrator.WithInterjections(lines),
	}
	if runPrompt != "" {
		opts = append(opts, orchestrator.WithUserPrompt(strings.TrimSpace(runPrompt)))
	}

	victory, err := orchestrator.New(client, ws, cfg, team, con, opts...).Run(ctx)
	if err != nil {
		return err
	}
	if !victory {
		return errors.New("run ended without team victory")
	}
	return nil
}

// resolvePlan turns the --plan/--prompt flags into the plan seed text.
// Pointing --plan at a phase index or context file imports the whole
// phase directory into the workspace.
func resolvePlan(ws *workspace.Workspace) (string, error) {
	if runPrompt != "" {
		return strings.TrimSpace(runPrompt), nil
	}

	data, err := os.ReadFile(runPlanFile)
	if err != nil {
		return "", fmt.Errorf("read plan: %w", err)
	}

	base := filepath.Base(runPlanFile)
	if base == workspace.IndexFileName || base == workspace.ContextFileName {
		if err := importPhases(ws, filepath.Dir(runPlanFile)); err != nil {
			return "", fmt.Errorf("import phases: %w", err)
		}
		if ws.IsPhased() {
			return ws.PlanContent(), nil
		}
	}
	return string(data), nil
}

// importPhases copies the markdown files of an external phase directory
// into the workspace's phases directory. Pointing at the workspace's own
// phases directory is a no-op.
func importPhases(ws *workspace.Workspace, dir string) error {
	src, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if src == ws.PhasesDir() {
		return nil
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, entry.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(ws.PhasesDir(), entry.Name()), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// showActiveModel resolves the configured worker model against what the
// backend actually offers and prints the result.
func showActiveModel(ctx context.Context, client runtime.Client, cfg *config.Config, con *console.Console) {
	models, err := client.ListModels(ctx)
	if err != nil {
		con.Println(fmt.Sprintf("Model: %s (could not query models: %v)", cfg.Runtime.WorkerModel, err))
		return
	}
	for _, m := range models {
		if m.ID == cfg.Runtime.WorkerModel {
			con.Println(fmt.Sprintf("Model: %s (%s)", m.Name, m.ID))
			return
		}
	}
	con.Println(fmt.Sprintf("Model: %s (not found in available models)", cfg.Runtime.WorkerModel))
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	if len(ids) > 0 {
		con.Println("Available: " + strings.Join(ids, ", "))
	}
}

func startupFailureBody(cfg *config.Config, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s runtime failed to respond in time.\n\n", cfg.Runtime.Backend)
	b.WriteString("Common causes:\n")
	fmt.Fprintf(&b, "  - The %s binary is not installed or not on PATH\n", cfg.Runtime.Binary)
	b.WriteString("  - The CLI is not authenticated\n")
	b.WriteString("  - Network issues or a proxy blocking the connection\n\n")
	b.WriteString("Troubleshooting:\n")
	fmt.Fprintf(&b, "  1. Run %s --version to verify the CLI works\n", cfg.Runtime.Binary)
	fmt.Fprintf(&b, "  2. Check your config: %s\n\n", config.ConfigFile())
	fmt.Fprintf(&b, "Last error: %v", err)
	return b.String()
}
