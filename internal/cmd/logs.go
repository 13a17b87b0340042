package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/workspace"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View run logs",
	Long: `View and filter the structured logs of a mandali run.

Reads the log file from the workspace artifacts directory, including any
rotated backups. Use flags to filter and format the output.

Examples:
  # Show the last 50 entries
  mandali logs --out-path ./workdir

  # Show all entries
  mandali logs --out-path ./workdir -n 0

  # Follow logs in real-time
  mandali logs --out-path ./workdir -f

  # Filter by level and worker
  mandali logs --out-path ./workdir --level warn --worker dev

  # Show logs from the last hour
  mandali logs --out-path ./workdir --since 1h

  # Search for specific patterns
  mandali logs --out-path ./workdir --grep "stall|escalat"

  # Export a verification round to CSV
  mandali logs --out-path ./workdir --round 2 --export round2.csv --format csv`,
	RunE:         runLogs,
	SilenceUsage: true,
}

var (
	logsOutPath   string
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsWorker    string
	logsRound     int
	logsComponent string
	logsGrep      string
	logsExport    string
	logsFormat    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsOutPath, "out-path", "", "Workspace directory of the run")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsWorker, "worker", "", "Filter by worker ID")
	logsCmd.Flags().IntVar(&logsRound, "round", 0, "Filter by verification round")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (supervisor/stall/verification/...)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsExport, "export", "", "Write filtered entries to a file instead of the terminal")
	logsCmd.Flags().StringVar(&logsFormat, "format", "json", "Export format (json/text/csv)")
	_ = logsCmd.MarkFlagRequired("out-path")
}

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// levelColor returns the ANSI color code for a log level
func levelColor(level string) string {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return colorGray
	case logging.LevelInfo:
		return colorBlue
	case logging.LevelWarn:
		return colorYellow
	case logging.LevelError:
		return colorRed
	default:
		return colorReset
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry logging.LogEntry) string {
	var sb strings.Builder

	// Timestamp
	sb.WriteString(colorGray)
	sb.WriteString("[")
	sb.WriteString(entry.Timestamp.Format("15:04:05.000"))
	sb.WriteString("]")
	sb.WriteString(colorReset)

	// Level with color
	sb.WriteString(" ")
	sb.WriteString(levelColor(entry.Level))
	sb.WriteString("[")
	sb.WriteString(strings.ToUpper(entry.Level))
	sb.WriteString("]")
	sb.WriteString(colorReset)

	// Message
	sb.WriteString(" ")
	sb.WriteString(entry.Message)

	// Context fields (worker, round, component)
	if entry.WorkerID != "" {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString("worker=")
		sb.WriteString(entry.WorkerID)
		sb.WriteString(colorReset)
	}
	if entry.Round > 0 {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString("round=")
		sb.WriteString(strconv.Itoa(entry.Round))
		sb.WriteString(colorReset)
	}
	if entry.Component != "" {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString("component=")
		sb.WriteString(entry.Component)
		sb.WriteString(colorReset)
	}

	// Extra fields
	for key, value := range entry.Attrs {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString(key)
		sb.WriteString("=")
		sb.WriteString(colorReset)
		sb.WriteString(fmt.Sprintf("%v", value))
	}

	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	root, err := filepath.Abs(logsOutPath)
	if err != nil {
		return fmt.Errorf("resolve out-path: %w", err)
	}
	ws := workspace.New(root)
	logPath := filepath.Join(ws.ArtifactsDir(), logging.LogFileName)

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No logs found at %s\n", logPath)
		return nil
	}

	filter := logging.LogFilter{
		Level:     logsLevel,
		WorkerID:  logsWorker,
		Round:     logsRound,
		Component: logsComponent,
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.StartTime = time.Now().Add(-duration)
	}

	var grepRegex *regexp.Regexp
	if logsGrep != "" {
		grepRegex, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	// Follow mode
	if logsFollow {
		return followLogs(out, logPath, filter, grepRegex)
	}

	entries, err := logging.AggregateLogs(ws.ArtifactsDir())
	if err != nil {
		return err
	}
	entries = logging.FilterLogs(entries, filter)
	entries = grepEntries(entries, grepRegex)

	// Export mode writes to a file instead of the terminal
	if logsExport != "" {
		if err := logging.ExportLogEntries(entries, logsExport, logsFormat); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d entries to %s\n", len(entries), logsExport)
		return nil
	}

	// Apply tail limit
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	for _, entry := range entries {
		fmt.Fprintln(out, formatLogEntry(entry))
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}

	return nil
}

// followLogs implements tail -f behavior for the log file
func followLogs(out io.Writer, logPath string, filter logging.LogFilter, grepRegex *regexp.Regexp) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	// Seek to end of file
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// No new data, wait briefly and try again
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("error reading log file: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		entry, err := logging.ParseEntry(line)
		if err != nil {
			// If we can't parse as JSON, display raw line
			fmt.Fprintln(out, line)
			continue
		}

		if !filter.Matches(entry) {
			continue
		}
		if grepRegex != nil && !grepRegex.MatchString(grepText(entry)) {
			continue
		}

		fmt.Fprintln(out, formatLogEntry(entry))
	}
}

// grepEntries keeps entries whose message or attribute values match the
// pattern. A nil pattern keeps everything.
func grepEntries(entries []logging.LogEntry, pattern *regexp.Regexp) []logging.LogEntry {
	if pattern == nil {
		return entries
	}
	var matched []logging.LogEntry
	for _, entry := range entries {
		if pattern.MatchString(grepText(entry)) {
			matched = append(matched, entry)
		}
	}
	return matched
}

// grepText assembles the searchable text of an entry: the message plus
// every attribute value.
func grepText(entry logging.LogEntry) string {
	var sb strings.Builder
	sb.WriteString(entry.Message)
	for _, value := range entry.Attrs {
		sb.WriteString(" ")
		sb.WriteString(fmt.Sprintf("%v", value))
	}
	return sb.String()
}
