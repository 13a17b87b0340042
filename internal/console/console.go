// Package console renders the operator-facing terminal surface: run
// banners, periodic status lines, the end-of-run summary table, and the
// interactive escalation menu. Everything shares one Console so
// concurrent writers never interleave mid-line.
package console

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/mandali-ai/mandali/internal/metrics"
	"github.com/mandali-ai/mandali/internal/workspace"
)

const (
	// defaultWidth is used when the writer is not a terminal.
	defaultWidth = 100

	// previewLimit caps how many recent messages a status update shows.
	previewLimit = 8
)

// Console serializes styled output to a single writer.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	width int
}

// New builds a Console for w. When w is a terminal its width is detected
// once at startup; otherwise a fixed default is used.
func New(w io.Writer) *Console {
	width := defaultWidth
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 20 {
			width = tw
		}
	}
	return &Console{w: w, width: width}
}

// Width reports the column budget the Console renders into.
func (c *Console) Width() int { return c.width }

// Print writes s verbatim, without a trailing newline. Prompts use this.
func (c *Console) Print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, s)
}

// Println writes one line.
func (c *Console) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, s)
}

// Panel renders body inside a rounded border with an optional title line.
func (c *Console) Panel(title, body string) {
	content := body
	if title != "" {
		content = titleStyle.Render(title) + "\n\n" + body
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, panelStyle.Width(c.width-2).Render(content))
}

// StatusIcon maps a status kind to the glyph used in the periodic status
// line.
func StatusIcon(kind workspace.StatusKind) string {
	switch kind {
	case workspace.StatusSatisfied:
		return "✅"
	case workspace.StatusBlocked:
		return "🔴"
	case workspace.StatusWorking:
		return "🔧"
	default:
		return "⏳"
	}
}

// StatusUpdate prints one compact heartbeat line, plus previews of the
// most recent conversation messages indented beneath it. Worker IDs are
// shortened to three characters and sorted so the line is stable between
// updates.
func (c *Console) StatusUpdate(now time.Time, statuses map[string]workspace.Status, msgCount int, recent []workspace.Message) {
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	icons := make([]string, 0, len(ids))
	for _, id := range ids {
		short := id
		if len(short) > 3 {
			short = short[:3]
		}
		icons = append(icons, StatusIcon(statuses[id].Kind)+short)
	}

	line := fmt.Sprintf("%s 📊 %s  %s",
		mutedStyle.Render(now.Format("15:04:05")),
		strings.Join(icons, " "),
		mutedStyle.Render(fmt.Sprintf("%d msgs", msgCount)))

	if len(recent) > previewLimit {
		recent = recent[len(recent)-previewLimit:]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
	for _, m := range recent {
		preview := fmt.Sprintf("%s %s: %s",
			mutedStyle.Render(m.Time),
			boldStyle.Render(m.Sender),
			workspace.FirstMeaningfulLine(m.Body))
		fmt.Fprintf(c.w, "  %s %s\n", mutedStyle.Render("│"), TruncateANSI(preview, c.width-4))
	}
}

// Summary prints the end-of-run table. Verification rows are included
// only when the run had verification enabled.
func (c *Console) Summary(run metrics.Run, verification bool) {
	victory := errorStyle.Render("No")
	if run.Victory {
		victory = successStyle.Render("Yes")
	}

	rows := [][]string{
		{"Duration", run.StartTime + " → " + run.EndTime},
		{"Messages", strconv.Itoa(run.TotalMessages)},
		{"Nudges", strconv.Itoa(run.Nudges)},
		{"Escalations", strconv.Itoa(run.HumanEscalations)},
		{"Relaunches", strconv.Itoa(run.Relaunches)},
		{"Victory", victory},
	}
	if verification {
		verdict := errorStyle.Render("Gaps remain")
		if run.VerificationPassed {
			verdict = successStyle.Render("Passed")
		}
		rows = append(rows,
			[]string{"Verification rounds", strconv.Itoa(run.VerificationRounds)},
			[]string{"Verification", verdict})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Rows(rows...)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, titleStyle.Render("SUMMARY"))
	fmt.Fprintln(c.w, t.Render())
}

// FormatStatusLines renders one "- @ID: STATUS" line per worker, sorted
// by ID. Escalation panels and round announcements use it.
func FormatStatusLines(statuses map[string]workspace.Status) string {
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- @%s: %s", strings.ToUpper(id), statuses[id])
	}
	return b.String()
}
