package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PhaseStatus is the progress state of one phase in the plan index.
type PhaseStatus int

const (
	// PhaseNotStarted means no work has been recorded for the phase.
	PhaseNotStarted PhaseStatus = iota

	// PhaseInProgress means the phase has been started but not finished.
	PhaseInProgress

	// PhaseComplete means the team marked the phase done.
	PhaseComplete
)

// String returns a human-readable name for the status.
func (s PhaseStatus) String() string {
	switch s {
	case PhaseInProgress:
		return "in-progress"
	case PhaseComplete:
		return "complete"
	default:
		return "not-started"
	}
}

// Phase is one row of the plan index table.
type Phase struct {
	Number int
	Name   string
	Status PhaseStatus
}

// IsPhased reports whether the workspace uses the phased plan structure.
// Both the index and the context file must exist; a stray index alone is
// not a phased plan.
func (w *Workspace) IsPhased() bool {
	if _, err := os.Stat(w.IndexPath()); err != nil {
		return false
	}
	_, err := os.Stat(w.ContextPath())
	return err == nil
}

// PlanIndex parses the phase table out of _INDEX.md. Rows that do not
// look like phase entries (headers, separators, prose) are skipped. A
// missing index yields an empty slice.
func (w *Workspace) PlanIndex() []Phase {
	data, err := os.ReadFile(w.IndexPath())
	if err != nil {
		return nil
	}
	return ParsePlanIndex(string(data))
}

// AllPhasesComplete reports whether the index has at least one phase and
// every phase is marked complete. An empty or missing index is never
// complete; it means the team has not produced a trackable plan yet.
func (w *Workspace) AllPhasesComplete() bool {
	phases := w.PlanIndex()
	if len(phases) == 0 {
		return false
	}
	for _, p := range phases {
		if p.Status != PhaseComplete {
			return false
		}
	}
	return true
}

// ParsePlanIndex extracts phase rows from a markdown table. The table is
// written by the team, so parsing is deliberately tolerant: any pipe row
// whose first cell starts with a number is a phase, and the status is
// matched by keyword or icon anywhere in the remaining cells.
func ParsePlanIndex(content string) []Phase {
	var phases []Phase
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") {
			continue
		}
		cells := splitTableRow(line)
		if len(cells) < 2 || isSeparatorRow(cells) {
			continue
		}
		number, name, ok := parsePhaseCell(cells[0])
		if !ok {
			continue
		}
		if name == "" {
			name = cleanPhaseName(cells[1])
		}
		phases = append(phases, Phase{
			Number: number,
			Name:   name,
			Status: matchPhaseStatus(cells[1:]),
		})
	}
	return phases
}

// splitTableRow breaks "| a | b | c |" into trimmed cells.
func splitTableRow(line string) []string {
	parts := strings.Split(strings.Trim(line, "|"), "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

// isSeparatorRow reports whether every cell is a markdown alignment rule
// such as "---" or ":---:".
func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if c == "" {
			continue
		}
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

// parsePhaseCell reads a first cell like "1: Setup", "02", or
// "Phase 3 - API". It returns the phase number and any name embedded in
// the same cell. Cells without a number are not phase rows.
func parsePhaseCell(cell string) (number int, name string, ok bool) {
	rest := strings.TrimSpace(cell)
	if len(rest) >= 5 && strings.EqualFold(rest[:5], "phase") {
		rest = strings.TrimSpace(rest[5:])
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", false
	}
	number, err := strconv.Atoi(rest[:i])
	if err != nil {
		return 0, "", false
	}
	name = strings.TrimLeft(rest[i:], ":.- \t")
	return number, strings.TrimSpace(name), true
}

// cleanPhaseName strips markdown link syntax from a name cell, turning
// "[phase-01-setup.md](phase-01-setup.md)" into "phase-01-setup.md".
func cleanPhaseName(cell string) string {
	if open := strings.IndexByte(cell, '['); open >= 0 {
		if end := strings.IndexByte(cell[open:], ']'); end > 0 {
			return cell[open+1 : open+end]
		}
	}
	return cell
}

// matchPhaseStatus finds the first cell carrying a recognizable status.
// File-link cells are skipped so a name like phase-03-completion.md never
// reads as a status. The complete markers are checked before the
// in-progress ones so that "completed" never reads as merely started.
func matchPhaseStatus(cells []string) PhaseStatus {
	for _, cell := range cells {
		if strings.Contains(cell, "](") || strings.Contains(cell, ".md") {
			continue
		}
		lower := strings.ToLower(cell)
		switch {
		case strings.Contains(cell, "✅"),
			strings.Contains(lower, "complete"),
			strings.Contains(lower, "done"):
			return PhaseComplete
		case strings.Contains(lower, "not started"),
			strings.Contains(cell, "⏳"),
			strings.Contains(lower, "pending"),
			strings.Contains(lower, "todo"):
			return PhaseNotStarted
		case strings.Contains(cell, "🔧"),
			strings.Contains(lower, "in progress"),
			strings.Contains(lower, "in-progress"),
			strings.Contains(lower, "started"):
			return PhaseInProgress
		}
	}
	return PhaseNotStarted
}

// PlanContent assembles the full plan text workers are initialized with.
// Phased plans concatenate the context file, the index, and every phase
// file under "# === name ===" headers; otherwise the single-file plan is
// returned as-is. No plan at all yields an empty string.
func (w *Workspace) PlanContent() string {
	if !w.IsPhased() {
		data, err := os.ReadFile(w.PlanPath())
		if err != nil {
			return ""
		}
		return string(data)
	}

	var parts []string
	if data, err := os.ReadFile(w.ContextPath()); err == nil {
		parts = append(parts, fmt.Sprintf("# === %s (READ FIRST) ===\n\n%s", ContextFileName, data))
	}
	if data, err := os.ReadFile(w.IndexPath()); err == nil {
		parts = append(parts, fmt.Sprintf("\n\n# === %s ===\n\n%s", IndexFileName, data))
	}
	for _, pf := range w.PhaseFiles() {
		data, err := os.ReadFile(pf)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("\n\n# === %s ===\n\n%s", filepath.Base(pf), data))
	}
	return strings.Join(parts, "\n")
}

// PhaseFiles returns the per-phase plan files in lexical order, which is
// execution order given the phase-NN naming convention.
func (w *Workspace) PhaseFiles() []string {
	matches, err := filepath.Glob(filepath.Join(w.PhasesDir(), "phase-*.md"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// WritePlan stores a single-file plan, the fallback used when a task is
// provided directly instead of through the phased structure.
func (w *Workspace) WritePlan(content string) error {
	if err := os.MkdirAll(w.ArtifactsDir(), 0o755); err != nil {
		return fmt.Errorf("workspace: create artifacts dir: %w", err)
	}
	if err := os.WriteFile(w.PlanPath(), []byte(content), 0o644); err != nil {
		return fmt.Errorf("workspace: write plan: %w", err)
	}
	return nil
}

// HasPlan reports whether any plan exists, phased or single-file.
func (w *Workspace) HasPlan() bool {
	if w.IsPhased() {
		return true
	}
	_, err := os.Stat(w.PlanPath())
	return err == nil
}
