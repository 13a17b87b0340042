package workspace

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// StatusKind is a worker's declared satisfaction state. It is a closed set:
// consensus logic matches on the kind, never on substrings of raw text.
type StatusKind int

const (
	// StatusUnknown means no parseable status has been recorded.
	StatusUnknown StatusKind = iota

	// StatusWorking means the worker is actively making progress.
	StatusWorking

	// StatusSatisfied means the worker considers its responsibilities done.
	StatusSatisfied

	// StatusBlocked means the worker cannot proceed; Reason says why.
	StatusBlocked

	// StatusPaused means the worker is holding off, typically awaiting
	// human guidance during an escalation.
	StatusPaused
)

// String returns the canonical upper-case name of the kind.
func (k StatusKind) String() string {
	switch k {
	case StatusWorking:
		return "WORKING"
	case StatusSatisfied:
		return "SATISFIED"
	case StatusBlocked:
		return "BLOCKED"
	case StatusPaused:
		return "PAUSED"
	default:
		return "UNKNOWN"
	}
}

// Status is a worker's declared state plus an optional free-text reason
// (the part after the dash in "BLOCKED - db down").
type Status struct {
	Kind   StatusKind
	Reason string
}

// Working and Satisfied are the reasonless statuses.
var (
	Working   = Status{Kind: StatusWorking}
	Satisfied = Status{Kind: StatusSatisfied}
)

// Blocked returns a BLOCKED status carrying the given reason.
func Blocked(reason string) Status { return Status{Kind: StatusBlocked, Reason: reason} }

// Paused returns a PAUSED status carrying the given reason.
func Paused(reason string) Status { return Status{Kind: StatusPaused, Reason: reason} }

// String renders the status as it is written to the status map file.
func (s Status) String() string {
	if s.Reason != "" {
		return s.Kind.String() + " - " + s.Reason
	}
	return s.Kind.String()
}

// statusTagPattern is the tolerant grammar for the status tag workers are
// required to end every message with. Case-insensitive, whitespace-tolerant
// around the colon and the dash. Only horizontal whitespace is allowed so
// the reason stays on the tag's own line and never swallows a following
// bullet point.
var statusTagPattern = regexp.MustCompile(
	`(?i)SATISFACTION_STATUS[ \t]*:[ \t]*(SATISFIED|WORKING|PAUSED|BLOCKED)\b(?:[ \t]*-[ \t]*([^\n]*))?`)

// ExtractStatus pulls the declared status out of a worker reply using the
// tolerant tag grammar. The first match wins. The second return is false
// when no tag was found; callers must treat that as WORKING, never as
// SATISFIED. Silence is not consent.
func ExtractStatus(reply string) (Status, bool) {
	m := statusTagPattern.FindStringSubmatch(reply)
	if m == nil {
		return Status{Kind: StatusWorking}, false
	}
	kind := parseKind(m[1])
	reason := strings.TrimSpace(m[2])
	if kind == StatusPaused && reason == "" {
		reason = "Awaiting human guidance"
	}
	return Status{Kind: kind, Reason: reason}, true
}

// parseKind maps a tag keyword to its StatusKind. The pattern guarantees
// one of the four keywords, so the default arm is unreachable in practice.
func parseKind(keyword string) StatusKind {
	switch strings.ToUpper(keyword) {
	case "SATISFIED":
		return StatusSatisfied
	case "BLOCKED":
		return StatusBlocked
	case "PAUSED":
		return StatusPaused
	case "WORKING":
		return StatusWorking
	default:
		return StatusUnknown
	}
}

// parseStatusValue parses a status-map file value ("BLOCKED - db down").
// Unknown keywords yield StatusUnknown so malformed lines never masquerade
// as a real declaration.
func parseStatusValue(value string) Status {
	keyword, reason, _ := strings.Cut(value, "-")
	keyword = strings.ToUpper(strings.TrimSpace(keyword))
	reason = strings.TrimSpace(reason)
	switch keyword {
	case "SATISFIED":
		return Status{Kind: StatusSatisfied, Reason: reason}
	case "WORKING":
		return Status{Kind: StatusWorking, Reason: reason}
	case "BLOCKED":
		return Status{Kind: StatusBlocked, Reason: reason}
	case "PAUSED":
		return Status{Kind: StatusPaused, Reason: reason}
	default:
		return Status{Kind: StatusUnknown, Reason: value}
	}
}

// SetStatus records a worker's declared status. The whole file is
// rewritten under the store mutex: the read-modify-write cannot interleave
// with another writer, so the last write always wins cleanly.
func (w *Workspace) SetStatus(workerID string, status Status) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := w.readStatusFileLocked()
	entries[workerID] = status.String()

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&sb, "%s: %s\n", id, entries[id])
	}
	if err := os.WriteFile(w.SatisfactionPath(), []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("workspace: write status map: %w", err)
	}
	return nil
}

// Statuses returns every recorded worker status. Lines that do not parse
// are dropped: a corrupt entry must never leak into consensus checks.
func (w *Workspace) Statuses() (map[string]Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	statuses := make(map[string]Status)
	for id, value := range w.readStatusFileLocked() {
		st := parseStatusValue(value)
		if st.Kind == StatusUnknown {
			continue
		}
		statuses[id] = st
	}
	return statuses, nil
}

// ClearStatuses empties the status map, typically at a round rollover so
// every worker starts the new round undeclared.
func (w *Workspace) ClearStatuses() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.WriteFile(w.SatisfactionPath(), nil, 0o644); err != nil {
		return fmt.Errorf("workspace: clear status map: %w", err)
	}
	return nil
}

// readStatusFileLocked reads the raw id -> value pairs from the status
// file. The caller must hold w.mu. A missing file reads as empty.
func (w *Workspace) readStatusFileLocked() map[string]string {
	entries := make(map[string]string)
	data, err := os.ReadFile(w.SatisfactionPath())
	if err != nil {
		return entries
	}
	for _, line := range strings.Split(string(data), "\n") {
		id, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		entries[id] = strings.TrimSpace(value)
	}
	return entries
}
