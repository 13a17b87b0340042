package workspace

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// ArtifactsDirName is the subdirectory holding orchestration files.
	ArtifactsDirName = "mandali-artifacts"

	// PhasesDirName is the subdirectory holding phased plan files.
	PhasesDirName = "phases"

	// ConversationFileName is the shared conversation log.
	ConversationFileName = "conversation.txt"

	// SatisfactionFileName is the worker status map.
	SatisfactionFileName = "satisfaction.txt"

	// DecisionsFileName records intentional deviations from the plan.
	DecisionsFileName = "DecisionsTracker.md"

	// PlanFileName is the single-file plan fallback.
	PlanFileName = "plan.md"

	// MetricsFileName is the persisted run metrics.
	MetricsFileName = "metrics.json"

	// ContextFileName is the global context file of a phased plan.
	ContextFileName = "_CONTEXT.md"

	// IndexFileName is the phase tracking table of a phased plan.
	IndexFileName = "_INDEX.md"

	// HandoffFileName is the user-facing usage document written after a
	// verification pass.
	HandoffFileName = "HANDOFF.md"
)

//go:embed templates/DecisionsTracker.md
var decisionsTemplate []byte

// Workspace is the shared directory all workers and the orchestrator
// communicate through. It is safe for concurrent use.
type Workspace struct {
	root string

	// mu serializes conversation appends and status-map rewrites.
	mu sync.Mutex
}

// New creates a Workspace rooted at the given output directory.
// The directory structure is created by Init, not here.
func New(root string) *Workspace {
	return &Workspace{root: root}
}

// Init creates the workspace directory structure and touches the
// communication files. The decisions tracker is seeded from the embedded
// template if it does not already exist; an existing tracker is never
// overwritten (it must survive round rollovers and re-runs).
func (w *Workspace) Init() error {
	for _, dir := range []string{w.root, w.ArtifactsDir(), w.PhasesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("workspace: create %s: %w", dir, err)
		}
	}

	for _, path := range []string{w.ConversationPath(), w.SatisfactionPath()} {
		if err := touch(path); err != nil {
			return err
		}
	}

	if _, err := os.Stat(w.DecisionsPath()); os.IsNotExist(err) {
		if err := os.WriteFile(w.DecisionsPath(), decisionsTemplate, 0o644); err != nil {
			return fmt.Errorf("workspace: seed decisions tracker: %w", err)
		}
	}

	return nil
}

// touch creates an empty file if it does not exist, preserving content and
// modification time if it does.
func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("workspace: touch %s: %w", path, err)
	}
	return f.Close()
}

// Root returns the workspace root directory (where workers create files).
func (w *Workspace) Root() string { return w.root }

// ArtifactsDir returns the orchestration artifacts directory.
func (w *Workspace) ArtifactsDir() string { return filepath.Join(w.root, ArtifactsDirName) }

// PhasesDir returns the phased plan directory.
func (w *Workspace) PhasesDir() string { return filepath.Join(w.root, PhasesDirName) }

// ConversationPath returns the path to the conversation log.
func (w *Workspace) ConversationPath() string {
	return filepath.Join(w.ArtifactsDir(), ConversationFileName)
}

// SatisfactionPath returns the path to the status map file.
func (w *Workspace) SatisfactionPath() string {
	return filepath.Join(w.ArtifactsDir(), SatisfactionFileName)
}

// DecisionsPath returns the path to the decisions tracker.
func (w *Workspace) DecisionsPath() string {
	return filepath.Join(w.ArtifactsDir(), DecisionsFileName)
}

// PlanPath returns the path to the single-file plan fallback.
func (w *Workspace) PlanPath() string {
	return filepath.Join(w.ArtifactsDir(), PlanFileName)
}

// MetricsPath returns the path to the persisted run metrics.
func (w *Workspace) MetricsPath() string {
	return filepath.Join(w.ArtifactsDir(), MetricsFileName)
}

// ContextPath returns the path to the phased plan's _CONTEXT.md.
func (w *Workspace) ContextPath() string {
	return filepath.Join(w.PhasesDir(), ContextFileName)
}

// IndexPath returns the path to the phased plan's _INDEX.md.
func (w *Workspace) IndexPath() string {
	return filepath.Join(w.PhasesDir(), IndexFileName)
}

// DecisionsModTime returns the last modification time of the decisions
// tracker, or the zero time if the file does not exist. The content of the
// tracker is opaque to the orchestrator; only its modification time is
// consulted (to detect whether deviations were recorded after a phase).
func (w *Workspace) DecisionsModTime() time.Time {
	info, err := os.Stat(w.DecisionsPath())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// DecisionsContent returns the decisions tracker content, or an empty
// string if the file does not exist.
func (w *Workspace) DecisionsContent() string {
	data, err := os.ReadFile(w.DecisionsPath())
	if err != nil {
		return ""
	}
	return string(data)
}

// IndexContent returns the phase index content, or an empty string if the
// plan is not phased.
func (w *Workspace) IndexContent() string {
	data, err := os.ReadFile(w.IndexPath())
	if err != nil {
		return ""
	}
	return string(data)
}

// HandoffPath returns the path to the handoff document. It lives at the
// workspace root, next to the deliverables, where the user will look.
func (w *Workspace) HandoffPath() string {
	return filepath.Join(w.root, HandoffFileName)
}
