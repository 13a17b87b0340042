// Package runtime abstracts the AI session backend the orchestrator and
// workers run on. The orchestrator only ever talks to the Client and
// Session interfaces; the concrete backend is selected from configuration.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mandali-ai/mandali/internal/config"
)

// BackendName identifies a supported session backend.
type BackendName string

const (
	// BackendClaude runs sessions through the claude CLI.
	BackendClaude BackendName = "claude"
)

// ErrUnknownBackend is returned when the configured backend is unsupported.
var ErrUnknownBackend = errors.New("unknown runtime backend")

// ErrResponseTimeout is returned by Collect when a session produced no
// terminal event within the deadline. The partial text gathered so far is
// still returned alongside it.
var ErrResponseTimeout = errors.New("session response timed out")

// ErrSessionClosed is returned when a session's event stream ended while a
// reply was still expected.
var ErrSessionClosed = errors.New("session closed")

// EventKind classifies session events.
type EventKind int

const (
	// EventTextDelta carries an incremental chunk of reply text.
	EventTextDelta EventKind = iota
	// EventTextFinal carries the complete reply text and supersedes any
	// deltas received before it.
	EventTextFinal
	// EventToolStart signals the session began a tool invocation.
	EventToolStart
	// EventToolEnd signals a tool invocation finished.
	EventToolEnd
	// EventIdle signals the session finished its turn and is waiting.
	EventIdle
	// EventError carries a session failure.
	EventError
)

// Event is one message on a session's event stream.
type Event struct {
	Kind EventKind
	Text string // TextDelta chunk or TextFinal full reply
	Tool string // tool name for ToolStart/ToolEnd
	Err  error  // set for EventError
}

// SessionConfig describes one session to open. It is an explicit value
// threaded down from configuration; nothing here is ambient.
type SessionConfig struct {
	// Model is the model id the session runs on.
	Model string
	// SystemPrompt is appended to the backend's own system prompt.
	SystemPrompt string
	// WorkingDirectory scopes the session's file access to the workspace.
	WorkingDirectory string
	// Tools restricts which tools the session may use. Empty means the
	// backend default tool set.
	Tools []string
}

// ModelInfo describes one model the backend can run.
type ModelInfo struct {
	ID   string
	Name string
}

// Session is one live agent conversation. Send is asynchronous: the reply
// arrives on Events. Sessions are not safe for concurrent Sends; callers
// hold a per-session guard.
type Session interface {
	// Send submits a prompt. The reply arrives as events.
	Send(ctx context.Context, prompt string) error
	// Events returns the session's event stream. The channel is never
	// closed while the session is alive.
	Events() <-chan Event
	// Destroy tears the session down and aborts any in-flight turn.
	Destroy() error
	// ID returns the backend session identifier.
	ID() string
}

// Client opens sessions against one backend.
type Client interface {
	OpenSession(ctx context.Context, cfg SessionConfig) (Session, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewFromConfig builds a Client from configuration.
func NewFromConfig(cfg *config.Config) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing config")
	}

	switch strings.ToLower(cfg.Runtime.Backend) {
	case string(BackendClaude), "":
		return NewClaudeClient(cfg.Runtime), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Runtime.Backend)
	}
}
