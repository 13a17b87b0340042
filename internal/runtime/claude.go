package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mandali-ai/mandali/internal/config"
)

// ClaudeClient runs sessions through the claude CLI. Each Send is a
// one-shot `--print` execution; conversation continuity comes from the
// CLI's own session store via `--session-id` / `--resume`.
type ClaudeClient struct {
	binary       string
	workerModel  string
	auditorModel string
}

// NewClaudeClient creates a claude CLI client from runtime configuration.
func NewClaudeClient(cfg config.RuntimeConfig) *ClaudeClient {
	binary := cfg.Binary
	if binary == "" {
		binary = "claude"
	}
	return &ClaudeClient{
		binary:       binary,
		workerModel:  cfg.WorkerModel,
		auditorModel: cfg.AuditorModelOrDefault(),
	}
}

// OpenSession creates a session with a fresh CLI session id. No process is
// started until the first Send.
func (c *ClaudeClient) OpenSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if cfg.WorkingDirectory == "" {
		return nil, fmt.Errorf("claude: session needs a working directory")
	}
	return &claudeSession{
		binary: c.binary,
		cfg:    cfg,
		id:     uuid.NewString(),
		events: make(chan Event, 16),
		closed: make(chan struct{}),
	}, nil
}

// ListModels reports the configured models. The CLI exposes no catalog
// endpoint, so this is the set of models this run will actually use.
func (c *ClaudeClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	models := []ModelInfo{{ID: c.workerModel, Name: c.workerModel}}
	if c.auditorModel != "" && c.auditorModel != c.workerModel {
		models = append(models, ModelInfo{ID: c.auditorModel, Name: c.auditorModel})
	}
	return models, nil
}

// Ping checks that the CLI binary is present and runnable.
func (c *ClaudeClient) Ping(ctx context.Context) error {
	if err := exec.CommandContext(ctx, c.binary, "--version").Run(); err != nil {
		return fmt.Errorf("claude: ping %s: %w", c.binary, err)
	}
	return nil
}

// Close releases client resources. The CLI client holds none.
func (c *ClaudeClient) Close() error { return nil }

type claudeSession struct {
	binary string
	cfg    SessionConfig
	id     string
	events chan Event

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
}

// Send launches one CLI execution for the prompt. The reply (or failure)
// arrives as exactly one event, so no stale events linger between turns.
func (s *claudeSession) Send(ctx context.Context, prompt string) error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return ErrSessionClosed
	default:
	}
	args := s.buildArgs(prompt)
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx, args)
	return nil
}

func (s *claudeSession) buildArgs(prompt string) []string {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if s.started {
		args = append(args, "--resume", s.id)
	} else {
		args = append(args, "--session-id", s.id)
	}
	if s.cfg.Model != "" {
		args = append(args, "--model", s.cfg.Model)
	}
	if s.cfg.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", s.cfg.SystemPrompt)
	}
	if len(s.cfg.Tools) > 0 {
		args = append(args, "--allowedTools", strings.Join(s.cfg.Tools, ","))
	}
	return append(args, "--", prompt)
}

func (s *claudeSession) run(ctx context.Context, args []string) {
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Dir = s.cfg.WorkingDirectory

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			err = fmt.Errorf("claude: %w: %s", err, lastLine(detail))
		} else {
			err = fmt.Errorf("claude: %w", err)
		}
		s.emit(Event{Kind: EventError, Err: err})
		return
	}
	s.emit(Event{Kind: EventTextFinal, Text: strings.TrimSpace(stdout.String())})
}

// emit delivers an event unless the session was destroyed while the turn
// was in flight.
func (s *claudeSession) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *claudeSession) Events() <-chan Event { return s.events }

// Destroy aborts any in-flight execution. Safe to call more than once.
func (s *claudeSession) Destroy() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		close(s.closed)
		s.mu.Unlock()
	})
	return nil
}

func (s *claudeSession) ID() string { return s.id }

// lastLine returns the final non-empty line, which for CLI failures is
// where the useful message tends to be.
func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return text
}
