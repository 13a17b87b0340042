// Package plan converts free-form plan documents into the phased
// workspace structure the team workflow depends on: phases/_CONTEXT.md,
// phases/_INDEX.md, and one file per phase.
package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/runtime"
	"github.com/mandali-ai/mandali/internal/workspace"
)

// Config holds the converter tunables.
type Config struct {
	// Model is the model id the conversion session runs on.
	Model string

	// Timeout bounds the conversion query.
	Timeout time.Duration
}

// Converter restructures a flat plan into phases via one runtime
// session with file-creation tools.
type Converter struct {
	client runtime.Client
	cfg    Config
	clock  clockwork.Clock
	log    *logging.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithClock sets the clock used for the query timeout.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Converter) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Converter) { c.log = log }
}

// New creates a Converter.
func New(client runtime.Client, cfg Config, opts ...Option) *Converter {
	c := &Converter{
		client: client,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		log:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("plan")
	return c
}

// EnsurePhased writes content as the workspace plan and, when the
// workspace lacks the phased structure, runs a conversion session that
// creates it. Conversion failures degrade to the flat plan; the team
// can still run, it just loses phase tracking. The returned string is
// the plan content workers receive.
func (c *Converter) EnsurePhased(ctx context.Context, ws *workspace.Workspace, content string) (string, error) {
	if err := ws.WritePlan(content); err != nil {
		return "", fmt.Errorf("plan: write plan: %w", err)
	}
	if ws.IsPhased() {
		return ws.PlanContent(), nil
	}

	c.log.Info("plan is not phased, converting")
	if err := c.convert(ctx, ws, content); err != nil {
		c.log.Warn("phased conversion failed, using flat plan", "error", err)
		return content, nil
	}
	if !ws.IsPhased() {
		c.log.Warn("conversion session produced no phase files, using flat plan")
		return content, nil
	}

	phased := ws.PlanContent()
	if err := ws.WritePlan(phased); err != nil {
		return "", fmt.Errorf("plan: write converted plan: %w", err)
	}
	c.log.Info("converted to phased plan", "phases", len(ws.PhaseFiles()))
	return phased, nil
}

// convert runs the one-shot conversion session. The session writes the
// phase files itself; the reply text is only progress narration.
func (c *Converter) convert(ctx context.Context, ws *workspace.Workspace, content string) error {
	sess, err := c.client.OpenSession(ctx, runtime.SessionConfig{
		Model:            c.cfg.Model,
		SystemPrompt:     generatorSystemPrompt,
		WorkingDirectory: ws.Root(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = sess.Destroy() }()

	_, err = runtime.Collect(ctx, c.clock, sess, convertPrompt(ws, content), c.cfg.Timeout)
	if err != nil && !errors.Is(err, runtime.ErrResponseTimeout) {
		return err
	}
	return nil
}
