// Package verification runs the post-convergence audit: an independent
// session compares the plan against what actually exists in the
// workspace and either passes the round or produces a structured gap
// report for the next one. It also writes the user-facing handoff
// document after a pass.
package verification

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/runtime"
	"github.com/mandali-ai/mandali/internal/workspace"
)

const (
	passToken = "VERIFICATION_RESULT: PASS"
	gapsToken = "VERIFICATION_RESULT: GAPS_FOUND"

	// gapHeading marks one gap in a report; counting it sizes the report.
	gapHeading = "## Gap"
)

// auditorTools is the tool set the auditor may use. The audit reads the
// deliverable tree and never modifies it.
var auditorTools = []string{"Read", "Glob", "Grep"}

// Result is one audit outcome.
type Result struct {
	// Passed is true when the implementation matches the plan, and also
	// when the auditor timed out or answered ambiguously. An unreachable
	// or unparseable auditor never blocks completion.
	Passed bool

	// GapReport is everything after the gaps token, empty on a pass. It is
	// carried into the next round's transcript.
	GapReport string

	// Ambiguous is true when the reply carried neither verdict token.
	Ambiguous bool
}

// GapCount returns the number of gaps in the report.
func (r Result) GapCount() int {
	return strings.Count(r.GapReport, gapHeading)
}

// Config holds the verification tunables.
type Config struct {
	// Model is the model id the auditor and handoff sessions run on.
	Model string

	// Timeout bounds the auditor and handoff queries.
	Timeout time.Duration
}

// Verifier runs audit and handoff sessions against a runtime backend.
type Verifier struct {
	client runtime.Client
	ws     *workspace.Workspace
	cfg    Config
	clock  clockwork.Clock
	log    *logging.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock sets the clock used for query timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(v *Verifier) { v.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

// New creates a Verifier for a workspace.
func New(client runtime.Client, ws *workspace.Workspace, cfg Config, opts ...Option) *Verifier {
	v := &Verifier{
		client: client,
		ws:     ws,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		log:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.WithComponent("verification")
	return v
}

// Verify audits the workspace against the plan. The auditor session gets
// the plan, the decisions tracker, and the phase index in its prompt, and
// read tools over the workspace tree to check claims against reality.
func (v *Verifier) Verify(ctx context.Context) (Result, error) {
	v.log.Info("running post-implementation verification")

	sess, err := v.client.OpenSession(ctx, runtime.SessionConfig{
		Model:            v.cfg.Model,
		SystemPrompt:     auditorSystemPrompt,
		WorkingDirectory: v.ws.Root(),
		Tools:            auditorTools,
	})
	if err != nil {
		return Result{}, fmt.Errorf("verification: open auditor session: %w", err)
	}
	defer func() { _ = sess.Destroy() }()

	reply, err := runtime.Collect(ctx, v.clock, sess, auditPrompt(v.ws), v.cfg.Timeout)
	if errors.Is(err, runtime.ErrResponseTimeout) {
		v.log.Warn("auditor timed out, treating as pass", "timeout", v.cfg.Timeout)
		return Result{Passed: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("verification: auditor query: %w", err)
	}

	res := parseVerdict(reply)
	switch {
	case res.Ambiguous:
		v.log.Warn("verification result ambiguous, treating as pass")
	case res.Passed:
		v.log.Info("verification passed")
	default:
		v.log.Warn("verification found gaps", "gaps", res.GapCount())
	}
	return res, nil
}

// parseVerdict maps an auditor reply onto a Result. The pass token wins
// if both appear; no token at all reads as a pass.
func parseVerdict(reply string) Result {
	if strings.Contains(reply, passToken) {
		return Result{Passed: true}
	}
	if idx := strings.Index(reply, gapsToken); idx >= 0 {
		return Result{GapReport: strings.TrimSpace(reply[idx+len(gapsToken):])}
	}
	return Result{Passed: true, Ambiguous: true}
}

// handoffPlanLimit bounds how much plan text the handoff prompt carries.
const handoffPlanLimit = 3000

// Handoff asks a dedicated session to write the user-facing usage
// document and saves it as HANDOFF.md at the workspace root. Any failure
// is returned to the caller to log and ignore; a missing handoff never
// fails a passed run.
func (v *Verifier) Handoff(ctx context.Context, userPrompt string) (string, error) {
	v.log.Info("generating handoff instructions")

	sess, err := v.client.OpenSession(ctx, runtime.SessionConfig{
		Model:            v.cfg.Model,
		SystemPrompt:     handoffSystemPrompt,
		WorkingDirectory: v.ws.Root(),
	})
	if err != nil {
		return "", fmt.Errorf("verification: open handoff session: %w", err)
	}
	defer func() { _ = sess.Destroy() }()

	reply, err := runtime.Collect(ctx, v.clock, sess, handoffPrompt(v.ws, userPrompt), v.cfg.Timeout)
	if err != nil && !errors.Is(err, runtime.ErrResponseTimeout) {
		return "", fmt.Errorf("verification: handoff query: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("verification: handoff produced no content")
	}

	if err := os.WriteFile(v.ws.HandoffPath(), []byte(reply), 0o644); err != nil {
		return "", fmt.Errorf("verification: write handoff: %w", err)
	}
	v.log.Info("handoff instructions saved", "path", v.ws.HandoffPath())
	return reply, nil
}
