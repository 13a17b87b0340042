package consensus

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/runtime"
	"github.com/mandali-ai/mandali/internal/workspace"
)

// probePrompt is the terse status declaration request sent directly to a
// worker's session, bypassing the conversation file.
const probePrompt = `Status check. Do not start any new work.

Reply with exactly one line declaring your current status:
SATISFACTION_STATUS: SATISFIED, WORKING, BLOCKED - [reason], or PAUSED

If your responsibilities in the plan are complete, say SATISFIED.`

// strictProbePrompt is the retry after an unparseable reply.
const strictProbePrompt = `Your previous reply did not contain a parseable status line.

Reply with EXACTLY one line and nothing else:
SATISFACTION_STATUS: SATISFIED
or
SATISFACTION_STATUS: WORKING
or
SATISFACTION_STATUS: BLOCKED - [reason]
or
SATISFACTION_STATUS: PAUSED`

// Prober is a direct line to one live worker session. Implementations
// must serialize Probe with every other prompt sent on the same session
// (the regular poll loop in particular), so a probe and a poll never race
// on one session.
type Prober interface {
	// WorkerID identifies the worker the session belongs to.
	WorkerID() string

	// Probe sends a prompt on the worker's session and returns the
	// reply. A reply that timed out returns partial text together with
	// runtime.ErrResponseTimeout.
	Probe(ctx context.Context, prompt string) (string, error)
}

// Config holds the reconciliation tunables.
type Config struct {
	// Cooldown is the minimum spacing between sweeps.
	Cooldown time.Duration

	// MinRuntime is how long the team must have been running before the
	// activity-based trigger may fire.
	MinRuntime time.Duration

	// RecentActivityWindow is how fresh conversation activity must be
	// for the activity-based trigger. A silent team is stalled, not
	// silently done; the stall controller owns that case.
	RecentActivityWindow time.Duration
}

// Reconciler probes non-satisfied workers that are plausibly done. A
// worker may finish its responsibilities and stop talking without ever
// re-declaring SATISFIED; without reconciliation such a team never
// converges.
type Reconciler struct {
	ws        *workspace.Workspace
	cfg       Config
	clock     clockwork.Clock
	log       *logging.Logger
	startedAt time.Time
	lastSweep time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock sets the clock, letting tests fast-forward the cooldown.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Reconciler) { r.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// NewReconciler creates a Reconciler for one round. The team start time
// is captured at construction; round rollover constructs a fresh one.
func NewReconciler(ws *workspace.Workspace, cfg Config, opts ...Option) *Reconciler {
	r := &Reconciler{
		ws:    ws,
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		log:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.clock.Now()
	r.lastSweep = r.startedAt
	r.log = r.log.WithComponent("reconciler")
	return r
}

// Tick runs one reconciliation opportunity. It sweeps only when the
// cooldown has elapsed and one of the triggers holds:
//
//	(a) every phase in the plan index is marked complete, or
//	(b) the team has been running at least MinRuntime, the conversation
//	    shows recent activity, and nobody is BLOCKED.
//
// A sweep probes each non-SATISFIED worker's session directly and
// records the declared status. Unparseable or timed-out replies get one
// stricter retry, then default to WORKING: a probe can never invent
// satisfaction.
func (r *Reconciler) Tick(ctx context.Context, probers []Prober) error {
	now := r.clock.Now()
	if now.Sub(r.lastSweep) < r.cfg.Cooldown {
		return nil
	}

	statuses, err := r.ws.Statuses()
	if err != nil {
		return err
	}
	if !r.shouldSweep(now, probers, statuses) {
		return nil
	}
	r.lastSweep = now

	for _, p := range probers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if st, ok := statuses[p.WorkerID()]; ok && st.Kind == workspace.StatusSatisfied {
			continue
		}
		r.probeWorker(ctx, p)
	}
	return nil
}

// shouldSweep evaluates the sweep triggers.
func (r *Reconciler) shouldSweep(now time.Time, probers []Prober, statuses map[string]workspace.Status) bool {
	// Nothing to probe: every worker already declared SATISFIED.
	ids := make([]string, 0, len(probers))
	for _, p := range probers {
		ids = append(ids, p.WorkerID())
	}
	if AllSatisfied(statuses, ids) {
		return false
	}

	if r.ws.AllPhasesComplete() {
		r.log.Debug("reconciliation trigger: all phases complete")
		return true
	}

	if now.Sub(r.startedAt) < r.cfg.MinRuntime {
		return false
	}
	if now.Sub(r.ws.LastActivity()) > r.cfg.RecentActivityWindow {
		return false
	}
	if AnyBlocked(statuses, ids) {
		return false
	}
	r.log.Debug("reconciliation trigger: long-running with recent activity")
	return true
}

// probeWorker asks one worker to declare its status and records the
// result. Dead sessions are left to crash recovery; only replies (even
// partial ones) are acted on.
func (r *Reconciler) probeWorker(ctx context.Context, p Prober) {
	id := p.WorkerID()
	log := r.log.WithWorker(id)

	reply, err := p.Probe(ctx, probePrompt)
	if err != nil && !errors.Is(err, runtime.ErrResponseTimeout) {
		log.Warn("reconciliation probe failed", "error", err)
		return
	}

	status, found := workspace.ExtractStatus(reply)
	if !found {
		reply, err = p.Probe(ctx, strictProbePrompt)
		if err != nil && !errors.Is(err, runtime.ErrResponseTimeout) {
			log.Warn("reconciliation retry failed", "error", err)
			return
		}
		status, found = workspace.ExtractStatus(reply)
	}
	if !found {
		// Two unparseable replies from a live session: assume it is
		// still working. Never assume it is done.
		status = workspace.Working
	}

	log.Info("reconciled status", "status", status.String(), "parsed", found)
	if err := r.ws.SetStatus(id, status); err != nil {
		log.Warn("failed to record reconciled status", "error", err)
	}
}
