// Package orchestrator wires a full run: workspace seeding, staggered
// team launch, the monitor loop, and the bounded verify-then-retry round
// loop. The workspace stays the only medium between workers and the
// supervisor; everything here reads and writes it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/config"
	"github.com/mandali-ai/mandali/internal/console"
	"github.com/mandali-ai/mandali/internal/event"
	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/metrics"
	"github.com/mandali-ai/mandali/internal/roster"
	"github.com/mandali-ai/mandali/internal/runtime"
	"github.com/mandali-ai/mandali/internal/stall"
	"github.com/mandali-ai/mandali/internal/supervisor"
	"github.com/mandali-ai/mandali/internal/verification"
	"github.com/mandali-ai/mandali/internal/workspace"
)

const (
	// workerResponseTimeout bounds one worker reply; a timed-out reply is
	// used as-is rather than failing the worker.
	workerResponseTimeout = 5 * time.Minute

	// summaryTimeout bounds the stall-escalation summary query.
	summaryTimeout = time.Minute

	// victoryGrace is how long workers get to see a terminal announcement
	// before their sessions are torn down.
	victoryGrace = 5 * time.Second

	// handoffDisplayRunes caps how much of the handoff document the
	// console panel shows; the full text is in HANDOFF.md.
	handoffDisplayRunes = 3000
)

// Orchestrator runs one complete supervised session of the team.
type Orchestrator struct {
	client runtime.Client
	ws     *workspace.Workspace
	cfg    *config.Config
	team   []roster.Worker
	con    *console.Console

	clock      clockwork.Clock
	log        *logging.Logger
	bus        *event.Bus
	escalator  stall.Escalator
	lines      *console.LineSource
	recorder   *metrics.Recorder
	userPrompt string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock driving polls, stall timers, and round waits.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithBus sets the event bus. Without one a private bus is created so
// metrics still accumulate.
func WithBus(bus *event.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithEscalator sets the human escalation channel. Without one,
// escalations abort the run.
func WithEscalator(esc stall.Escalator) Option {
	return func(o *Orchestrator) { o.escalator = esc }
}

// WithInterjections attaches the operator input stream; lines typed
// during monitoring are relayed to the team.
func WithInterjections(lines *console.LineSource) Option {
	return func(o *Orchestrator) { o.lines = lines }
}

// WithUserPrompt records the operator's original task statement. It is
// seeded into the conversation and re-anchored at phase transitions.
func WithUserPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.userPrompt = prompt }
}

// New wires an Orchestrator. The workspace must already be initialized
// and hold a plan.
func New(client runtime.Client, ws *workspace.Workspace, cfg *config.Config, team []roster.Worker, con *console.Console, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		ws:     ws,
		cfg:    cfg,
		team:   team,
		con:    con,
		clock:  clockwork.NewRealClock(),
		log:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = event.NewBus()
	}
	if o.escalator == nil {
		o.escalator = autoAbort{log: o.log}
	}
	o.log = o.log.WithComponent("orchestrator")
	o.recorder = metrics.NewRecorder(metrics.WithClock(o.clock))
	o.recorder.Attach(o.bus)
	return o
}

// Run executes the whole supervised session and reports whether it ended
// in victory (team consensus, plus a verification pass when verification
// is enabled). The summary table and metrics file are produced on every
// path out.
func (o *Orchestrator) Run(ctx context.Context) (victory bool, err error) {
	o.recorder.Start()
	defer o.finish()

	if err := o.seedKickoff(); err != nil {
		return false, fmt.Errorf("orchestrator: seed kickoff: %w", err)
	}
	if strings.TrimSpace(o.userPrompt) != "" {
		if err := o.seedUserContext(); err != nil {
			return false, fmt.Errorf("orchestrator: seed user context: %w", err)
		}
	}

	verifying := o.cfg.Verification.MaxRounds > 0
	totalRounds := o.cfg.Verification.MaxRounds
	if !verifying {
		totalRounds = 1
	}

	gapReport := ""
	for round := 1; round <= totalRounds; round++ {
		log := o.log.WithRound(round)
		o.publish(event.NewRoundStartedEvent(round, totalRounds))
		o.announceRound(round, totalRounds, gapReport)

		if round > 1 && gapReport != "" {
			if err := o.seedRelaunch(round, totalRounds, gapReport); err != nil {
				return false, fmt.Errorf("orchestrator: seed relaunch: %w", err)
			}
		}

		converged, err := o.runRound(ctx, round, log)
		if err != nil {
			return false, err
		}
		if !converged {
			// Human abort or closed input; the summary still prints.
			return false, nil
		}

		if !verifying {
			// The monitor already announced victory at consensus.
			return true, nil
		}

		result, err := o.verify(ctx, log)
		if err != nil {
			return false, err
		}
		if result.Passed {
			o.publish(event.NewVerificationPassedEvent(round))
			log.Info("verification passed")
			o.announceVictory(round)
			o.writeHandoff(ctx)
			o.sleep(ctx, victoryGrace)
			return true, nil
		}

		o.publish(event.NewVerificationGapsEvent(round, result.GapCount()))
		log.Warn("verification found gaps", "gaps", result.GapCount())
		gapReport = result.GapReport

		if round == totalRounds {
			if err := o.announceExhausted(totalRounds, gapReport); err != nil {
				return false, err
			}
			return false, nil
		}
		if err := o.rollover(round, log); err != nil {
			return false, err
		}
	}
	return false, nil
}

// runRound launches the team and monitors it until consensus, abort, or
// cancellation. The supervisor and its sessions are torn down before
// returning; a fresh round gets fresh workers.
func (o *Orchestrator) runRound(ctx context.Context, round int, log *logging.Logger) (bool, error) {
	sup := supervisor.New(o.client, o.ws, supervisor.Config{
		Model:           o.cfg.Runtime.WorkerModel,
		PollInterval:    o.cfg.Supervision.PollInterval(),
		LaunchStagger:   o.cfg.Supervision.LaunchStagger(),
		ResponseTimeout: workerResponseTimeout,
		ConnectAttempts: o.cfg.Runtime.ConnectAttempts,
	}, supervisor.WithClock(o.clock), supervisor.WithLogger(o.log), supervisor.WithBus(o.bus))
	defer sup.Stop()

	if err := sup.LaunchAll(ctx, o.team, o.ws.PlanContent()); err != nil {
		return false, fmt.Errorf("orchestrator: launch team: %w", err)
	}
	log.Info("team launched", "workers", len(o.team))

	return o.monitor(ctx, sup, round, log)
}

// verify runs the auditor for one round. Auditor timeouts and ambiguous
// verdicts already pass inside the verifier; a hard backend error passes
// too, with a warning, because verification is a safety net and must not
// strand a converged team. Cancellation is the exception.
func (o *Orchestrator) verify(ctx context.Context, log *logging.Logger) (verification.Result, error) {
	v := verification.New(o.client, o.ws, verification.Config{
		Model:   o.cfg.Runtime.AuditorModelOrDefault(),
		Timeout: o.cfg.Verification.Timeout(),
	}, verification.WithClock(o.clock), verification.WithLogger(o.log))

	result, err := v.Verify(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		log.Warn("verification errored, treating as pass", "error", err)
		return verification.Result{Passed: true}, nil
	}
	return result, nil
}

// writeHandoff produces HANDOFF.md and shows a preview. Failure is
// logged and swallowed; a missing handoff never fails a passed run.
func (o *Orchestrator) writeHandoff(ctx context.Context) {
	v := verification.New(o.client, o.ws, verification.Config{
		Model:   o.cfg.Runtime.AuditorModelOrDefault(),
		Timeout: o.cfg.Verification.Timeout(),
	}, verification.WithClock(o.clock), verification.WithLogger(o.log))

	content, err := v.Handoff(ctx, o.userPrompt)
	if err != nil {
		o.log.Warn("handoff generation failed", "error", err)
		return
	}
	o.con.Panel("📋 HANDOFF", console.Truncate(content, handoffDisplayRunes))
}

// rollover archives the conversation and clears the status map for the
// next round. The decisions tracker survives untouched.
func (o *Orchestrator) rollover(round int, log *logging.Logger) error {
	archived, err := o.ws.ArchiveConversation(round)
	if err != nil {
		return fmt.Errorf("orchestrator: archive round %d: %w", round, err)
	}
	if err := o.ws.ClearStatuses(); err != nil {
		return fmt.Errorf("orchestrator: clear statuses: %w", err)
	}
	log.Info("round archived", "archive", archived)
	return nil
}

// summarize runs one auxiliary query describing what the stalled team
// needs from the human.
func (o *Orchestrator) summarize(ctx context.Context, tail string) (string, error) {
	sess, err := o.client.OpenSession(ctx, runtime.SessionConfig{
		Model:            o.cfg.Runtime.AuditorModelOrDefault(),
		WorkingDirectory: o.ws.Root(),
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = sess.Destroy() }()

	prompt := fmt.Sprintf(`An autonomous worker team has stalled. Read their recent conversation and state, in at most four short bullet lines, what they need from the human to get moving again.

Recent conversation:
%s

Reply with the bullet lines only.`, tail)

	reply, err := runtime.Collect(ctx, o.clock, sess, prompt, summaryTimeout)
	if err != nil && !errors.Is(err, runtime.ErrResponseTimeout) {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// finish stamps the end time, persists metrics, and prints the summary.
func (o *Orchestrator) finish() {
	o.recorder.End()
	if n, err := o.ws.MessageCount(); err == nil {
		o.recorder.SetTotalMessages(n)
	}
	if err := o.recorder.Save(o.ws.MetricsPath()); err != nil {
		o.log.Warn("failed to persist metrics", "error", err)
	}
	o.con.Summary(o.recorder.Snapshot(), o.cfg.Verification.MaxRounds > 0)
}

// sleep waits d on the shared clock, returning early on cancellation.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-o.clock.After(d):
	}
}

func (o *Orchestrator) publish(ev event.Event) {
	o.bus.Publish(ev)
}

// autoAbort resolves escalations by aborting. It serves runs with no
// human channel wired, where waiting for guidance would hang forever.
type autoAbort struct{ log *logging.Logger }

func (a autoAbort) Escalate(_ context.Context, esc stall.Escalation) (stall.Resolution, error) {
	a.log.Warn("no human channel attached, aborting at escalation", "reason", esc.Reason)
	return stall.Resolution{Abort: true}, nil
}
