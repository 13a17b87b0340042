package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mandali-ai/mandali/internal/consensus"
	"github.com/mandali-ai/mandali/internal/event"
	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/roster"
	"github.com/mandali-ai/mandali/internal/stall"
	"github.com/mandali-ai/mandali/internal/supervisor"
	"github.com/mandali-ai/mandali/internal/workspace"
)

// monitor is the passive supervision loop for one round. Each tick it
// checks consensus, recovers crashed workers, drives the stall
// controller and the reconciler, refreshes the status display, and
// enforces the decision-tracking discipline. It returns true on team
// consensus and false on human abort.
func (o *Orchestrator) monitor(ctx context.Context, sup *supervisor.Supervisor, round int, log *logging.Logger) (bool, error) {
	verifying := o.cfg.Verification.MaxRounds > 0
	expected := roster.IDs(o.team)

	stallCtl := stall.NewController(o.ws, o.escalator, stall.Config{
		StallTimeout: o.cfg.Stall.Timeout(),
		MaxNudges:    o.cfg.Stall.MaxNudges,
		Grace:        o.cfg.Stall.Grace(),
	}, stall.WithClock(o.clock), stall.WithLogger(o.log), stall.WithBus(o.bus), stall.WithSummarizer(o.summarize))

	recon := consensus.NewReconciler(o.ws, consensus.Config{
		Cooldown:   o.cfg.Reconcile.Cooldown(),
		MinRuntime: o.cfg.Reconcile.MinRuntime(),
		// A team silent for two stall windows is the stall controller's
		// problem, not a reconciliation candidate.
		RecentActivityWindow: 2 * o.cfg.Stall.Timeout(),
	}, consensus.WithClock(o.clock), consensus.WithLogger(o.log))

	decisions := newDecisionsNudge(o.ws)
	lastDisplay := o.clock.Now()
	shownMessages := 0

	o.con.Panel("📡 MONITORING", "Type a message to interject, Ctrl+C to abort")

	for {
		if err := o.waitTick(ctx); err != nil {
			return false, err
		}

		statuses, err := o.ws.Statuses()
		if err != nil {
			return false, fmt.Errorf("orchestrator: read statuses: %w", err)
		}

		if consensus.AllSatisfied(statuses, expected) {
			log.Info("team consensus reached")
			o.publish(event.NewConsensusReachedEvent(round, !verifying))
			// Announce while the workers are still alive so they see the
			// terminal token, or the verification heads-up, before teardown.
			if verifying {
				if err := o.announceProceeding(statuses); err != nil {
					return false, err
				}
			} else {
				o.announceVictory(round)
			}
			o.sleep(ctx, victoryGrace)
			return true, nil
		}

		sup.Recover(ctx)

		abort, err := stallCtl.Tick(ctx, statuses)
		if err != nil {
			return false, err
		}
		if abort {
			o.publish(event.NewAbortEvent("human abort at escalation"))
			return false, nil
		}

		if err := recon.Tick(ctx, probers(sup)); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			log.Warn("reconciliation tick failed", "error", err)
		}

		if now := o.clock.Now(); now.Sub(lastDisplay) >= o.cfg.Supervision.DisplayInterval() {
			lastDisplay = now
			shownMessages = o.showStatus(now, statuses, shownMessages)
		}

		if err := decisions.tick(o); err != nil {
			log.Warn("decision tracking check failed", "error", err)
		}
	}
}

// waitTick sleeps one poll interval while relaying operator input lines
// to the team as they arrive.
func (o *Orchestrator) waitTick(ctx context.Context) error {
	timer := o.clock.After(o.cfg.Supervision.PollInterval())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-o.interjections():
			if !ok {
				// Operator input hit EOF; stop selecting on it.
				o.lines = nil
				continue
			}
			o.relayInterjection(line)
		case <-timer:
			return nil
		}
	}
}

// interjections returns the operator line channel, or nil (blocking
// forever in select) when no input stream is attached.
func (o *Orchestrator) interjections() <-chan string {
	if o.lines == nil {
		return nil
	}
	return o.lines.Lines()
}

// relayInterjection posts one operator line to the conversation. The
// append itself re-arms the stall window and forgives outstanding
// nudges.
func (o *Orchestrator) relayInterjection(line string) {
	text := strings.TrimSpace(line)
	if text == "" {
		return
	}
	msg := fmt.Sprintf("@AllAgents - Human says:\n\n%s", text)
	if err := o.ws.Append(workspace.HumanSender, msg); err != nil {
		o.log.Warn("failed to relay operator message", "error", err)
		return
	}
	o.log.Info("operator message relayed")
	o.con.Println("Message relayed to the team.")
}

// showStatus prints the heartbeat line plus previews of messages that
// arrived since the previous display, and returns the new shown count.
func (o *Orchestrator) showStatus(now time.Time, statuses map[string]workspace.Status, shown int) int {
	conversation, err := o.ws.Conversation()
	if err != nil {
		return shown
	}
	msgs := workspace.ParseMessages(conversation)
	var recent []workspace.Message
	if shown < len(msgs) {
		recent = msgs[shown:]
	}
	o.con.StatusUpdate(now, statuses, workspace.CountMessages(conversation), recent)
	return len(msgs)
}

// probers adapts the supervisor's handles to the reconciler interface.
func probers(sup *supervisor.Supervisor) []consensus.Prober {
	handles := sup.Handles()
	out := make([]consensus.Prober, len(handles))
	for i, h := range handles {
		out[i] = h
	}
	return out
}

// phaseCompletePattern finds scope-keeper phase-completion
// announcements in new transcript content.
var phaseCompletePattern = regexp.MustCompile(`(?s)\[[\d:]+\]\s+@PM:.*?Phase\s+\d+\S*\s+[Cc]omplete`)

// decisionsNudge watches for phase completions and checks whether the
// decisions tracker moved since the last completed phase. A scope keeper
// that announces completion without recording deviations gets reminded.
type decisionsNudge struct {
	ws     *workspace.Workspace
	offset int
	mtime  time.Time
}

func newDecisionsNudge(ws *workspace.Workspace) *decisionsNudge {
	return &decisionsNudge{ws: ws, mtime: ws.DecisionsModTime()}
}

// tick scans transcript content added since the last scan. On detected
// phase completions it nudges the scope keeper if the tracker is stale,
// and re-anchors the team on the original user intent.
func (d *decisionsNudge) tick(o *Orchestrator) error {
	conversation, err := d.ws.Conversation()
	if err != nil {
		return err
	}
	if d.offset >= len(conversation) {
		return nil
	}
	completions := phaseCompletePattern.FindAllString(conversation[d.offset:], -1)
	if len(completions) == 0 {
		return nil
	}
	d.offset = len(conversation)

	if current := d.ws.DecisionsModTime(); current.Equal(d.mtime) {
		if err := o.nudgeDecisions(len(completions)); err != nil {
			return err
		}
	} else {
		d.mtime = current
	}
	return o.reinforceIntent()
}

// nudgeDecisions reminds the scope keeper to record deviations for the
// phases that just completed.
func (o *Orchestrator) nudgeDecisions(completed int) error {
	phases := "a phase"
	if completed > 1 {
		phases = fmt.Sprintf("%d phases", completed)
	}
	msg := fmt.Sprintf(`@PM - Completion of %s detected but DecisionsTracker.md has not been updated.

Before proceeding, verify whether any deviations from the plan occurred during the completed phase(s).
If choices were made that differ from the plan or where the plan was silent, record them in:
%s

If no deviations occurred, acknowledge this and proceed.`, phases, o.ws.DecisionsPath())

	if err := o.ws.Append(workspace.OrchestratorSender, msg); err != nil {
		return err
	}
	o.log.Info("nudged scope keeper to check the decisions tracker", "completions", completed)
	return nil
}

// reinforceIntent re-anchors the team on the operator's original task at
// each phase transition. Runs without a user prompt skip it.
func (o *Orchestrator) reinforceIntent() error {
	intent := strings.TrimSpace(o.userPrompt)
	if intent == "" {
		return nil
	}
	msg := fmt.Sprintf(`@Team - Phase transition checkpoint. Re-anchor on the original intent:

> %s

Before starting the next phase:
1. Does what we've built so far still serve this intent? Are we drifting?
2. Have you made assumptions about things the user didn't specify? (e.g., visual style, data format, defaults, error behavior) Record them in DecisionsTracker.md if not already done.
3. Are there implicit expectations for this type of application that we haven't addressed yet?`, intent)

	return o.ws.Append(workspace.OrchestratorSender, msg)
}
