package orchestrator

import (
	"fmt"
	"strings"

	"github.com/mandali-ai/mandali/internal/console"
	"github.com/mandali-ai/mandali/internal/event"
	"github.com/mandali-ai/mandali/internal/roster"
	"github.com/mandali-ai/mandali/internal/workspace"
)

// seedKickoff posts the opening conversation message: where the plan
// lives, the context-building protocol, and the design-discussion
// protocol the team runs before touching code.
func (o *Orchestrator) seedKickoff() error {
	var planLocation string
	if o.ws.IsPhased() {
		planLocation = fmt.Sprintf(`a phased plan. Read the files in this order:
1. %s (global context, READ FIRST)
2. %s (phase index and status tracking)
3. Individual phase files in %s/phase-*.md`,
			o.ws.ContextPath(), o.ws.IndexPath(), o.ws.PhasesDir())
	} else {
		planLocation = fmt.Sprintf("the plan in `%s`", o.ws.PlanPath())
	}

	keeper := scopeKeeperMention(o.team)
	msg := fmt.Sprintf(`@AllAgents - Welcome to Mandali!

You are an autonomous team implementing %s

---

## PHASE 0A: CONTEXT BUILDING (Before Design Discussion)

Before discussing the design, each worker MUST build a complete understanding:

1. Read the plan files in the order above
2. Explore the codebase: structure, patterns, conventions
3. Use Read, Glob and Grep to explore; use the Task tool for parallel exploration of large codebases
4. Understand dependencies: what exists, what needs to be built

When ready, post: "@Team - I have reviewed the plan and codebase. Ready for design discussion."

Wait for ALL workers to confirm readiness before starting design discussion.

---

## PHASE 0B: DESIGN DISCUSSION (After All Workers Ready)

1. %s: Present the plan, clarify acceptance criteria, lead the discussion
2. Critics (%s): Raise ALL concerns NOW, not during implementation
3. Doers (%s): Propose the technical approach, identify risks, suggest phase adjustments

Rules:
- ALL workers must participate and acknowledge the plan
- The team may reorder phases, add sub-phases, or adjust scope
- %s declares design complete with: "@Team design discussion complete, begin Phase 1"

---

## Phase Workflow

After each phase is complete:
1. %s updates the phase index with the new status
2. %s verifies DecisionsTracker.md records any deviations made during the phase
3. %s announces: "@Team Phase X complete, proceeding to Phase Y"
4. If the plan says to stop after a phase, the team stops and reports to the human

---

## Communication
- Use @mentions: %s, @Team, @AllAgents
- End each message with SATISFACTION_STATUS

## Victory Condition
All workers SATISFIED = Implementation complete.

---

@AllAgents - Begin by reading the plan and exploring the codebase.
Post when you're ready for design discussion.`,
		planLocation,
		keeper,
		roleMentions(o.team, roster.RoleCritic),
		roleMentions(o.team, roster.RoleDoer),
		keeper,
		keeper, keeper, keeper,
		roster.Mentions(o.team),
	)
	return o.ws.Append(workspace.OrchestratorSender, msg)
}

// seedUserContext posts the operator's task statement as additional
// guidance alongside the plan.
func (o *Orchestrator) seedUserContext() error {
	msg := fmt.Sprintf(`@AllAgents - Additional context from user:

%s

Use this alongside the plan files to guide your work.`, strings.TrimSpace(o.userPrompt))
	return o.ws.Append(workspace.OrchestratorSender, msg)
}

// seedRelaunch posts the gap report that opens a retry round. The
// decisions tracker is preserved across rounds; only the conversation
// was archived.
func (o *Orchestrator) seedRelaunch(round, totalRounds int, gapReport string) error {
	msg := fmt.Sprintf(`@AllAgents - RELAUNCH — Round %d/%d

The previous round's implementation was verified and the following gaps were identified.
Your job is to address these gaps. DecisionsTracker.md has been preserved from previous rounds.

## Gaps to Address
%s

## Instructions
1. Read the plan files and DecisionsTracker.md for full context
2. Focus on the gaps listed above — these are the priority
3. If a gap cannot be addressed, record why in DecisionsTracker.md
4. Continue following your persona guidelines for collaboration and quality

Begin by reviewing the gaps and the codebase, then work to close them.`,
		round, totalRounds, gapReport)
	return o.ws.Append(workspace.OrchestratorSender, msg)
}

// announceRound prints the launch panel for one round.
func (o *Orchestrator) announceRound(round, totalRounds int, gapReport string) {
	label := "Round 1"
	if totalRounds > 1 {
		label = fmt.Sprintf("Round %d/%d", round, totalRounds)
	}
	body := fmt.Sprintf("Workspace: %s\nConversation: %s\nWorkers: %s",
		o.ws.Root(), o.ws.ConversationPath(), strings.Join(roster.IDs(o.team), ", "))
	if gapReport != "" {
		body += fmt.Sprintf("\nMode: Addressing %d gap(s) from verification", strings.Count(gapReport, "## Gap"))
	}
	o.con.Panel("🚀 LAUNCHING AUTONOMOUS TEAM — "+label, body)
}

// announceProceeding tells the team consensus was reached and the
// auditor is about to look at their work.
func (o *Orchestrator) announceProceeding(statuses map[string]workspace.Status) error {
	msg := fmt.Sprintf(`✅ All workers satisfied. Proceeding to verification...

Current status:
%s

The orchestrator will now verify the implementation against the plan.
Please stand by.`, console.FormatStatusLines(statuses))
	return o.ws.Append(workspace.OrchestratorSender, msg)
}

// announceVictory posts the terminal victory message and publishes the
// victory event.
func (o *Orchestrator) announceVictory(round int) {
	headline := "🎉 VICTORY! All workers satisfied."
	if o.cfg.Verification.MaxRounds > 0 {
		headline = "🎉 VICTORY! All workers satisfied. Verification passed."
	}

	statusBlock := "- (no statuses recorded)"
	if statuses, err := o.ws.Statuses(); err == nil && len(statuses) > 0 {
		statusBlock = console.FormatStatusLines(statuses)
	}

	msg := fmt.Sprintf(`%s

Implementation complete. Great teamwork!

Final status:
%s

You may now stop. Thank you.`, headline, statusBlock)
	if err := o.ws.Append(workspace.OrchestratorSender, msg); err != nil {
		o.log.Warn("failed to post victory message", "error", err)
	}
	o.publish(event.NewVictoryEvent(round))
}

// announceExhausted posts the failure message when the final round still
// has gaps.
func (o *Orchestrator) announceExhausted(totalRounds int, gapReport string) error {
	msg := fmt.Sprintf(`⚠️ Verification found gaps after %d round(s). Max retries exhausted.

Remaining gaps:
%s

Human review recommended.`, totalRounds, gapReport)
	if err := o.ws.Append(workspace.OrchestratorSender, msg); err != nil {
		return err
	}
	o.con.Panel("⚠️  VERIFICATION GAPS REMAIN", fmt.Sprintf(
		"Rounds exhausted after %d attempt(s). Remaining gaps:\n\n%s", totalRounds,
		console.Truncate(gapReport, handoffDisplayRunes)))
	return nil
}

// scopeKeeperMention names the team's scope keeper, or the whole team
// when a bespoke roster has none.
func scopeKeeperMention(team []roster.Worker) string {
	for _, w := range team {
		if w.Role == roster.RoleScopeKeeper {
			return w.Mention()
		}
	}
	return "@Team"
}

// roleMentions lists the mentions of every worker holding one role.
func roleMentions(team []roster.Worker, role roster.Role) string {
	var mentions []string
	for _, w := range team {
		if w.Role == role {
			mentions = append(mentions, w.Mention())
		}
	}
	if len(mentions) == 0 {
		return "(none on this team)"
	}
	return strings.Join(mentions, ", ")
}
