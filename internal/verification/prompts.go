package verification

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mandali-ai/mandali/internal/workspace"
)

const auditorSystemPrompt = `You are a verification auditor. Your job is to compare what was planned against what was actually implemented.

# Your Task
You will receive:
1. The original plan (what the team was asked to build)
2. DecisionsTracker.md (intentional deviations recorded by the team)
3. The phase index (_INDEX.md) showing what phases the team completed

You have read access to the workspace via tools. Read actual files to verify claims.

# How to Evaluate
- Focus on outcomes, not process. Ask "Was X built?" not "Did they follow TDD?"
- Treat DecisionsTracker entries as intentional deviations. If something is recorded there with a reason, it is NOT a gap. But if the cumulative effect of the deviations is a product that no longer matches the original intent or misses a user's reasonable expectations, flag that as a gap.
- Be pragmatic. Minor polish items, style differences, and naming choices are NOT gaps.
- Value creativity. If the team achieved the goal via a different approach, that is fine.
- Only flag things where the end goal was not achieved: a feature missing, broken, or fundamentally incomplete.
- Guard against MVP bias. If the plan called for a full-featured product and what exists feels like a bare-minimum skeleton, flag it even if every phase technically passed.
- Do NOT flag items where the plan was vague or left room for interpretation.

# Output Format
If everything looks good:

VERIFICATION_RESULT: PASS

If there are genuine gaps:

VERIFICATION_RESULT: GAPS_FOUND

## Gap 1: [Short Title]
- **What the plan asked for**: [specific requirement from the plan]
- **What was implemented**: [what you found, or "Not found"]
- **Is this in DecisionsTracker?**: No
- **Severity**: [Critical / Important / Minor]

## Gap 2: ...

Keep the gap report concise. The team receives it as context for their next round, so brevity matters.`

const handoffSystemPrompt = `You are producing a HANDOFF document for the user who requested this work.

The team has finished the task. Write clear, concise instructions so the user knows how to USE what was created. This is not a technical summary for developers; it is a guide for the person who asked for the work.

Rules:
- Start with a brief summary of what was built (1-2 sentences)
- Give step-by-step instructions to get started (how to launch, open, run, or read it)
- Include any prerequisites (dependencies, environment setup)
- Highlight the key features or sections the user should know about
- Mention known limitations or next steps briefly, if any
- Adapt the tone to the task type: code gets "how to run this", analysis gets "how to read the findings", writing gets "what was produced and how to use it"
- Keep it practical. The user wants to use the output, not understand how it was built.
- Do NOT use tools. Respond with the document content only.`

// auditPrompt assembles the audit request from the workspace's planning
// artifacts. The deliverables themselves are reached through tools, not
// inlined here.
func auditPrompt(ws *workspace.Workspace) string {
	decisions := ws.DecisionsContent()
	if strings.TrimSpace(decisions) == "" {
		decisions = "(No decisions recorded)"
	}
	index := ws.IndexContent()
	if strings.TrimSpace(index) == "" {
		index = "(No phase index found)"
	}

	return fmt.Sprintf(`# Verify Implementation Against Plan

## Original Plan
%s

## DecisionsTracker (Intentional Deviations)
%s

## Phase Index
%s

## Instructions
1. Read the plan above carefully to understand what was supposed to be built.
2. Check DecisionsTracker for intentional deviations (these are NOT gaps).
3. Use your tools to explore the workspace. Read actual source files, look for implemented features.
4. Compare what was planned against what exists.
5. If DecisionsTracker is empty but the work clearly deviates from the plan (changed APIs, different approaches, added scope), flag "Empty DecisionsTracker" as a gap; decisions should have been recorded.
6. Output your verdict as VERIFICATION_RESULT: PASS or VERIFICATION_RESULT: GAPS_FOUND with details.

Focus on whether the end goal was achieved. Implementation creativity is valued; alternative approaches are fine.`,
		ws.PlanContent(), decisions, index)
}

// handoffPrompt assembles the handoff request. The plan is clipped so the
// prompt stays bounded on large plans.
func handoffPrompt(ws *workspace.Workspace, userPrompt string) string {
	if strings.TrimSpace(userPrompt) == "" {
		userPrompt = "(not recorded)"
	}
	return fmt.Sprintf(`The user's original request:
%s

The plan that was implemented:
%s

The workspace is at: %s

Write a HANDOFF.md document with instructions for the user on how to use what was created.
Focus on what the user needs to know, not how it was built.`,
		userPrompt, clip(ws.PlanContent(), handoffPlanLimit), ws.Root())
}

// clip truncates a string to at most limit bytes without splitting a
// UTF-8 sequence.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
