package supervisor

import (
	"fmt"
	"strings"

	"github.com/mandali-ai/mandali/internal/roster"
	"github.com/mandali-ai/mandali/internal/workspace"
)

// initPrompt is the one-time orientation a worker receives when its
// session opens: where the workspace lives, what the plan is, how the
// conversation protocol works, and what its first action should be.
func initPrompt(ws *workspace.Workspace, w roster.Worker, plan, mentions string, isLead bool) string {
	firstAction := "Introduce yourself when appropriate, join the discussion"
	if isLead {
		firstAction = "Introduce yourself, then lead by reviewing the plan (you go first)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `# Workspace
Your workspace: %s
Conversation file: %s
Decisions tracker: %s
Plan file: %s

# Plan
%s

# Your Role
You are %s (%s).
You are part of an autonomous team implementing this plan.

# How to Communicate

## Reading Messages
Read %s periodically to see what the team is saying.
Check it whenever you need to look for new messages or @mentions.

## Writing Messages
Just write your response naturally. The orchestrator will append it to the conversation on your behalf.
Your message will appear as `+"`[TIME] @%s: [your message]`"+`

## Addressing Others
- Direct: mention a teammate by handle (%s)
- Everyone: "@Team" or "@AllAgents"
- Respond to "@%s" instructions (system messages)
- Respond to "@%s" messages (human guidance)

# Decision Tracking
When you make a choice that differs from the plan, or where the plan was silent and you had to decide:
- Update the decisions file: %s
- Use the template format already in that file
- This is as important as conversation. A human will read it to understand what changed and why.

# Satisfaction Status
End EVERY message with one of:
- SATISFACTION_STATUS: WORKING
- SATISFACTION_STATUS: SATISFIED
- SATISFACTION_STATUS: BLOCKED - [reason]
- SATISFACTION_STATUS: PAUSED

# Your First Action
1. Read the conversation file to see what's been said
2. %s`,
		ws.Root(),
		ws.ConversationPath(),
		ws.DecisionsPath(),
		ws.PlanPath(),
		plan,
		w.Name, w.Mention(),
		ws.ConversationPath(),
		strings.ToUpper(w.ID),
		mentions,
		workspace.OrchestratorSender,
		workspace.HumanSender,
		ws.DecisionsPath(),
		firstAction,
	)
	return b.String()
}

// checkPrompt is the recurring poll prompt: look at the conversation,
// speak only if needed, and always declare status.
func checkPrompt(ws *workspace.Workspace, mentions string) string {
	return fmt.Sprintf(`Check the conversation file for new messages and decide if you should respond.

Read: %s

Then:
1. If you are @mentioned or the topic is in your domain, respond
2. If you have concerns or input, respond
3. If nothing requires your input, output exactly: %s

Remember:
- Address others with @mentions (%s, @Team)
- End every response with SATISFACTION_STATUS`,
		ws.ConversationPath(), NoResponseSentinel, mentions)
}
