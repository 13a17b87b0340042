package plan

import (
	"fmt"

	"github.com/mandali-ai/mandali/internal/workspace"
)

// generatorSystemPrompt shapes the conversion session: it must create
// the phased plan as separate files, never as one reply.
const generatorSystemPrompt = `You are a plan generator that creates PHASED IMPLEMENTATION PLANS as SEPARATE FILES.

You MUST create multiple files using your file-creation tool. Do NOT put everything in one file.

## Required files

### phases/_CONTEXT.md
Global context that applies to ALL phases: problem statement, approach
(TDD, phased delivery, quality gates between phases), key architectural
decisions as a decision/choice/rationale table, security requirements,
non-negotiables, project structure, measurable success criteria, and the
validation commands appropriate to the project's toolchain.

### phases/_INDEX.md
Phase tracking table:

| Phase | File | Status | Commits | Notes |
|-------|------|--------|---------|-------|
| 1: [Name] | [phase-01-name.md](phase-01-name.md) | ⏳ Not Started | | |

plus a phase dependency diagram and a link back to _CONTEXT.md.

### phases/phase-XX-name.md (one per phase)
Status line, dependencies, one-sentence goal, overview, 3-10 specific
tasks numbered XX.1, XX.2 and so on with file paths and test
requirements per task, and a quality gate checklist ending in a commit.

## Execution
1. Create phases/_CONTEXT.md first
2. Then phases/_INDEX.md
3. Then each phase file

You MUST create at least three files: _CONTEXT.md, _INDEX.md, and one
phase file.`

// convertPrompt asks the session to restructure one flat plan.
func convertPrompt(ws *workspace.Workspace, content string) string {
	return fmt.Sprintf(`Convert the following plan into a PHASED implementation structure with SEPARATE FILES.

## Original Plan Content
%s

## Instructions
The plan above may not be in phased format. Your job is to:
1. Understand the intent and requirements from the plan
2. Restructure it into logical phases with clear dependencies
3. Preserve ALL original requirements, do not drop anything
4. Add quality gates and test requirements for each phase

The working directory is: %s
Create the files in the phases/ subfolder.

START by creating phases/_CONTEXT.md, then phases/_INDEX.md, then each phase file.`,
		content, ws.Root())
}
