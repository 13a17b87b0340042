package assembly

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mandali-ai/mandali/internal/roster"
)

// dedupPattern extracts the tagged JSON block from a dedup reply.
var dedupPattern = regexp.MustCompile(`(?s)<dedup>\s*(.*?)\s*</dedup>`)

// verdictAction is a dedup decision for one synthesized candidate.
type verdictAction string

const (
	actionKeep  verdictAction = "keep"
	actionDrop  verdictAction = "drop"
	actionMerge verdictAction = "merge"
)

// verdict is one dedup decision. Merge folds the candidate named by ID
// into the one named by With; Keep carries what must survive the fold.
type verdict struct {
	ID     string
	Action verdictAction
	With   string
	Keep   string
	Reason string
}

// dedup runs the single deduplication pass over all synthesized
// candidates. Default workers appear as context only. Any failure,
// including an unparseable reply after one strict retry, degrades to
// keeping every candidate; dedup exists to trim noise, not to gate the
// pipeline.
func (a *Assembler) dedup(ctx context.Context, task string, defaults, candidates []roster.Worker) []verdict {
	if len(candidates) < 2 {
		return nil
	}

	reply, err := a.oneShot(ctx, dedupPrompt(task, defaults, candidates))
	if err == nil {
		if verdicts, perr := parseVerdicts(reply); perr == nil {
			return verdicts
		}
	} else {
		a.log.Warn("dedup query failed", "error", err)
	}

	reply, err = a.oneShot(ctx, strictDedupPrompt(candidates))
	if err != nil {
		a.log.Warn("dedup retry failed, keeping all candidates", "error", err)
		return nil
	}
	verdicts, perr := parseVerdicts(reply)
	if perr != nil {
		a.log.Warn("dedup unparseable after retry, keeping all candidates", "error", perr)
		return nil
	}
	return verdicts
}

// parseVerdicts extracts the tagged verdict list, tolerating field-name
// variants.
func parseVerdicts(reply string) ([]verdict, error) {
	matches := dedupPattern.FindStringSubmatch(reply)
	if len(matches) < 2 {
		return nil, fmt.Errorf("no dedup block found in output (expected <dedup>JSON</dedup>)")
	}

	type flexibleVerdict struct {
		ID       string `json:"id"`
		WorkerID string `json:"worker_id"` // alternative name
		Action   string `json:"action"`
		Decision string `json:"decision"` // alternative name
		With     string `json:"with"`
		Into     string `json:"into"` // alternative name
		Keep     string `json:"keep"`
		Preserve string `json:"preserve"` // alternative name
		Reason   string `json:"reason"`
	}
	var raw struct {
		Verdicts []flexibleVerdict `json:"verdicts"`
	}
	if err := json.Unmarshal([]byte(matches[1]), &raw); err != nil {
		return nil, fmt.Errorf("parse dedup JSON: %w", err)
	}
	if len(raw.Verdicts) == 0 {
		return nil, fmt.Errorf("dedup JSON carries no verdicts")
	}

	verdicts := make([]verdict, 0, len(raw.Verdicts))
	for _, v := range raw.Verdicts {
		action := verdictAction(strings.ToLower(strings.TrimSpace(firstNonEmpty(v.Action, v.Decision))))
		switch action {
		case actionKeep, actionDrop, actionMerge:
		default:
			// Unknown action reads as keep; ambiguity never destroys a
			// candidate.
			action = actionKeep
		}
		verdicts = append(verdicts, verdict{
			ID:     strings.TrimSpace(firstNonEmpty(v.ID, v.WorkerID)),
			Action: action,
			With:   strings.TrimSpace(firstNonEmpty(v.With, v.Into)),
			Keep:   strings.TrimSpace(firstNonEmpty(v.Keep, v.Preserve)),
			Reason: strings.TrimSpace(v.Reason),
		})
	}
	return verdicts, nil
}

// applyVerdicts applies drops, then merges. Verdicts naming a default
// worker or an unknown id are ignored outright; each merge consumes
// exactly two live synthesized candidates into one.
func applyVerdicts(candidates []roster.Worker, verdicts []verdict, defaults []roster.Worker) []roster.Worker {
	defaultIDs := make(map[string]bool, len(defaults))
	for _, d := range defaults {
		defaultIDs[d.ID] = true
	}
	byID := make(map[string]int, len(candidates))
	for i, c := range candidates {
		byID[c.ID] = i
	}
	touchable := func(id string) bool {
		if id == "" || defaultIDs[id] {
			return false
		}
		_, ok := byID[id]
		return ok
	}

	gone := make(map[string]bool)
	merged := make(map[string]roster.Worker)
	consumed := make(map[string]bool)

	for _, v := range verdicts {
		if v.Action != actionDrop || !touchable(v.ID) {
			continue
		}
		gone[v.ID] = true
	}

	for _, v := range verdicts {
		if v.Action != actionMerge {
			continue
		}
		if !touchable(v.ID) || !touchable(v.With) || v.ID == v.With {
			continue
		}
		if gone[v.ID] || gone[v.With] || consumed[v.ID] || consumed[v.With] {
			// A merge takes exactly two live candidates. Anything already
			// dropped or part of an earlier merge leaves later verdicts
			// inert, which errs toward keeping.
			continue
		}
		source := candidates[byID[v.ID]]
		target := candidates[byID[v.With]]
		merged[target.ID] = mergeWorkers(source, target, v.Keep)
		consumed[source.ID], consumed[target.ID] = true, true
		gone[source.ID] = true
	}

	out := make([]roster.Worker, 0, len(candidates))
	for _, c := range candidates {
		if gone[c.ID] {
			continue
		}
		if m, ok := merged[c.ID]; ok {
			c = m
		}
		out = append(out, c)
	}
	return out
}

// mergeWorkers folds the source candidate into the target. The target
// keeps its identity; the source contributes its expertise and the
// dedup pass's must-preserve guidance.
func mergeWorkers(source, target roster.Worker, keep string) roster.Worker {
	var b strings.Builder
	b.WriteString(target.Prompt)
	fmt.Fprintf(&b, "\n\n## Merged Expertise: %s\n", source.Domain)
	b.WriteString(expertiseSection(source.Prompt))
	if keep != "" {
		fmt.Fprintf(&b, "\n\nPreserve from the merged role: %s", keep)
	}
	target.Prompt = b.String()
	return target
}

// dedupPrompt shows the whole candidate set and asks for one verdict per
// synthesized candidate.
func dedupPrompt(task string, defaults, candidates []roster.Worker) string {
	var b strings.Builder
	fmt.Fprintf(&b, `A team of autonomous AI workers is being assembled for this task:

%s

`, task)
	if len(defaults) > 0 {
		b.WriteString("Default team members (context only; NEVER drop or merge these):\n")
		for _, d := range defaults {
			fmt.Fprintf(&b, "- %s: %s, %s role\n", d.ID, d.Name, d.Role)
		}
		b.WriteString("\n")
	}
	b.WriteString("Synthesized candidates to judge:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s: %s, %s role, %q domain. %s\n",
			c.ID, c.Name, c.Role, c.Domain, promptSummary(c.Prompt))
	}
	b.WriteString(`
For each synthesized candidate decide: keep it, drop it (fully subsumed by another candidate), or merge it into another candidate (heavy overlap, but each brings something).

Respond with ONLY this tagged block:
<dedup>
{"verdicts": [
  {"id": "candidate-id", "action": "keep"},
  {"id": "candidate-id", "action": "drop", "reason": "subsumed by other-id"},
  {"id": "candidate-id", "action": "merge", "with": "other-id", "keep": "what must survive the merge"}
]}
</dedup>

When unsure, keep. Never name a default team member.`)
	return b.String()
}

func strictDedupPrompt(candidates []roster.Worker) string {
	var b strings.Builder
	b.WriteString("Your previous reply could not be parsed. Judge these candidates again:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s (%s, %q domain)\n", c.ID, c.Role, c.Domain)
	}
	b.WriteString(`
Output ONLY the tagged block below with valid JSON inside. No prose, no code fences.

<dedup>
{"verdicts": [{"id": "...", "action": "keep" | "drop" | "merge", "with": "...", "keep": "..."}]}
</dedup>`)
	return b.String()
}

// promptSummary returns the first meaningful line of a persona prompt
// for use in the dedup listing.
func promptSummary(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			return line
		}
	}
	return ""
}
