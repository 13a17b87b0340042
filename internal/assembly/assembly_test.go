package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mandali-ai/mandali/internal/roster"
	"github.com/mandali-ai/mandali/internal/runtime/runtimetest"
)

// promptLog records every prompt across all sessions. Generation queries
// run concurrently, so recording must be locked.
type promptLog struct {
	mu      sync.Mutex
	prompts []string
}

func (l *promptLog) add(p string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, p)
}

func (l *promptLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

// scriptClient wires a prompt-keyed respond function into every session
// the assembler opens.
func scriptClient(respond func(prompt string) string) (*runtimetest.FakeClient, *promptLog) {
	log := &promptLog{}
	client := runtimetest.NewFakeClient()
	client.OnOpen = func(s *runtimetest.FakeSession) {
		s.Respond(func(prompt string) (string, bool) {
			log.add(prompt)
			return respond(prompt), true
		})
	}
	return client, log
}

// genDomain pulls the domain out of a generation prompt, tolerating both
// the normal and the strict retry phrasing.
func genDomain(prompt string) string {
	if i := strings.Index(prompt, `covering the "`); i >= 0 {
		rest := prompt[i+len(`covering the "`):]
		if j := strings.Index(rest, `"`); j >= 0 {
			return rest[:j]
		}
	}
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, "Domain: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// genRole pulls the role out of a generation prompt.
func genRole(prompt string) roster.Role {
	for _, line := range strings.Split(prompt, "\n") {
		rest, ok := strings.CutPrefix(line, "Role: ")
		if !ok {
			continue
		}
		if i := strings.IndexAny(rest, " ("); i >= 0 {
			rest = rest[:i]
		}
		return roster.Role(rest)
	}
	return ""
}

// personaReply builds a valid worker generation reply for the domain and
// role a prompt asked about.
func personaReply(t *testing.T, domain string, role roster.Role) string {
	t.Helper()
	w := synthesized(candidateID(domain, role), domain, role)
	payload, err := json.Marshal(map[string]string{
		"name":   defaultCandidateName(domain, role),
		"prompt": w.Prompt,
	})
	if err != nil {
		t.Fatalf("marshal persona: %v", err)
	}
	return "<worker>\n" + string(payload) + "\n</worker>"
}

// allKeepReply builds a dedup verdict list keeping every listed id.
func allKeepReply(workerIDs []string) string {
	var b strings.Builder
	b.WriteString(`<dedup>{"verdicts": [`)
	for i, id := range workerIDs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `{"id": %q, "action": "keep"}`, id)
	}
	b.WriteString(`]}</dedup>`)
	return b.String()
}

func twoDomainIDs() []string {
	var out []string
	for _, domain := range []string{"beekeeping", "marketing"} {
		for _, role := range []roster.Role{roster.RoleDoer, roster.RoleCritic, roster.RoleScopeKeeper} {
			out = append(out, candidateID(domain, role))
		}
	}
	return out
}

func TestAssembleSoftwareTaskKeepsDefaults(t *testing.T) {
	client, _ := scriptClient(func(string) string {
		return `<classification>{"task_type": "software", "domains": []}</classification>`
	})
	a := newTestAssembler(t, client)
	defaults := roster.DefaultTeam()

	out, err := a.Assemble(context.Background(), "build a REST API", defaults)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if got := ids(out); got != strings.Join(roster.DefaultIDs(), ",") {
		t.Errorf("roster = %s, want the default team", got)
	}
	if got := client.SessionCount(); got != 1 {
		t.Errorf("session count = %d, want 1 (classification only)", got)
	}
}

func TestAssembleNonSoftwareBuildsBespokeRoster(t *testing.T) {
	allKeep := allKeepReply(twoDomainIDs())
	client, log := scriptClient(func(prompt string) string {
		switch {
		case strings.Contains(prompt, "Classify the task"):
			return `<classification>{"task_type": "non_software", "domains": ["beekeeping", "marketing"]}</classification>`
		case strings.Contains(prompt, "Synthesized candidates to judge:"):
			return allKeep
		default:
			return personaReply(t, genDomain(prompt), genRole(prompt))
		}
	})
	a := newTestAssembler(t, client)

	out, err := a.Assemble(context.Background(), "start a honey business", roster.DefaultTeam())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	want := "beekeeping-doer,beekeeping-critic,beekeeping-scope-keeper,marketing-doer,marketing-critic"
	if got := ids(out); got != want {
		t.Fatalf("roster = %s\nwant %s", got, want)
	}
	var keepers int
	for _, w := range out {
		if !w.Synthesized {
			t.Errorf("%s: default worker in a non-software roster", w.ID)
		}
		if w.Role == roster.RoleScopeKeeper {
			keepers++
		}
	}
	if keepers != 1 {
		t.Errorf("scope-keeper count = %d, want exactly 1", keepers)
	}

	winner, _ := roster.FindByID(out, "beekeeping-scope-keeper")
	if !strings.Contains(winner.Prompt, "### marketing") {
		t.Errorf("elected Scope-keeper missing the folded marketing expertise")
	}

	// 1 classification + 6 generations + 1 dedup, no retries.
	if got := log.count(); got != 8 {
		t.Errorf("query count = %d, want 8", got)
	}
	for i, s := range client.Sessions() {
		if !s.Destroyed() {
			t.Errorf("session %d left open after assembly", i)
		}
	}
}

func TestAssembleMixedAppendsToDefaults(t *testing.T) {
	client, _ := scriptClient(func(prompt string) string {
		switch {
		case strings.Contains(prompt, "Classify the task"):
			return `<classification>{"task_type": "mixed", "domains": ["law"]}</classification>`
		case strings.Contains(prompt, "Synthesized candidates to judge:"):
			return allKeepReply([]string{"law-doer", "law-critic", "law-scope-keeper"})
		default:
			return personaReply(t, genDomain(prompt), genRole(prompt))
		}
	})
	a := newTestAssembler(t, client)
	defaults := roster.DefaultTeam()

	out, err := a.Assemble(context.Background(), "build a contract review tool", defaults)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	want := strings.Join(roster.DefaultIDs(), ",") + ",law-doer,law-critic,law-scope-keeper"
	if got := ids(out); got != want {
		t.Fatalf("roster = %s\nwant %s", got, want)
	}
	for i, d := range defaults {
		if out[i].Prompt != d.Prompt {
			t.Errorf("%s: default prompt rewritten by assembly", d.ID)
		}
	}
}

func TestAssembleDoerFailureDropsWholeDomain(t *testing.T) {
	allKeep := allKeepReply(twoDomainIDs())
	client, _ := scriptClient(func(prompt string) string {
		switch {
		case strings.Contains(prompt, "Classify the task"):
			return `<classification>{"task_type": "non_software", "domains": ["beekeeping", "marketing"]}</classification>`
		case strings.Contains(prompt, "Synthesized candidates to judge:"):
			return allKeep
		default:
			if genDomain(prompt) == "beekeeping" && genRole(prompt) == roster.RoleDoer {
				return "I cannot write that persona."
			}
			return personaReply(t, genDomain(prompt), genRole(prompt))
		}
	})
	a := newTestAssembler(t, client)

	out, err := a.Assemble(context.Background(), "start a honey business", roster.DefaultTeam())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	want := "marketing-doer,marketing-critic,marketing-scope-keeper"
	if got := ids(out); got != want {
		t.Errorf("roster = %s, want %s (beekeeping dropped with its Doer)", got, want)
	}
}

func TestAssembleCapTrimsCritics(t *testing.T) {
	allKeep := allKeepReply(twoDomainIDs())
	client, _ := scriptClient(func(prompt string) string {
		switch {
		case strings.Contains(prompt, "Classify the task"):
			return `<classification>{"task_type": "non_software", "domains": ["beekeeping", "marketing"]}</classification>`
		case strings.Contains(prompt, "Synthesized candidates to judge:"):
			return allKeep
		default:
			return personaReply(t, genDomain(prompt), genRole(prompt))
		}
	})
	a := New(client, Config{
		Model:            "test-model",
		Cap:              4,
		Timeout:          time.Second,
		WorkingDirectory: t.TempDir(),
	})

	out, err := a.Assemble(context.Background(), "start a honey business", roster.DefaultTeam())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	want := "beekeeping-doer,beekeeping-critic,beekeeping-scope-keeper,marketing-doer"
	if got := ids(out); got != want {
		t.Errorf("roster = %s, want %s (farthest Critic trimmed)", got, want)
	}
}

func TestAssembleEmptySynthesisFallsBackToDefaults(t *testing.T) {
	client, _ := scriptClient(func(prompt string) string {
		if strings.Contains(prompt, "Classify the task") {
			return `<classification>{"task_type": "non_software", "domains": ["beekeeping"]}</classification>`
		}
		return "no persona from me"
	})
	a := newTestAssembler(t, client)
	defaults := roster.DefaultTeam()

	out, err := a.Assemble(context.Background(), "start a honey business", defaults)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if got := ids(out); got != strings.Join(roster.DefaultIDs(), ",") {
		t.Errorf("roster = %s, want the default team as fallback", got)
	}
}

func TestAssembleBackendDownFallsBackToDefaults(t *testing.T) {
	client := runtimetest.NewFakeClient()
	client.OpenErr = errors.New("backend down")
	a := newTestAssembler(t, client)
	defaults := roster.DefaultTeam()

	out, err := a.Assemble(context.Background(), "anything at all", defaults)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got := ids(out); got != strings.Join(roster.DefaultIDs(), ",") {
		t.Errorf("roster = %s, want the default team", got)
	}
}
