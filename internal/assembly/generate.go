package assembly

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/mandali-ai/mandali/internal/roster"
)

// workerPattern extracts the tagged JSON block from a worker generation
// reply.
var workerPattern = regexp.MustCompile(`(?s)<worker>\s*(.*?)\s*</worker>`)

// genResult is one candidate generation outcome from the fan-out.
type genResult struct {
	domainIndex int
	role        roster.Role
	worker      roster.Worker
	ok          bool
}

// generateAll fans out one generation request per (domain, role) pair
// and joins them, tolerating individual failures. A domain whose Doer
// cannot be generated even on retry contributes nothing; a failed Critic
// or Scope-keeper just goes missing. The software domain is never
// synthesized, the default roster already covers it.
func (a *Assembler) generateAll(ctx context.Context, task string, domains []string) []roster.Worker {
	roles := []roster.Role{roster.RoleDoer, roster.RoleCritic, roster.RoleScopeKeeper}

	p := pool.NewWithResults[genResult]()
	for i, domain := range domains {
		if strings.EqualFold(domain, roster.SoftwareDomain) {
			continue
		}
		for _, role := range roles {
			i, domain, role := i, domain, role
			p.Go(func() genResult {
				attempts := 1
				if role == roster.RoleDoer {
					attempts = 2
				}
				w, err := a.generateWorker(ctx, task, domain, role, attempts)
				if err != nil {
					a.log.Warn("candidate generation failed",
						"domain", domain, "role", string(role), "error", err)
					return genResult{domainIndex: i, role: role}
				}
				return genResult{domainIndex: i, role: role, worker: w, ok: true}
			})
		}
	}
	results := p.Wait()

	// A domain only counts if its Doer made it; nobody reviews or
	// scope-keeps work that cannot be produced.
	doerOK := make(map[int]bool)
	for _, r := range results {
		if r.ok && r.role == roster.RoleDoer {
			doerOK[r.domainIndex] = true
		}
	}

	var workers []roster.Worker
	for _, r := range results {
		if !r.ok || !doerOK[r.domainIndex] {
			continue
		}
		workers = append(workers, r.worker)
	}
	sortRoster(workers, domains)
	return workers
}

// generateWorker asks the runtime to write one candidate persona,
// retrying with a stricter reformatting instruction up to the attempt
// budget.
func (a *Assembler) generateWorker(ctx context.Context, task, domain string, role roster.Role, attempts int) (roster.Worker, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		prompt := generatePrompt(task, domain, role)
		if attempt > 0 {
			prompt = strictGeneratePrompt(task, domain, role)
		}
		reply, err := a.oneShot(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		w, err := parseWorker(reply, domain, role)
		if err != nil {
			lastErr = err
			continue
		}
		return w, nil
	}
	return roster.Worker{}, lastErr
}

// parseWorker extracts the tagged worker block and builds the
// synthesized roster entry.
func parseWorker(reply, domain string, role roster.Role) (roster.Worker, error) {
	matches := workerPattern.FindStringSubmatch(reply)
	if len(matches) < 2 {
		return roster.Worker{}, fmt.Errorf("no worker found in output (expected <worker>JSON</worker>)")
	}

	var raw struct {
		Name         string `json:"name"`
		Handle       string `json:"handle"` // alternative name
		Prompt       string `json:"prompt"`
		SystemPrompt string `json:"system_prompt"` // alternative name
		Persona      string `json:"persona"`       // alternative name
	}
	if err := json.Unmarshal([]byte(matches[1]), &raw); err != nil {
		return roster.Worker{}, fmt.Errorf("parse worker JSON: %w", err)
	}

	prompt := firstNonEmpty(raw.Prompt, raw.SystemPrompt, raw.Persona)
	if strings.TrimSpace(prompt) == "" {
		return roster.Worker{}, fmt.Errorf("worker JSON carries no persona prompt")
	}
	name := strings.TrimSpace(firstNonEmpty(raw.Name, raw.Handle))
	if name == "" {
		name = defaultCandidateName(domain, role)
	}

	return roster.Worker{
		ID:          candidateID(domain, role),
		Name:        name,
		Role:        role,
		Domain:      domain,
		Prompt:      strings.TrimSpace(prompt),
		Synthesized: true,
	}, nil
}

// candidateID derives a stable worker id from domain and role
// ("tax-law-critic").
func candidateID(domain string, role roster.Role) string {
	return slug(domain) + "-" + string(role)
}

// slug lowercases a domain and collapses everything non-alphanumeric
// into single dashes.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func defaultCandidateName(domain string, role roster.Role) string {
	base := camel(domain)
	switch role {
	case roster.RoleDoer:
		return base + "Specialist"
	case roster.RoleCritic:
		return base + "Reviewer"
	default:
		return base + "Scope"
	}
}

// camel turns a domain phrase into a CamelCase handle fragment
// ("tax law" -> "TaxLaw").
func camel(s string) string {
	var b strings.Builder
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		b.WriteString(strings.ToUpper(word[:1]) + word[1:])
	}
	if b.Len() == 0 {
		return "Domain"
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// roleBlurb describes a role's job inside a generation prompt.
func roleBlurb(role roster.Role) string {
	switch role {
	case roster.RoleDoer:
		return "produces the actual deliverable work in this domain"
	case roster.RoleCritic:
		return "reviews the domain work for correctness, quality, and risk; pushes back with specifics"
	default:
		return "keeps the work aligned with the task's stated scope and goals; flags scope creep and dropped requirements"
	}
}

func generatePrompt(task, domain string, role roster.Role) string {
	return fmt.Sprintf(`A team of autonomous AI workers is being assembled for this task:

%s

Write the persona for one team member covering the %q domain.
Role: %s (%s).

Respond with ONLY this tagged block:
<worker>
{"name": "ShortHandle", "prompt": "the full persona system prompt, markdown"}
</worker>

The persona prompt must be a complete system prompt in markdown containing these sections:
- a top heading naming who they are
- "## How you work"
- "## Domain Expertise" with their specific %s knowledge
- "## You are satisfied when" with concrete completion criteria

It must instruct the worker to collaborate through the shared conversation file, address teammates with @mentions, and end every message with a SATISFACTION_STATUS line.
"name" must be a short CamelCase handle usable as an @mention.`,
		task, domain, string(role), roleBlurb(role), domain)
}

func strictGeneratePrompt(task, domain string, role roster.Role) string {
	return fmt.Sprintf(`Your previous reply could not be parsed. Write the persona again.

Task: %s
Domain: %s
Role: %s (%s)

Output ONLY the tagged block below with valid JSON inside. No prose before or after, no code fences. Escape newlines inside the "prompt" string as \n.

<worker>
{"name": "ShortHandle", "prompt": "..."}
</worker>`,
		task, domain, string(role), roleBlurb(role))
}
