package assembly

import (
	"fmt"
	"strings"

	"github.com/mandali-ai/mandali/internal/roster"
)

// expertiseHeading is the persona-prompt section every synthesized
// candidate is generated with. Election and merging fold these sections
// across workers.
const expertiseHeading = "## Domain Expertise"

// expertiseSection returns the body of the prompt's domain-expertise
// section, or the whole prompt when the heading is missing.
func expertiseSection(prompt string) string {
	idx := strings.Index(prompt, expertiseHeading)
	if idx < 0 {
		return strings.TrimSpace(prompt)
	}
	body := prompt[idx+len(expertiseHeading):]
	if end := strings.Index(body, "\n## "); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// electScopeKeeper keeps exactly one Scope-keeper among the synthesized
// survivors. The primary domain's candidate wins, otherwise the first in
// roster order. Losers are discarded, but their expertise is folded into
// the winner so no domain loses its scope perspective.
func electScopeKeeper(workers []roster.Worker, domains []string) []roster.Worker {
	var keepers []int
	for i, w := range workers {
		if w.Role == roster.RoleScopeKeeper {
			keepers = append(keepers, i)
		}
	}
	if len(keepers) <= 1 {
		return workers
	}

	primary := ""
	if len(domains) > 0 {
		primary = domains[0]
	}
	winner := keepers[0]
	for _, i := range keepers {
		if strings.EqualFold(workers[i].Domain, primary) {
			winner = i
			break
		}
	}

	var appendix strings.Builder
	losers := make(map[int]bool, len(keepers)-1)
	for _, i := range keepers {
		if i == winner {
			continue
		}
		losers[i] = true
		fmt.Fprintf(&appendix, "\n### %s\n%s\n", workers[i].Domain, expertiseSection(workers[i].Prompt))
	}

	elected := workers[winner]
	elected.Prompt += "\n\n## Cross-Domain Awareness\nYou are the only scope keeper on this team. Watch these domains too:\n" + appendix.String()

	out := make([]roster.Worker, 0, len(workers)-len(losers))
	for i, w := range workers {
		if losers[i] {
			continue
		}
		if i == winner {
			w = elected
		}
		out = append(out, w)
	}
	return out
}

// enforceCap trims the synthesized roster down to the given size by
// repeatedly dropping the Critic furthest from the primary domain. Doers
// and the elected Scope-keeper are never dropped; if only those remain
// the roster stays over the limit.
func enforceCap(workers []roster.Worker, domains []string, limit int) []roster.Worker {
	if limit <= 0 {
		return workers
	}
	for len(workers) > limit {
		victim := -1
		for i, w := range workers {
			if w.Role != roster.RoleCritic {
				continue
			}
			if victim < 0 || domainIndex(domains, w.Domain) >= domainIndex(domains, workers[victim].Domain) {
				victim = i
			}
		}
		if victim < 0 {
			break
		}
		workers = append(workers[:victim], workers[victim+1:]...)
	}
	return workers
}
