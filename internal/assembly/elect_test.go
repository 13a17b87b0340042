package assembly

import (
	"strings"
	"testing"

	"github.com/mandali-ai/mandali/internal/roster"
)

func TestExpertiseSection(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{
			name:   "section followed by another heading",
			prompt: "# Who\n\n## Domain Expertise\nBees and hives.\n\n## You are satisfied when\nHoney flows.",
			want:   "Bees and hives.",
		},
		{
			name:   "section at end of prompt",
			prompt: "# Who\n\n## Domain Expertise\nBees.\nHives too.",
			want:   "Bees.\nHives too.",
		},
		{
			name:   "heading missing",
			prompt: "  Just one line of persona.  ",
			want:   "Just one line of persona.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expertiseSection(tt.prompt); got != tt.want {
				t.Errorf("expertiseSection() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestElectScopeKeeperPrimaryDomainWins(t *testing.T) {
	workers := []roster.Worker{
		synthesized("beekeeping-doer", "beekeeping", roster.RoleDoer),
		synthesized("beekeeping-scope-keeper", "beekeeping", roster.RoleScopeKeeper),
		synthesized("marketing-doer", "marketing", roster.RoleDoer),
		synthesized("marketing-scope-keeper", "marketing", roster.RoleScopeKeeper),
	}

	out := electScopeKeeper(workers, []string{"beekeeping", "marketing"})

	if got := ids(out); got != "beekeeping-doer,beekeeping-scope-keeper,marketing-doer" {
		t.Fatalf("survivors = %s", got)
	}
	winner, _ := roster.FindByID(out, "beekeeping-scope-keeper")
	if !strings.Contains(winner.Prompt, "## Cross-Domain Awareness") {
		t.Errorf("winner prompt missing the cross-domain appendix:\n%s", winner.Prompt)
	}
	if !strings.Contains(winner.Prompt, "### marketing") {
		t.Errorf("winner prompt missing the loser's domain heading")
	}
	if !strings.Contains(winner.Prompt, "Deep knowledge of marketing.") {
		t.Errorf("winner prompt missing the loser's expertise body")
	}
}

func TestElectScopeKeeperFallsBackToFirst(t *testing.T) {
	workers := []roster.Worker{
		synthesized("law-scope-keeper", "law", roster.RoleScopeKeeper),
		synthesized("tax-scope-keeper", "tax", roster.RoleScopeKeeper),
	}

	// The primary domain has no Scope-keeper candidate of its own.
	out := electScopeKeeper(workers, []string{"accounting", "law", "tax"})

	if got := ids(out); got != "law-scope-keeper" {
		t.Fatalf("survivors = %s, want law-scope-keeper", got)
	}
}

func TestElectScopeKeeperSingleIsUntouched(t *testing.T) {
	only := synthesized("law-scope-keeper", "law", roster.RoleScopeKeeper)
	workers := []roster.Worker{
		synthesized("law-doer", "law", roster.RoleDoer),
		only,
	}

	out := electScopeKeeper(workers, []string{"law"})

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[1].Prompt != only.Prompt {
		t.Errorf("sole Scope-keeper prompt changed without an election")
	}
}

func TestEnforceCapDropsFarthestCriticsFirst(t *testing.T) {
	domains := []string{"law", "tax", "accounting"}
	workers := []roster.Worker{
		synthesized("law-doer", "law", roster.RoleDoer),
		synthesized("law-critic", "law", roster.RoleCritic),
		synthesized("law-scope-keeper", "law", roster.RoleScopeKeeper),
		synthesized("tax-doer", "tax", roster.RoleDoer),
		synthesized("tax-critic", "tax", roster.RoleCritic),
		synthesized("accounting-doer", "accounting", roster.RoleDoer),
		synthesized("accounting-critic", "accounting", roster.RoleCritic),
	}

	out := enforceCap(workers, domains, 5)

	if got := ids(out); got != "law-doer,law-critic,law-scope-keeper,tax-doer,accounting-doer" {
		t.Fatalf("survivors = %s", got)
	}
}

func TestEnforceCapNeverDropsDoersOrScopeKeeper(t *testing.T) {
	domains := []string{"law", "tax"}
	workers := []roster.Worker{
		synthesized("law-doer", "law", roster.RoleDoer),
		synthesized("law-scope-keeper", "law", roster.RoleScopeKeeper),
		synthesized("tax-doer", "tax", roster.RoleDoer),
	}

	out := enforceCap(workers, domains, 1)

	if len(out) != 3 {
		t.Errorf("len = %d, want 3 (no Critics to drop, roster stays over the limit)", len(out))
	}
}

func TestEnforceCapZeroMeansUnlimited(t *testing.T) {
	workers := []roster.Worker{
		synthesized("law-doer", "law", roster.RoleDoer),
		synthesized("law-critic", "law", roster.RoleCritic),
	}

	if out := enforceCap(workers, []string{"law"}, 0); len(out) != 2 {
		t.Errorf("len = %d, want 2", len(out))
	}
}
