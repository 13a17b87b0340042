package roster

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

//go:embed personas/*.persona.md
var bundled embed.FS

// defaultOrder is the built-in software team in launch order. The first
// entry leads the design discussion.
var defaultOrder = []struct {
	id   string
	name string
	role Role
}{
	{"dev", "Dev", RoleDoer},
	{"security", "Security", RoleCritic},
	{"pm", "PM", RoleScopeKeeper},
	{"qa", "QA", RoleCritic},
	{"sre", "SRE", RoleDoer},
}

// SoftwareDomain is the domain tag carried by the default workers.
const SoftwareDomain = "software"

// DefaultTeam returns the built-in five-worker software roster with
// embedded persona prompts. The returned slice is freshly allocated;
// callers may modify it.
func DefaultTeam() []Worker {
	workers := make([]Worker, 0, len(defaultOrder))
	for _, d := range defaultOrder {
		workers = append(workers, Worker{
			ID:     d.id,
			Name:   d.name,
			Role:   d.role,
			Domain: SoftwareDomain,
			Prompt: mustBundledPrompt(d.id),
		})
	}
	return workers
}

// DefaultIDs returns the ids of the built-in roster in launch order.
func DefaultIDs() []string {
	ids := make([]string, len(defaultOrder))
	for i, d := range defaultOrder {
		ids[i] = d.id
	}
	return ids
}

// mustBundledPrompt reads an embedded persona prompt. The persona files
// are compiled in, so a read failure is a build defect, not a runtime
// condition.
func mustBundledPrompt(id string) string {
	data, err := bundled.ReadFile(path.Join("personas", id+".persona.md"))
	if err != nil {
		panic(fmt.Sprintf("roster: bundled persona %s missing: %v", id, err))
	}
	return string(data)
}

// PersonaInfo summarizes one built-in persona for the describe command.
type PersonaInfo struct {
	ID      string
	Title   string // first heading of the persona file
	Summary string // first paragraph after the heading
	Prompt  string // full persona prompt
}

// Catalog returns descriptions of every built-in persona, in launch
// order.
func Catalog() []PersonaInfo {
	infos := make([]PersonaInfo, 0, len(defaultOrder))
	for _, d := range defaultOrder {
		prompt := mustBundledPrompt(d.id)
		title, summary := describePrompt(prompt)
		infos = append(infos, PersonaInfo{
			ID:      d.id,
			Title:   title,
			Summary: summary,
			Prompt:  prompt,
		})
	}
	return infos
}

// describePrompt extracts the title heading and the first prose paragraph
// from a persona prompt.
func describePrompt(prompt string) (title, summary string) {
	lines := strings.Split(prompt, "\n")
	var para []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case title == "" && strings.HasPrefix(trimmed, "# "):
			title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		case title != "" && trimmed == "" && len(para) > 0:
			return title, strings.Join(para, " ")
		case title != "" && trimmed != "" && !strings.HasPrefix(trimmed, "#"):
			para = append(para, trimmed)
		}
	}
	return title, strings.Join(para, " ")
}
