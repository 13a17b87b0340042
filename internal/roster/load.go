package roster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mandali-ai/mandali/internal/config"
)

// rosterFile is the YAML schema of a custom roster file. It replaces the
// built-in team entirely; per-persona overrides use a personas directory
// instead.
type rosterFile struct {
	Team []rosterEntry `yaml:"team"`
}

type rosterEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Role       string `yaml:"role"`
	Domain     string `yaml:"domain"`
	PromptFile string `yaml:"prompt_file"`
}

// Load builds the run's starting roster from team configuration. With a
// roster file configured, that file defines the whole team; otherwise the
// built-in roster is used, with persona prompts individually overridable
// from a personas directory.
func Load(cfg config.TeamConfig) ([]Worker, error) {
	if cfg.RosterFile != "" {
		return loadRosterFile(cfg.RosterFile)
	}

	workers := DefaultTeam()
	if cfg.PersonasDir != "" {
		if err := applyPersonaOverrides(workers, cfg.PersonasDir); err != nil {
			return nil, err
		}
	}
	return workers, nil
}

// loadRosterFile parses a custom team from YAML. Relative prompt paths
// resolve against the roster file's own directory so a roster travels
// with its prompts.
func loadRosterFile(path string) ([]Worker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}

	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("roster: parse %s: %w", path, err)
	}
	if len(rf.Team) == 0 {
		return nil, fmt.Errorf("roster: %s has no team entries", path)
	}

	baseDir := filepath.Dir(path)
	workers := make([]Worker, 0, len(rf.Team))
	seen := make(map[string]bool)
	for i, entry := range rf.Team {
		if entry.ID == "" {
			return nil, fmt.Errorf("roster: %s: entry %d has no id", path, i+1)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("roster: %s: duplicate id %q", path, entry.ID)
		}
		seen[entry.ID] = true

		role, err := ParseRole(entry.Role)
		if err != nil {
			return nil, fmt.Errorf("roster: %s: entry %q: %w", path, entry.ID, err)
		}

		prompt, err := readPromptFile(baseDir, entry.PromptFile, entry.ID)
		if err != nil {
			return nil, err
		}

		name := entry.Name
		if name == "" {
			name = capitalize(entry.ID)
		}
		domain := entry.Domain
		if domain == "" {
			domain = SoftwareDomain
		}

		workers = append(workers, Worker{
			ID:     entry.ID,
			Name:   name,
			Role:   role,
			Domain: domain,
			Prompt: prompt,
		})
	}
	return workers, nil
}

// readPromptFile loads a roster entry's prompt. An entry without a prompt
// file falls back to the bundled persona of the same id, so a roster file
// can reorder or re-role the built-ins without copying their prompts.
func readPromptFile(baseDir, promptFile, id string) (string, error) {
	if promptFile == "" {
		data, err := bundled.ReadFile("personas/" + id + ".persona.md")
		if err != nil {
			return "", fmt.Errorf("roster: entry %q has no prompt_file and no bundled persona", id)
		}
		return string(data), nil
	}

	p := promptFile
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("roster: entry %q: read prompt: %w", id, err)
	}
	return string(data), nil
}

// applyPersonaOverrides swaps in <dir>/<id>.persona.md for any worker
// whose override file exists. Workers without an override keep their
// bundled prompt.
func applyPersonaOverrides(workers []Worker, dir string) error {
	for i := range workers {
		p := filepath.Join(dir, workers[i].ID+".persona.md")
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("roster: persona override %s: %w", p, err)
		}
		workers[i].Prompt = string(data)
	}
	return nil
}

// capitalize upper-cases the first letter of an id for use as a display
// name.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
