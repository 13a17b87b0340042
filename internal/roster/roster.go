// Package roster defines worker identities and assembles the team that a
// run launches: either the built-in default software team or a bespoke
// roster synthesized for the task's domains.
package roster

import (
	"fmt"
	"strings"
)

// Role describes a worker's responsibility within the team. It is a
// closed set: pipeline logic matches on the role value, never on worker
// names.
type Role string

const (
	// RoleDoer indicates a worker that produces the deliverable.
	RoleDoer Role = "doer"

	// RoleCritic indicates a worker that reviews and challenges the
	// doers' output.
	RoleCritic Role = "critic"

	// RoleScopeKeeper indicates the worker responsible for cross-domain
	// coherence and scope discipline. Exactly one survives team assembly.
	RoleScopeKeeper Role = "scope-keeper"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if this is a recognized role value.
func (r Role) IsValid() bool {
	switch r {
	case RoleDoer, RoleCritic, RoleScopeKeeper:
		return true
	default:
		return false
	}
}

// ParseRole maps a configuration string to a Role, tolerating common
// spelling variants.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "doer", "do":
		return RoleDoer, nil
	case "critic", "reviewer":
		return RoleCritic, nil
	case "scope-keeper", "scopekeeper", "scope_keeper", "scope keeper":
		return RoleScopeKeeper, nil
	default:
		return "", fmt.Errorf("roster: unknown role %q", s)
	}
}

// Worker is one member of the team roster. Identity persists across a
// crash and relaunch; the runtime session a worker runs on does not.
type Worker struct {
	// ID is the stable identifier used in the status map and as the
	// conversation sender tag.
	ID string

	// Name is the display handle ("Dev", "PM").
	Name string

	// Role is the worker's responsibility within the team.
	Role Role

	// Domain is an opaque subject-matter key. Default workers carry
	// "software"; synthesized workers carry the domain they were
	// generated for. Used for addressing and assembly bookkeeping only.
	Domain string

	// Prompt is the persona system prompt the worker's session is opened
	// with.
	Prompt string

	// Synthesized is true for workers produced by team assembly. Default
	// workers are never dropped or merged by the assembly pipeline.
	Synthesized bool
}

// Mention returns the conversation handle for the worker ("@Dev").
func (w Worker) Mention() string {
	if w.Name != "" {
		return "@" + w.Name
	}
	return "@" + strings.ToUpper(w.ID)
}

// IDs returns the worker ids of a roster in roster order.
func IDs(workers []Worker) []string {
	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.ID
	}
	return ids
}

// Mentions returns the conversation handles of a roster, joined for use
// in prompts ("@Dev, @Security, @PM").
func Mentions(workers []Worker) string {
	parts := make([]string, len(workers))
	for i, w := range workers {
		parts[i] = w.Mention()
	}
	return strings.Join(parts, ", ")
}

// FindByID returns the worker with the given id and whether it exists.
func FindByID(workers []Worker, id string) (Worker, bool) {
	for _, w := range workers {
		if w.ID == id {
			return w, true
		}
	}
	return Worker{}, false
}

// LeadID returns the id of the team lead: the first roster position. The
// lead is recomputed from the original roster order when a crashed worker
// is relaunched, so relaunching never promotes a different lead.
func LeadID(workers []Worker) string {
	if len(workers) == 0 {
		return ""
	}
	return workers[0].ID
}
