// Package consensus decides when the whole team has converged and
// proactively reconciles workers that are plausibly done but never
// re-declared their status.
package consensus

import (
	"github.com/mandali-ai/mandali/internal/workspace"
)

// AllSatisfied reports whether every expected worker has declared exactly
// SATISFIED. The check is value equality on the status kind; "WORKING",
// "UNSATISFIED" or any other text never matches. Status map entries for
// ids outside the expected roster are ignored: stale entries from a prior
// roster must not influence convergence.
func AllSatisfied(statuses map[string]workspace.Status, expectedIDs []string) bool {
	if len(expectedIDs) == 0 {
		return false
	}
	for _, id := range expectedIDs {
		st, ok := statuses[id]
		if !ok || st.Kind != workspace.StatusSatisfied {
			return false
		}
	}
	return true
}

// AnyBlocked reports whether any expected worker has declared BLOCKED.
func AnyBlocked(statuses map[string]workspace.Status, expectedIDs []string) bool {
	for _, id := range expectedIDs {
		if st, ok := statuses[id]; ok && st.Kind == workspace.StatusBlocked {
			return true
		}
	}
	return false
}
