// Package workspace manages the shared on-disk workspace that workers and
// the orchestrator communicate through. Nothing in the system talks to
// anything else directly: every message, status declaration, and control
// signal flows through the files owned by this package.
//
// # Layout
//
// A workspace is rooted at the run's output directory:
//
//	<root>/mandali-artifacts/conversation.txt      append-only conversation log
//	<root>/mandali-artifacts/satisfaction.txt      worker-id -> status map
//	<root>/mandali-artifacts/DecisionsTracker.md   recorded plan deviations
//	<root>/mandali-artifacts/plan.md               single-file plan fallback
//	<root>/mandali-artifacts/metrics.json          run metrics
//	<root>/phases/_CONTEXT.md                      global plan context
//	<root>/phases/_INDEX.md                        phase tracking table
//	<root>/phases/phase-NN-*.md                    per-phase plan files
//
// # Concurrency
//
// The conversation log is append-only: entries are written with O_APPEND
// under a store mutex so concurrent appends never interleave. The status
// map is rewritten whole on each update; the read-modify-write happens
// under the same mutex so two writers cannot clobber each other's entries.
// The mutex discipline lives here and only here; callers never coordinate
// file access themselves.
package workspace
