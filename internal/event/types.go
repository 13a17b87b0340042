package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "worker.launched", "nudge.sent")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Worker Lifecycle Events
// -----------------------------------------------------------------------------

// WorkerLaunchedEvent is emitted when a worker session begins execution.
type WorkerLaunchedEvent struct {
	baseEvent
	WorkerID string // Worker identifier (e.g., "dev", "qa")
	Model    string // Model id the session was opened with
	Lead     bool   // Whether this worker is the team lead
}

// NewWorkerLaunchedEvent creates a WorkerLaunchedEvent.
func NewWorkerLaunchedEvent(workerID, model string, lead bool) WorkerLaunchedEvent {
	return WorkerLaunchedEvent{
		baseEvent: newBaseEvent("worker.launched"),
		WorkerID:  workerID,
		Model:     model,
		Lead:      lead,
	}
}

// WorkerStoppedEvent is emitted when a worker's supervision loop ends.
type WorkerStoppedEvent struct {
	baseEvent
	WorkerID string // Worker identifier
	Crashed  bool   // True if the loop ended with an error
	Reason   string // Why the loop ended (e.g., "victory", "abort", error text)
}

// NewWorkerStoppedEvent creates a WorkerStoppedEvent.
func NewWorkerStoppedEvent(workerID string, crashed bool, reason string) WorkerStoppedEvent {
	return WorkerStoppedEvent{
		baseEvent: newBaseEvent("worker.stopped"),
		WorkerID:  workerID,
		Crashed:   crashed,
		Reason:    reason,
	}
}

// WorkerRelaunchedEvent is emitted when a crashed worker is restarted.
type WorkerRelaunchedEvent struct {
	baseEvent
	WorkerID string // Worker identifier
	Attempt  int    // How many times this worker has been relaunched
}

// NewWorkerRelaunchedEvent creates a WorkerRelaunchedEvent.
func NewWorkerRelaunchedEvent(workerID string, attempt int) WorkerRelaunchedEvent {
	return WorkerRelaunchedEvent{
		baseEvent: newBaseEvent("worker.relaunched"),
		WorkerID:  workerID,
		Attempt:   attempt,
	}
}

// -----------------------------------------------------------------------------
// Conversation Events
// -----------------------------------------------------------------------------

// MessagePostedEvent is emitted when a message is appended to the conversation.
type MessagePostedEvent struct {
	baseEvent
	Sender  string // Message sender (worker id, "ORCHESTRATOR", "HUMAN")
	Preview string // First meaningful line of the message body
}

// NewMessagePostedEvent creates a MessagePostedEvent.
func NewMessagePostedEvent(sender, preview string) MessagePostedEvent {
	return MessagePostedEvent{
		baseEvent: newBaseEvent("message.posted"),
		Sender:    sender,
		Preview:   preview,
	}
}

// StatusChangedEvent is emitted when a worker declares a new satisfaction
// status. Statuses are carried as strings to avoid coupling subscribers to
// the workspace package.
type StatusChangedEvent struct {
	baseEvent
	WorkerID string // Worker identifier
	Previous string // Prior recorded status (empty on first declaration)
	Current  string // New status value
	Detail   string // Extra context (e.g., a BLOCKED reason)
}

// NewStatusChangedEvent creates a StatusChangedEvent.
func NewStatusChangedEvent(workerID, previous, current, detail string) StatusChangedEvent {
	return StatusChangedEvent{
		baseEvent: newBaseEvent("status.changed"),
		WorkerID:  workerID,
		Previous:  previous,
		Current:   current,
		Detail:    detail,
	}
}

// -----------------------------------------------------------------------------
// Liveness Events
// -----------------------------------------------------------------------------

// NudgeSentEvent is emitted when the team is nudged after an inactivity window.
type NudgeSentEvent struct {
	baseEvent
	Count int // Which nudge this is (1-based)
	Max   int // Nudges allowed before escalation
}

// NewNudgeSentEvent creates a NudgeSentEvent.
func NewNudgeSentEvent(count, max int) NudgeSentEvent {
	return NudgeSentEvent{
		baseEvent: newBaseEvent("nudge.sent"),
		Count:     count,
		Max:       max,
	}
}

// EscalationRaisedEvent is emitted when the run escalates to the human.
type EscalationRaisedEvent struct {
	baseEvent
	Reason string // Why escalation happened (e.g., "nudges exhausted", "worker blocked on human")
}

// NewEscalationRaisedEvent creates an EscalationRaisedEvent.
func NewEscalationRaisedEvent(reason string) EscalationRaisedEvent {
	return EscalationRaisedEvent{
		baseEvent: newBaseEvent("escalation.raised"),
		Reason:    reason,
	}
}

// HumanGuidanceEvent is emitted when human guidance is injected into the
// conversation, either at an escalation prompt or as a mid-run interjection.
type HumanGuidanceEvent struct {
	baseEvent
	Text string // The guidance text
}

// NewHumanGuidanceEvent creates a HumanGuidanceEvent.
func NewHumanGuidanceEvent(text string) HumanGuidanceEvent {
	return HumanGuidanceEvent{
		baseEvent: newBaseEvent("human.guidance"),
		Text:      text,
	}
}

// -----------------------------------------------------------------------------
// Round Events
// -----------------------------------------------------------------------------

// RoundStartedEvent is emitted when an implementation round begins.
type RoundStartedEvent struct {
	baseEvent
	Round     int // Round number (1-based)
	MaxRounds int // Configured round limit
}

// NewRoundStartedEvent creates a RoundStartedEvent.
func NewRoundStartedEvent(round, maxRounds int) RoundStartedEvent {
	return RoundStartedEvent{
		baseEvent: newBaseEvent("round.started"),
		Round:     round,
		MaxRounds: maxRounds,
	}
}

// ConsensusReachedEvent is emitted when every worker declares satisfaction.
type ConsensusReachedEvent struct {
	baseEvent
	Round int  // Round in which consensus was reached
	Final bool // True when no verification follows (victory is immediate)
}

// NewConsensusReachedEvent creates a ConsensusReachedEvent.
func NewConsensusReachedEvent(round int, final bool) ConsensusReachedEvent {
	return ConsensusReachedEvent{
		baseEvent: newBaseEvent("consensus.reached"),
		Round:     round,
		Final:     final,
	}
}

// VerificationPassedEvent is emitted when a verification round passes.
type VerificationPassedEvent struct {
	baseEvent
	Round int // Round that passed verification
}

// NewVerificationPassedEvent creates a VerificationPassedEvent.
func NewVerificationPassedEvent(round int) VerificationPassedEvent {
	return VerificationPassedEvent{
		baseEvent: newBaseEvent("verification.passed"),
		Round:     round,
	}
}

// VerificationGapsEvent is emitted when verification finds gaps.
type VerificationGapsEvent struct {
	baseEvent
	Round    int // Round that was verified
	GapCount int // Number of gaps identified
}

// NewVerificationGapsEvent creates a VerificationGapsEvent.
func NewVerificationGapsEvent(round, gapCount int) VerificationGapsEvent {
	return VerificationGapsEvent{
		baseEvent: newBaseEvent("verification.gaps"),
		Round:     round,
		GapCount:  gapCount,
	}
}

// VictoryEvent is emitted on a verified, satisfied finish.
type VictoryEvent struct {
	baseEvent
	Rounds int // How many implementation rounds the run took
}

// NewVictoryEvent creates a VictoryEvent.
func NewVictoryEvent(rounds int) VictoryEvent {
	return VictoryEvent{
		baseEvent: newBaseEvent("run.victory"),
		Rounds:    rounds,
	}
}

// AbortEvent is emitted when the run is aborted.
type AbortEvent struct {
	baseEvent
	Reason string // Why the run was aborted (e.g., "human abort", "rounds exhausted")
}

// NewAbortEvent creates an AbortEvent.
func NewAbortEvent(reason string) AbortEvent {
	return AbortEvent{
		baseEvent: newBaseEvent("run.aborted"),
		Reason:    reason,
	}
}
