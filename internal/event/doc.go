// Package event provides a pub-sub event bus for decoupled inter-component
// communication in Mandali.
//
// This package enables loose coupling between the orchestrator, the metrics
// recorder, and the console display by allowing them to communicate through
// events rather than direct method calls. Components can publish events
// without knowing who will receive them, and subscribe to events without
// knowing who will produce them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Worker Lifecycle:
//   - [WorkerLaunchedEvent]: Emitted when a worker session begins execution
//   - [WorkerStoppedEvent]: Emitted when a worker loop ends, cleanly or not
//   - [WorkerRelaunchedEvent]: Emitted when a crashed worker is restarted
//
// Conversation:
//   - [MessagePostedEvent]: Emitted when a message is appended to the conversation
//   - [StatusChangedEvent]: Emitted when a worker declares a new satisfaction status
//
// Liveness:
//   - [NudgeSentEvent]: Emitted when the team is nudged after inactivity
//   - [EscalationRaisedEvent]: Emitted when the run escalates to the human
//   - [HumanGuidanceEvent]: Emitted when human guidance is injected
//
// Rounds:
//   - [RoundStartedEvent]: Emitted when an implementation round begins
//   - [ConsensusReachedEvent]: Emitted when every worker declares satisfaction
//   - [VerificationPassedEvent]: Emitted when a verification round passes
//   - [VerificationGapsEvent]: Emitted when verification finds gaps
//   - [VictoryEvent]: Emitted on a verified, satisfied finish
//   - [AbortEvent]: Emitted when the run is aborted
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Multiple goroutines can publish
// and subscribe concurrently. Handlers are called synchronously and protected
// against panics - a panicking handler will not prevent other handlers from
// being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	// Subscribe to specific event types
//	bus.Subscribe("worker.launched", func(e event.Event) {
//	    launched := e.(event.WorkerLaunchedEvent)
//	    log.Printf("Worker %s launched", launched.WorkerID)
//	})
//
//	// Subscribe to all events (useful for logging)
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("Event: %s at %v", e.EventType(), e.Timestamp())
//	})
//
//	// Publish events
//	bus.Publish(event.NewWorkerLaunchedEvent("dev", "claude-sonnet-4", true))
//
//	// Unsubscribe when done
//	id := bus.Subscribe("nudge.sent", handler)
//	bus.Unsubscribe(id)
package event
