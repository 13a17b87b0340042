package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/event"
	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/roster"
	"github.com/mandali-ai/mandali/internal/runtime"
	"github.com/mandali-ai/mandali/internal/workspace"
)

// NoResponseSentinel is what a worker outputs when the conversation needs
// nothing from it. Replies containing it are never appended.
const NoResponseSentinel = "NO_RESPONSE_NEEDED"

// controlWindowBytes is how far from the conversation tail control tokens
// (victory, abort, pause) are honored. Older occurrences are history, not
// instructions.
const controlWindowBytes = 500

// Handle is one worker's supervising task: it owns the worker's session
// exclusively and records how the task ended. All prompts on the session,
// including reconciliation probes, hold the handle's session guard.
type Handle struct {
	worker   roster.Worker
	isLead   bool
	ws       *workspace.Workspace
	cfg      Config
	clock    clockwork.Clock
	log      *logging.Logger
	bus      *event.Bus
	plan     string
	mentions string

	sessionMu sync.Mutex
	session   runtime.Session

	stateMu sync.Mutex
	done    bool
	err     error

	cancel   context.CancelFunc
	doneChan chan struct{}
}

// Worker returns the identity this handle supervises.
func (h *Handle) Worker() roster.Worker { return h.worker }

// WorkerID returns the worker id, satisfying the reconciliation prober
// contract.
func (h *Handle) WorkerID() string { return h.worker.ID }

// Done reports whether the supervising task has ended.
func (h *Handle) Done() bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.done
}

// Err returns the task's terminal error, nil for a clean exit. Only
// meaningful once Done reports true.
func (h *Handle) Err() error {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.err
}

// Crashed reports whether the task ended with a real error. Clean
// terminations and cancellations are not crashes and must never be
// relaunched.
func (h *Handle) Crashed() bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.done && h.err != nil && !errors.Is(h.err, context.Canceled)
}

// Probe sends a prompt on the worker's session outside the regular poll,
// holding the session guard so the two can never race. Used by status
// reconciliation.
func (h *Handle) Probe(ctx context.Context, prompt string) (string, error) {
	return h.prompt(ctx, prompt)
}

// finish records the terminal error and signals completion.
func (h *Handle) finish(err error) {
	h.stateMu.Lock()
	h.done = true
	h.err = err
	h.stateMu.Unlock()

	switch {
	case err == nil:
		h.publish(event.NewWorkerStoppedEvent(h.worker.ID, false, "terminated"))
	case errors.Is(err, context.Canceled):
		h.publish(event.NewWorkerStoppedEvent(h.worker.ID, false, "cancelled"))
	default:
		h.publish(event.NewWorkerStoppedEvent(h.worker.ID, true, err.Error()))
	}
	close(h.doneChan)
}

// run is the supervising task: session open, initialization exchange,
// then the poll loop. Its return value is the handle's terminal error.
func (h *Handle) run(ctx context.Context, client runtime.Client) error {
	session, err := client.OpenSession(ctx, runtime.SessionConfig{
		Model:            h.cfg.Model,
		SystemPrompt:     h.worker.Prompt,
		WorkingDirectory: h.ws.Root(),
	})
	if err != nil {
		return err
	}
	h.sessionMu.Lock()
	h.session = session
	h.sessionMu.Unlock()

	if err := h.initialize(ctx); err != nil {
		return err
	}
	return h.pollLoop(ctx)
}

// initialize sends the initialization prompt and records a non-empty
// reply as the worker's introduction. A timed-out reply is used as-is;
// any other failure crashes the task so the health check can relaunch.
func (h *Handle) initialize(ctx context.Context) error {
	reply, err := h.prompt(ctx, initPrompt(h.ws, h.worker, h.plan, h.mentions, h.isLead))
	if err != nil && !errors.Is(err, runtime.ErrResponseTimeout) {
		return err
	}
	if reply != "" {
		if err := h.record(reply); err != nil {
			return err
		}
		h.log.Info("worker introduced itself")
	}
	return nil
}

// pollLoop is the steady state: sleep, check for conversation growth,
// honor control tokens, otherwise ask the worker whether it wants to
// speak. Transient failures back off one interval; a closed session
// crashes the task.
func (h *Handle) pollLoop(ctx context.Context) error {
	lastSeen := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.clock.After(h.cfg.PollInterval):
		}

		content, err := h.ws.Conversation()
		if err != nil {
			h.log.Warn("conversation read failed", "error", err)
			continue
		}
		if len(content) == lastSeen {
			continue
		}
		lastSeen = len(content)

		switch control(content) {
		case controlTerminate:
			h.log.Info("worker acknowledging termination")
			return nil
		case controlPause:
			if err := h.ws.SetStatus(h.worker.ID, workspace.Paused("Awaiting human guidance")); err != nil {
				h.log.Warn("pause status write failed", "error", err)
			}
			h.log.Info("worker pausing for human input")
			continue
		}

		reply, err := h.prompt(ctx, checkPrompt(h.ws, h.mentions))
		if err != nil && !errors.Is(err, runtime.ErrResponseTimeout) {
			if errors.Is(err, context.Canceled) {
				return err
			}
			if errors.Is(err, runtime.ErrSessionClosed) {
				return err
			}
			h.log.Warn("check prompt failed", "error", err)
			continue
		}
		if reply == "" || strings.Contains(reply, NoResponseSentinel) {
			continue
		}
		if err := h.record(reply); err != nil {
			return err
		}
	}
}

// controlKind classifies the supervisor-authored control segment near the
// conversation tail.
type controlKind int

const (
	controlNone controlKind = iota
	controlTerminate
	controlPause
)

// control scans the tail window for orchestrator control tokens. Victory
// and abort both terminate the task cleanly; pause suspends prompting
// until the conversation moves past the pause marker.
func control(content string) controlKind {
	tail := content
	if len(tail) > controlWindowBytes {
		tail = tail[len(tail)-controlWindowBytes:]
	}
	if !strings.Contains(tail, "@"+workspace.OrchestratorSender) {
		return controlNone
	}
	if strings.Contains(tail, "VICTORY") {
		return controlTerminate
	}
	lower := strings.ToLower(tail)
	if strings.Contains(lower, "abort") || strings.Contains(lower, "stop all work") {
		return controlTerminate
	}
	if strings.Contains(lower, "pause") || strings.Contains(tail, "Escalating to @HUMAN") {
		return controlPause
	}
	return controlNone
}

// record appends a worker reply to the conversation and updates the
// declared status. A reply without a parseable status tag records
// WORKING; silence is never promoted to SATISFIED.
func (h *Handle) record(reply string) error {
	if err := h.ws.Append(h.worker.ID, reply); err != nil {
		return err
	}
	st, _ := workspace.ExtractStatus(reply)
	if err := h.ws.SetStatus(h.worker.ID, st); err != nil {
		return err
	}
	h.publish(event.NewMessagePostedEvent(h.worker.ID, workspace.FirstMeaningfulLine(reply)))
	return nil
}

// prompt sends one prompt on the session under the session guard and
// collects the reply.
func (h *Handle) prompt(ctx context.Context, text string) (string, error) {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	if h.session == nil {
		return "", runtime.ErrSessionClosed
	}
	return runtime.Collect(ctx, h.clock, h.session, text, h.cfg.ResponseTimeout)
}

// destroySession tears the session down, tolerating an already-dead one.
func (h *Handle) destroySession() {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	if h.session == nil {
		return
	}
	if err := h.session.Destroy(); err != nil {
		h.log.Debug("session destroy failed", "error", err)
	}
	h.session = nil
}

func (h *Handle) publish(ev event.Event) {
	if h.bus != nil {
		h.bus.Publish(ev)
	}
}
