// Package stall watches conversation liveness: it nudges a silent team,
// escalates to the human after repeated silence or when a worker is
// explicitly waiting on human guidance, and relays the human's decision
// back into the conversation.
package stall

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/event"
	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/workspace"
)

// summaryTailBytes bounds the conversation window handed to the
// escalation summarizer. The human needs "what do the workers need right
// now", not the full history.
const summaryTailBytes = 8000

// Escalation is everything the human channel needs to present a stalled
// run.
type Escalation struct {
	// Reason says which trigger fired.
	Reason string

	// Statuses is the current status map snapshot.
	Statuses map[string]workspace.Status

	// Summary is the auxiliary "what do the workers need" extract, empty
	// when the summarizer was unavailable.
	Summary string

	// ConversationPath locates the live conversation file for the human.
	ConversationPath string

	// Tail returns up to maxBytes from the end of the conversation, for
	// the "show me the raw transcript" option.
	Tail func(maxBytes int) (string, error)
}

// Resolution is the human's decision at an escalation.
type Resolution struct {
	// Abort stops the whole run.
	Abort bool

	// Guidance is free-text advice to relay to the team. Empty guidance
	// with Abort false means "just continue".
	Guidance string
}

// Escalator presents an escalation on the human channel and blocks until
// the human decides. Implementations may loop internally (e.g. showing
// the raw transcript and asking again).
type Escalator interface {
	Escalate(ctx context.Context, esc Escalation) (Resolution, error)
}

// SummarizeFunc produces the "what do the workers need" extract from a
// recent conversation window via one auxiliary runtime query.
type SummarizeFunc func(ctx context.Context, conversationTail string) (string, error)

// Config holds the stall controller tunables.
type Config struct {
	// StallTimeout is the silence window after which the team is nudged.
	StallTimeout time.Duration

	// MaxNudges is how many consecutive nudges are sent before an
	// escalation replaces the next one.
	MaxNudges int

	// Grace is how long a worker may remain explicitly blocked on human
	// input before escalating, independent of general activity.
	Grace time.Duration
}

// Controller is the stall/escalation state machine. One Controller
// serves one round; it is driven by Tick from the monitor loop and is
// not safe for concurrent use.
type Controller struct {
	ws        *workspace.Workspace
	cfg       Config
	clock     clockwork.Clock
	log       *logging.Logger
	bus       *event.Bus
	escalator Escalator
	summarize SummarizeFunc

	// lastSize is the conversation length after the previous tick,
	// including this controller's own nudges, so a nudge never reads
	// back as team activity.
	lastSize int

	// lastEventAt is when the silence window last re-armed: real
	// activity, a nudge, or a resolved escalation.
	lastEventAt time.Time

	// nudges counts consecutive nudges; only real activity resets it.
	nudges int

	// blockedSince is when a blocked-on-human marker was first seen,
	// zero while none is present.
	blockedSince time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock, letting tests fast-forward silence.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithBus sets the event bus stall events are published on.
func WithBus(bus *event.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithSummarizer sets the escalation summarizer. Without one, the human
// sees raw statuses only.
func WithSummarizer(fn SummarizeFunc) Option {
	return func(c *Controller) { c.summarize = fn }
}

// NewController creates a stall controller for one round.
func NewController(ws *workspace.Workspace, escalator Escalator, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		ws:        ws,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		log:       logging.NopLogger(),
		escalator: escalator,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastEventAt = c.clock.Now()
	c.log = c.log.WithComponent("stall")
	return c
}

// Tick runs one liveness check. It returns abort=true when the human
// chose to stop the run at an escalation.
func (c *Controller) Tick(ctx context.Context, statuses map[string]workspace.Status) (abort bool, err error) {
	now := c.clock.Now()

	conversation, err := c.ws.Conversation()
	if err != nil {
		return false, err
	}
	if len(conversation) != c.lastSize {
		// Team or human activity: re-arm the window and forgive all
		// nudges. Our own nudges update lastSize at append time, so
		// they never land here.
		c.lastSize = len(conversation)
		c.lastEventAt = now
		c.nudges = 0
	}

	// A worker explicitly waiting on human input escalates after a grace
	// period no matter how busy the rest of the team looks.
	if id, st, ok := humanBlockMarker(statuses); ok {
		if c.blockedSince.IsZero() {
			c.blockedSince = now
			c.log.Info("worker waiting on human input", "worker_id", id, "status", st.String())
		}
		if now.Sub(c.blockedSince) >= c.cfg.Grace {
			reason := fmt.Sprintf("%s is waiting on human input (%s)", id, st.String())
			return c.runEscalation(ctx, statuses, reason)
		}
	} else {
		c.blockedSince = time.Time{}
	}

	idle := now.Sub(c.lastEventAt)
	if idle <= c.cfg.StallTimeout {
		return false, nil
	}
	if _, _, blocked := humanBlockMarker(statuses); blocked {
		// The grace timer owns this case; nudging a team that is
		// waiting for a human just adds noise.
		return false, nil
	}

	if c.nudges >= c.cfg.MaxNudges {
		reason := fmt.Sprintf("no activity after %d nudges", c.nudges)
		return c.runEscalation(ctx, statuses, reason)
	}
	return false, c.sendNudge(idle)
}

// humanBlockMarker finds the first status that mentions an explicit
// human-escalation marker.
func humanBlockMarker(statuses map[string]workspace.Status) (string, workspace.Status, bool) {
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st := statuses[id]
		text := strings.ToLower(st.String())
		if strings.Contains(text, "@human") || strings.Contains(text, "human") {
			return id, st, true
		}
	}
	return "", workspace.Status{}, false
}

// sendNudge appends a nudge message and re-arms the silence window
// without forgiving the nudge count.
func (c *Controller) sendNudge(idle time.Duration) error {
	c.nudges++
	c.log.Info("nudging team", "idle", idle.String(), "nudge", c.nudges, "max", c.cfg.MaxNudges)

	msg := fmt.Sprintf(`@Team - No activity detected for %d minutes.

Please continue working on the plan. If you're blocked, state what you need.

Nudge %d/%d before human escalation.`,
		int(idle.Minutes()), c.nudges, c.cfg.MaxNudges)
	if err := c.ws.Append(workspace.OrchestratorSender, msg); err != nil {
		return err
	}
	c.publish(event.NewNudgeSentEvent(c.nudges, c.cfg.MaxNudges))

	c.absorbOwnAppend()
	return nil
}

// runEscalation walks the full escalation exchange: pause broadcast,
// summary, human decision, relay. It blocks until the human responds.
func (c *Controller) runEscalation(ctx context.Context, statuses map[string]workspace.Status, reason string) (abort bool, err error) {
	c.log.Warn("escalating to human", "reason", reason)
	c.publish(event.NewEscalationRaisedEvent(reason))

	pause := fmt.Sprintf(`@AllAgents - Escalating to @HUMAN for guidance.

Please pause current work and ensure things are in a consistent state.
Wait for human input before continuing.

Current status:
%s`, statusLines(statuses))
	if err := c.ws.Append(workspace.OrchestratorSender, pause); err != nil {
		return false, err
	}
	c.absorbOwnAppend()

	summary := c.buildSummary(ctx)

	resolution, err := c.escalator.Escalate(ctx, Escalation{
		Reason:           reason,
		Statuses:         statuses,
		Summary:          summary,
		ConversationPath: c.ws.ConversationPath(),
		Tail:             c.ws.Tail,
	})
	if err != nil {
		return false, fmt.Errorf("stall: escalation: %w", err)
	}

	if resolution.Abort {
		c.log.Warn("human chose to abort")
		_ = c.ws.Append(workspace.OrchestratorSender,
			"@AllAgents - Human has chosen to abort. Please stop all work.")
		return true, nil
	}

	if guidance := strings.TrimSpace(resolution.Guidance); guidance != "" {
		msg := fmt.Sprintf("@AllAgents - Human guidance:\n\n%s\n\nPlease continue based on this guidance.", guidance)
		if err := c.ws.Append(workspace.HumanSender, msg); err != nil {
			return false, err
		}
		c.publish(event.NewHumanGuidanceEvent(guidance))
	}

	// The escalation resolved: full forgiveness, fresh silence window,
	// fresh grace timer.
	c.nudges = 0
	c.blockedSince = time.Time{}
	c.absorbOwnAppend()
	return false, nil
}

// buildSummary asks the summarizer what the workers need. Failures
// degrade to no summary; an escalation must never die on its garnish.
func (c *Controller) buildSummary(ctx context.Context) string {
	if c.summarize == nil {
		return ""
	}
	tail, err := c.ws.Tail(summaryTailBytes)
	if err != nil || strings.TrimSpace(tail) == "" {
		return ""
	}
	summary, err := c.summarize(ctx, tail)
	if err != nil {
		c.log.Warn("escalation summary failed", "error", err)
		return ""
	}
	return strings.TrimSpace(summary)
}

// absorbOwnAppend records the conversation size after a controller-
// authored append so the next Tick does not mistake it for activity.
func (c *Controller) absorbOwnAppend() {
	if conversation, err := c.ws.Conversation(); err == nil {
		c.lastSize = len(conversation)
	}
	c.lastEventAt = c.clock.Now()
}

// publish emits an event if a bus is attached.
func (c *Controller) publish(ev event.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

// statusLines renders a status map as conversation-friendly bullet
// lines, sorted by worker id.
func statusLines(statuses map[string]workspace.Status) string {
	if len(statuses) == 0 {
		return "- (no statuses declared yet)"
	}
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("- @%s: %s", strings.ToUpper(id), statuses[id].String()))
	}
	return strings.Join(lines, "\n")
}
