// Package supervisor owns the worker fleet: one long-running task per
// worker that initializes a runtime session, polls the shared
// conversation, relays replies, and tracks declared status. The
// supervisor also runs the health check that relaunches crashed workers.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/event"
	"github.com/mandali-ai/mandali/internal/logging"
	"github.com/mandali-ai/mandali/internal/roster"
	"github.com/mandali-ai/mandali/internal/runtime"
	"github.com/mandali-ai/mandali/internal/workspace"
)

// Config holds the supervisor tunables.
type Config struct {
	// Model is the model id worker sessions run on.
	Model string

	// PollInterval is the sleep between conversation checks.
	PollInterval time.Duration

	// LaunchStagger is the delay between successive worker launches, so
	// the team does not stampede the runtime.
	LaunchStagger time.Duration

	// ResponseTimeout bounds how long one prompt may take; a timed-out
	// reply is used as-is rather than failing the worker.
	ResponseTimeout time.Duration

	// ConnectAttempts bounds client reconnection tries during recovery.
	ConnectAttempts int
}

// Supervisor launches and supervises the whole team. Handles keep their
// original roster order; index zero is the lead.
type Supervisor struct {
	client runtime.Client
	ws     *workspace.Workspace
	cfg    Config
	clock  clockwork.Clock
	log    *logging.Logger
	bus    *event.Bus

	mu         sync.Mutex
	handles    []*Handle
	plan       string
	mentions   string
	relaunches map[string]int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock sets the clock used for poll intervals and prompt timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Supervisor) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithBus sets the event bus lifecycle events are published on.
func WithBus(bus *event.Bus) Option {
	return func(s *Supervisor) { s.bus = bus }
}

// New creates a Supervisor for one round.
func New(client runtime.Client, ws *workspace.Workspace, cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		client:     client,
		ws:         ws,
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		log:        logging.NopLogger(),
		relaunches: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("supervisor")
	return s
}

// LaunchAll starts one supervising task per worker, staggered so session
// opens do not stampede the runtime. Initialization happens inside each
// task; failures surface through the health check, not here.
func (s *Supervisor) LaunchAll(ctx context.Context, team []roster.Worker, plan string) error {
	s.mu.Lock()
	s.plan = plan
	s.mentions = roster.Mentions(team)
	s.mu.Unlock()

	for i, w := range team {
		if i > 0 && s.cfg.LaunchStagger > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(s.cfg.LaunchStagger):
			}
		}
		h := s.launch(ctx, w, i == 0)

		s.mu.Lock()
		s.handles = append(s.handles, h)
		s.mu.Unlock()

		s.log.Info("launched worker", "worker_id", w.ID, "lead", i == 0)
		s.publish(event.NewWorkerLaunchedEvent(w.ID, s.cfg.Model, i == 0))
	}
	return nil
}

// launch starts one worker task and returns its handle.
func (s *Supervisor) launch(ctx context.Context, w roster.Worker, isLead bool) *Handle {
	s.mu.Lock()
	plan, mentions := s.plan, s.mentions
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		worker:   w,
		isLead:   isLead,
		ws:       s.ws,
		cfg:      s.cfg,
		clock:    s.clock,
		log:      s.log.WithWorker(w.ID),
		bus:      s.bus,
		plan:     plan,
		mentions: mentions,
		cancel:   cancel,
		doneChan: make(chan struct{}),
	}
	go func() {
		h.finish(h.run(runCtx, s.client))
	}()
	return h
}

// Recover is the health check, run every monitor tick. A handle that
// ended with a non-cancellation error gets its dead session destroyed,
// the shared client revived, and the same identity relaunched. Handles
// that ended cleanly or were cancelled are left alone.
func (s *Supervisor) Recover(ctx context.Context) {
	s.mu.Lock()
	handles := make([]*Handle, len(s.handles))
	copy(handles, s.handles)
	s.mu.Unlock()

	for i, h := range handles {
		if !h.Crashed() {
			continue
		}
		s.log.Warn("worker crashed", "worker_id", h.worker.ID, "error", h.Err())
		h.destroySession()
		h.cancel()

		if err := runtime.EnsureAlive(ctx, s.client, s.cfg.ConnectAttempts); err != nil {
			s.log.Error("cannot recover worker, client reconnect failed",
				"worker_id", h.worker.ID, "error", err)
			continue
		}

		// Lead status follows the original roster position, which the
		// handle slice preserves across relaunches.
		nh := s.launch(ctx, h.worker, i == 0)

		s.mu.Lock()
		s.handles[i] = nh
		s.relaunches[h.worker.ID]++
		attempt := s.relaunches[h.worker.ID]
		s.mu.Unlock()

		s.log.Info("relaunched worker", "worker_id", h.worker.ID, "attempt", attempt)
		s.publish(event.NewWorkerRelaunchedEvent(h.worker.ID, attempt))
	}
}

// Stop cancels every worker task, waits for the loops to exit, and tears
// down their sessions. Cancelled handles are never treated as crashes.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	handles := make([]*Handle, len(s.handles))
	copy(handles, s.handles)
	s.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		<-h.doneChan
	}
	for _, h := range handles {
		h.destroySession()
	}
}

// Handles returns the current handles in original roster order.
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

// AllDone reports whether every worker task has ended.
func (s *Supervisor) AllDone() bool {
	for _, h := range s.Handles() {
		if !h.Done() {
			return false
		}
	}
	return true
}

func (s *Supervisor) publish(ev event.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
