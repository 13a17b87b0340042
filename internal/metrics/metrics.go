// Package metrics accumulates run-level counters from the event stream
// and persists them as metrics.json in the workspace artifacts.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/event"
)

// stampLayout is the human-readable timestamp format used in the summary
// and the persisted file.
const stampLayout = "2006-01-02 15:04:05"

// WorkerStats holds per-worker counters.
type WorkerStats struct {
	Messages   int `json:"messages"`
	Relaunches int `json:"relaunches"`
}

// Run is the collected metrics of one run.
type Run struct {
	StartTime          string                 `json:"start_time"`
	EndTime            string                 `json:"end_time"`
	TotalMessages      int                    `json:"total_messages"`
	Nudges             int                    `json:"nudges"`
	HumanEscalations   int                    `json:"human_escalations"`
	Relaunches         int                    `json:"relaunches"`
	Victory            bool                   `json:"victory"`
	VerificationRounds int                    `json:"verification_rounds"`
	VerificationPassed bool                   `json:"verification_passed"`
	PerWorker          map[string]WorkerStats `json:"per_worker"`
}

// Recorder folds bus events into a Run. Handlers may fire from any
// goroutine, so all counter updates are locked.
type Recorder struct {
	mu    sync.Mutex
	run   Run
	clock clockwork.Clock
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the clock used for the start and end stamps.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Recorder) { r.clock = clock }
}

// NewRecorder creates an empty Recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		run:   Run{PerWorker: make(map[string]WorkerStats)},
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach subscribes the recorder to every event on the bus and returns
// the subscription id.
func (r *Recorder) Attach(bus *event.Bus) string {
	return bus.SubscribeAll(r.handle)
}

func (r *Recorder) handle(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case event.MessagePostedEvent:
		stats := r.run.PerWorker[e.Sender]
		stats.Messages++
		r.run.PerWorker[e.Sender] = stats
	case event.NudgeSentEvent:
		r.run.Nudges++
	case event.EscalationRaisedEvent:
		r.run.HumanEscalations++
	case event.WorkerRelaunchedEvent:
		r.run.Relaunches++
		stats := r.run.PerWorker[e.WorkerID]
		stats.Relaunches++
		r.run.PerWorker[e.WorkerID] = stats
	case event.VerificationPassedEvent:
		r.run.VerificationRounds++
		r.run.VerificationPassed = true
	case event.VerificationGapsEvent:
		r.run.VerificationRounds++
	case event.VictoryEvent:
		r.run.Victory = true
	}
}

// Start stamps the run's start time.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.StartTime = r.clock.Now().Format(stampLayout)
}

// End stamps the run's end time.
func (r *Recorder) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.EndTime = r.clock.Now().Format(stampLayout)
}

// SetTotalMessages records the transcript's message count. The count
// comes from the transcript itself rather than posted-message events so
// seeded and human messages are included.
func (r *Recorder) SetTotalMessages(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.TotalMessages = n
}

// Snapshot returns a copy of the current metrics.
func (r *Recorder) Snapshot() Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.run
	out.PerWorker = make(map[string]WorkerStats, len(r.run.PerWorker))
	for id, stats := range r.run.PerWorker {
		out.PerWorker[id] = stats
	}
	return out
}

// Save writes the metrics as indented JSON.
func (r *Recorder) Save(path string) error {
	snap := r.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("metrics: marshal: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("metrics: save %s: %w", path, err)
	}
	return nil
}

// Load reads a previously saved metrics file.
func Load(path string) (Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, fmt.Errorf("metrics: load %s: %w", path, err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("metrics: parse %s: %w", path, err)
	}
	return run, nil
}
