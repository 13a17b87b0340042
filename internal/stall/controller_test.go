package stall

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/workspace"
)

// fakeEscalator scripts human resolutions and records what it was shown.
type fakeEscalator struct {
	calls       []Escalation
	tailAtCall  []string
	resolutions []Resolution
	err         error
}

func (f *fakeEscalator) Escalate(ctx context.Context, esc Escalation) (Resolution, error) {
	f.calls = append(f.calls, esc)
	tail, _ := esc.Tail(10000)
	f.tailAtCall = append(f.tailAtCall, tail)
	if f.err != nil {
		return Resolution{}, f.err
	}
	if len(f.resolutions) == 0 {
		return Resolution{}, nil
	}
	r := f.resolutions[0]
	f.resolutions = f.resolutions[1:]
	return r, nil
}

func testConfig() Config {
	return Config{
		StallTimeout: 5 * time.Minute,
		MaxNudges:    3,
		Grace:        2 * time.Minute,
	}
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New(t.TempDir())
	if err := ws.Init(); err != nil {
		t.Fatal(err)
	}
	return ws
}

func mustConversation(t *testing.T, ws *workspace.Workspace) string {
	t.Helper()
	conv, err := ws.Conversation()
	if err != nil {
		t.Fatal(err)
	}
	return conv
}

func tick(t *testing.T, c *Controller, statuses map[string]workspace.Status) bool {
	t.Helper()
	abort, err := c.Tick(context.Background(), statuses)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return abort
}

func TestSilenceTriggersExactlyOneNudge(t *testing.T) {
	ws := newTestWorkspace(t)
	clock := clockwork.NewFakeClock()
	c := NewController(ws, &fakeEscalator{}, testConfig(), WithClock(clock))

	clock.Advance(6 * time.Minute)
	tick(t, c, nil)

	conv := mustConversation(t, ws)
	if !strings.Contains(conv, "Nudge 1/3") {
		t.Fatalf("expected first nudge in conversation, got:\n%s", conv)
	}
	if !strings.Contains(conv, "No activity detected for 6 minutes") {
		t.Errorf("nudge should report idle minutes, got:\n%s", conv)
	}

	// The nudge itself re-armed the window; an immediate second tick
	// must not nudge again.
	tick(t, c, nil)
	conv = mustConversation(t, ws)
	if got := strings.Count(conv, "No activity detected"); got != 1 {
		t.Fatalf("nudges = %d, want exactly 1", got)
	}
}

func TestMaxNudgesEscalatesInsteadOfNudging(t *testing.T) {
	ws := newTestWorkspace(t)
	clock := clockwork.NewFakeClock()
	esc := &fakeEscalator{resolutions: []Resolution{{Guidance: "wrap up the auth work first"}}}
	c := NewController(ws, esc, testConfig(), WithClock(clock))

	for i := 0; i < 3; i++ {
		clock.Advance(6 * time.Minute)
		tick(t, c, nil)
	}
	conv := mustConversation(t, ws)
	for _, want := range []string{"Nudge 1/3", "Nudge 2/3", "Nudge 3/3"} {
		if !strings.Contains(conv, want) {
			t.Fatalf("missing %q in conversation:\n%s", want, conv)
		}
	}

	// Fourth silent window: escalation, not a fourth nudge.
	clock.Advance(6 * time.Minute)
	if abort := tick(t, c, nil); abort {
		t.Fatal("guidance resolution should not abort")
	}
	if len(esc.calls) != 1 {
		t.Fatalf("escalations = %d, want 1", len(esc.calls))
	}
	conv = mustConversation(t, ws)
	if got := strings.Count(conv, "No activity detected"); got != 3 {
		t.Errorf("nudges after escalation = %d, want 3", got)
	}
	if !strings.Contains(conv, "Escalating to @HUMAN") {
		t.Error("pause broadcast missing from conversation")
	}
	if !strings.Contains(conv, "Human guidance:") || !strings.Contains(conv, "wrap up the auth work first") {
		t.Errorf("guidance not relayed to team:\n%s", conv)
	}
	if !strings.Contains(conv, "@"+workspace.HumanSender+":") {
		t.Errorf("guidance should be attributed to %s:\n%s", workspace.HumanSender, conv)
	}

	// Escalation forgave the counter: the next stall starts at nudge 1.
	clock.Advance(6 * time.Minute)
	tick(t, c, nil)
	conv = mustConversation(t, ws)
	if got := strings.Count(conv, "Nudge 1/3"); got != 2 {
		t.Errorf("post-escalation nudge should restart at 1/3, conversation:\n%s", conv)
	}
}

func TestActivityResetsNudgeCounter(t *testing.T) {
	ws := newTestWorkspace(t)
	clock := clockwork.NewFakeClock()
	c := NewController(ws, &fakeEscalator{}, testConfig(), WithClock(clock))

	clock.Advance(6 * time.Minute)
	tick(t, c, nil)

	// A worker speaks up: counter goes back to zero.
	if err := ws.Append("DEV", "Still here, finishing the migration."); err != nil {
		t.Fatal(err)
	}
	tick(t, c, nil)

	clock.Advance(6 * time.Minute)
	tick(t, c, nil)

	conv := mustConversation(t, ws)
	if got := strings.Count(conv, "Nudge 1/3"); got != 2 {
		t.Errorf("Nudge 1/3 count = %d, want 2 (counter reset by activity)", got)
	}
	if strings.Contains(conv, "Nudge 2/3") {
		t.Errorf("counter was not reset by activity:\n%s", conv)
	}
}

func TestHumanBlockEscalatesAfterGraceDespiteActivity(t *testing.T) {
	ws := newTestWorkspace(t)
	clock := clockwork.NewFakeClock()
	esc := &fakeEscalator{resolutions: []Resolution{{Guidance: "use OAuth, not API keys"}}}
	c := NewController(ws, esc, testConfig(), WithClock(clock))

	blocked := map[string]workspace.Status{
		"dev":      workspace.Blocked("need @HUMAN decision on auth provider"),
		"security": workspace.Working,
	}

	// Keep the rest of the team chatty the whole time: the grace timer
	// must fire anyway.
	if err := ws.Append("SECURITY", "Reviewing the token flow."); err != nil {
		t.Fatal(err)
	}
	if tick(t, c, blocked) {
		t.Fatal("unexpected abort")
	}
	if len(esc.calls) != 0 {
		t.Fatal("escalated before the grace period elapsed")
	}

	clock.Advance(time.Minute)
	if err := ws.Append("SECURITY", "Token flow looks fine."); err != nil {
		t.Fatal(err)
	}
	tick(t, c, blocked)
	if len(esc.calls) != 0 {
		t.Fatal("escalated before the grace period elapsed")
	}

	clock.Advance(time.Minute + time.Second)
	if err := ws.Append("SECURITY", "Moving on to the audit log."); err != nil {
		t.Fatal(err)
	}
	tick(t, c, blocked)
	if len(esc.calls) != 1 {
		t.Fatalf("escalations = %d, want 1 after grace", len(esc.calls))
	}
	if !strings.Contains(esc.calls[0].Reason, "dev") {
		t.Errorf("escalation reason should name the blocked worker, got %q", esc.calls[0].Reason)
	}
}

func TestClearedHumanBlockRestartsGrace(t *testing.T) {
	ws := newTestWorkspace(t)
	clock := clockwork.NewFakeClock()
	esc := &fakeEscalator{}
	c := NewController(ws, esc, testConfig(), WithClock(clock))

	blocked := map[string]workspace.Status{"dev": workspace.Blocked("waiting for human sign-off")}

	tick(t, c, blocked)
	clock.Advance(90 * time.Second)

	// Marker clears, then reappears: the grace timer starts over.
	tick(t, c, map[string]workspace.Status{"dev": workspace.Working})
	clock.Advance(time.Minute)
	tick(t, c, blocked)
	clock.Advance(90 * time.Second)
	tick(t, c, blocked)
	if len(esc.calls) != 0 {
		t.Fatal("grace timer did not restart after the marker cleared")
	}

	clock.Advance(time.Minute)
	tick(t, c, blocked)
	if len(esc.calls) != 1 {
		t.Fatalf("escalations = %d, want 1", len(esc.calls))
	}
}

func TestAbortResolutionStopsRun(t *testing.T) {
	ws := newTestWorkspace(t)
	clock := clockwork.NewFakeClock()
	esc := &fakeEscalator{resolutions: []Resolution{{Abort: true}}}
	cfg := testConfig()
	cfg.MaxNudges = 0
	c := NewController(ws, esc, cfg, WithClock(clock))

	clock.Advance(6 * time.Minute)
	if abort := tick(t, c, nil); !abort {
		t.Fatal("expected abort=true from abort resolution")
	}
	conv := mustConversation(t, ws)
	if !strings.Contains(conv, "Human has chosen to abort") || !strings.Contains(conv, "stop all work") {
		t.Errorf("abort broadcast missing:\n%s", conv)
	}
}

func TestEscalationShowsPauseBroadcastAndStatuses(t *testing.T) {
	ws := newTestWorkspace(t)
	clock := clockwork.NewFakeClock()
	esc := &fakeEscalator{}
	cfg := testConfig()
	cfg.MaxNudges = 0
	c := NewController(ws, esc, cfg, WithClock(clock),
		WithSummarizer(func(ctx context.Context, tail string) (string, error) {
			return "The dev needs a decision on the auth provider.", nil
		}))

	statuses := map[string]workspace.Status{
		"dev": workspace.Blocked("db migration failing"),
		"pm":  workspace.Satisfied,
	}
	clock.Advance(6 * time.Minute)
	tick(t, c, statuses)

	if len(esc.calls) != 1 {
		t.Fatalf("escalations = %d, want 1", len(esc.calls))
	}
	// The pause broadcast goes into the conversation before the human
	// is prompted, so paused workers see it first.
	if !strings.Contains(esc.tailAtCall[0], "Escalating to @HUMAN") {
		t.Errorf("pause broadcast not visible at escalation time:\n%s", esc.tailAtCall[0])
	}
	if !strings.Contains(esc.tailAtCall[0], "@DEV: BLOCKED - db migration failing") {
		t.Errorf("status lines missing from pause broadcast:\n%s", esc.tailAtCall[0])
	}
	if esc.calls[0].Summary != "The dev needs a decision on the auth provider." {
		t.Errorf("summary = %q", esc.calls[0].Summary)
	}
}

func TestSummarizerFailureDegradesToNoSummary(t *testing.T) {
	ws := newTestWorkspace(t)
	clock := clockwork.NewFakeClock()
	esc := &fakeEscalator{}
	cfg := testConfig()
	cfg.MaxNudges = 0
	c := NewController(ws, esc, cfg, WithClock(clock),
		WithSummarizer(func(ctx context.Context, tail string) (string, error) {
			return "", errors.New("runtime unavailable")
		}))

	clock.Advance(6 * time.Minute)
	tick(t, c, nil)

	if len(esc.calls) != 1 {
		t.Fatalf("escalations = %d, want 1 (summary failure must not block escalation)", len(esc.calls))
	}
	if esc.calls[0].Summary != "" {
		t.Errorf("summary = %q, want empty on summarizer failure", esc.calls[0].Summary)
	}
}

func TestEscalatorErrorPropagates(t *testing.T) {
	ws := newTestWorkspace(t)
	clock := clockwork.NewFakeClock()
	wantErr := errors.New("stdin closed")
	esc := &fakeEscalator{err: wantErr}
	cfg := testConfig()
	cfg.MaxNudges = 0
	c := NewController(ws, esc, cfg, WithClock(clock))

	clock.Advance(6 * time.Minute)
	_, err := c.Tick(context.Background(), nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}
