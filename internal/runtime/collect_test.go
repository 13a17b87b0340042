package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mandali-ai/mandali/internal/config"
	"github.com/mandali-ai/mandali/internal/runtime"
	"github.com/mandali-ai/mandali/internal/runtime/runtimetest"
)

func openFakeSession(t *testing.T) (*runtimetest.FakeClient, *runtimetest.FakeSession) {
	t.Helper()
	client := runtimetest.NewFakeClient()
	s, err := client.OpenSession(context.Background(), runtime.SessionConfig{WorkingDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	return client, s.(*runtimetest.FakeSession)
}

func TestCollect_TextFinal(t *testing.T) {
	_, s := openFakeSession(t)
	s.Queue("  all done here  \n")

	got, err := runtime.Collect(context.Background(), clockwork.NewRealClock(), s, "status?", time.Minute)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if got != "all done here" {
		t.Errorf("Collect() = %q, want %q", got, "all done here")
	}
	if s.LastPrompt() != "status?" {
		t.Errorf("LastPrompt() = %q, want %q", s.LastPrompt(), "status?")
	}
}

func TestCollect_FoldsDeltasUntilIdle(t *testing.T) {
	_, s := openFakeSession(t)
	s.Respond(func(string) (string, bool) { return "", false })
	s.Emit(runtime.Event{Kind: runtime.EventTextDelta, Text: "partial "})
	s.Emit(runtime.Event{Kind: runtime.EventToolStart, Tool: "write"})
	s.Emit(runtime.Event{Kind: runtime.EventToolEnd, Tool: "write"})
	s.Emit(runtime.Event{Kind: runtime.EventTextDelta, Text: "reply"})
	s.Emit(runtime.Event{Kind: runtime.EventIdle})

	got, err := runtime.Collect(context.Background(), clockwork.NewRealClock(), s, "go", time.Minute)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if got != "partial reply" {
		t.Errorf("Collect() = %q, want %q", got, "partial reply")
	}
}

func TestCollect_TimeoutReturnsPartialText(t *testing.T) {
	_, s := openFakeSession(t)
	s.Respond(func(string) (string, bool) { return "", false })
	s.Emit(runtime.Event{Kind: runtime.EventTextDelta, Text: "half a thought"})

	got, err := runtime.Collect(context.Background(), clockwork.NewRealClock(), s, "go", 200*time.Millisecond)
	if !errors.Is(err, runtime.ErrResponseTimeout) {
		t.Fatalf("Collect() error = %v, want ErrResponseTimeout", err)
	}
	if got != "half a thought" {
		t.Errorf("Collect() partial text = %q, want %q", got, "half a thought")
	}
}

func TestCollect_ErrorEvent(t *testing.T) {
	_, s := openFakeSession(t)
	boom := errors.New("backend exploded")
	s.QueueError(boom)

	_, err := runtime.Collect(context.Background(), clockwork.NewRealClock(), s, "go", time.Minute)
	if !errors.Is(err, boom) {
		t.Errorf("Collect() error = %v, want %v", err, boom)
	}
}

func TestCollect_ContextCancelled(t *testing.T) {
	_, s := openFakeSession(t)
	s.QueueSilence()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runtime.Collect(ctx, clockwork.NewRealClock(), s, "go", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Collect() error = %v, want context.Canceled", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()

	client, err := runtime.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	if _, ok := client.(*runtime.ClaudeClient); !ok {
		t.Errorf("NewFromConfig() = %T, want *runtime.ClaudeClient", client)
	}
}

func TestNewFromConfig_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Runtime.Backend = "abacus"

	_, err := runtime.NewFromConfig(cfg)
	if !errors.Is(err, runtime.ErrUnknownBackend) {
		t.Errorf("NewFromConfig() error = %v, want ErrUnknownBackend", err)
	}
}
