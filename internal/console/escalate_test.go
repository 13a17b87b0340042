package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mandali-ai/mandali/internal/stall"
	"github.com/mandali-ai/mandali/internal/workspace"
)

func newTestEscalation(tail func(int) (string, error)) stall.Escalation {
	return stall.Escalation{
		Reason: "no activity for 5m0s",
		Statuses: map[string]workspace.Status{
			"dev": workspace.Working,
			"qa":  workspace.Blocked("env is down"),
		},
		Summary:          "QA needs the staging environment restarted.",
		ConversationPath: "/tmp/ws/mandali-artifacts/conversation.txt",
		Tail:             tail,
	}
}

func scriptedEscalator(input string) (*Escalator, *bytes.Buffer) {
	var buf bytes.Buffer
	c := New(&buf)
	return NewEscalator(c, NewLineSource(strings.NewReader(input))), &buf
}

func TestEscalateGuidance(t *testing.T) {
	esc, buf := scriptedEscalator("1\nFocus on the API\nThen ship it\n\n")

	res, err := esc.Escalate(context.Background(), newTestEscalation(nil))
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if res.Abort {
		t.Fatalf("guidance should not abort")
	}
	if want := "Focus on the API\nThen ship it"; res.Guidance != want {
		t.Errorf("Guidance = %q, want %q", res.Guidance, want)
	}

	out := buf.String()
	for _, want := range []string{
		"HUMAN ESCALATION",
		"no activity for 5m0s",
		"QA needs the staging environment",
		"conversation.txt",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("escalation panel missing %q:\n%s", want, out)
		}
	}
}

func TestEscalateAbort(t *testing.T) {
	esc, _ := scriptedEscalator("3\n")

	res, err := esc.Escalate(context.Background(), newTestEscalation(nil))
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if !res.Abort {
		t.Errorf("expected abort resolution")
	}
}

func TestEscalateViewConversationThenDecide(t *testing.T) {
	var askedFor int
	tail := func(maxBytes int) (string, error) {
		askedFor = maxBytes
		return "[10:00:00] @DEV: shipping the fix now", nil
	}
	esc, buf := scriptedEscalator("2\n3\n")

	res, err := esc.Escalate(context.Background(), newTestEscalation(tail))
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if !res.Abort {
		t.Errorf("expected abort after viewing the conversation")
	}
	if askedFor != rawTailBytes {
		t.Errorf("tail window = %d, want %d", askedFor, rawTailBytes)
	}
	if !strings.Contains(buf.String(), "shipping the fix now") {
		t.Errorf("conversation tail not shown:\n%s", buf.String())
	}
}

func TestEscalateInvalidChoiceLoops(t *testing.T) {
	esc, buf := scriptedEscalator("9\nbogus\n3\n")

	res, err := esc.Escalate(context.Background(), newTestEscalation(nil))
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if !res.Abort {
		t.Errorf("expected eventual abort")
	}
	if got := strings.Count(buf.String(), "Invalid choice."); got != 2 {
		t.Errorf("invalid-choice notices = %d, want 2", got)
	}
}

func TestEscalateEmptyGuidanceReturnsToMenu(t *testing.T) {
	esc, buf := scriptedEscalator("1\n\n3\n")

	res, err := esc.Escalate(context.Background(), newTestEscalation(nil))
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if !res.Abort {
		t.Errorf("expected abort after empty guidance")
	}
	if !strings.Contains(buf.String(), "No guidance entered.") {
		t.Errorf("empty guidance should be called out:\n%s", buf.String())
	}
}

func TestEscalateClosedInput(t *testing.T) {
	esc, _ := scriptedEscalator("")

	_, err := esc.Escalate(context.Background(), newTestEscalation(nil))
	if !errors.Is(err, ErrInputClosed) {
		t.Errorf("err = %v, want ErrInputClosed", err)
	}
}

func TestEscalateContextCanceled(t *testing.T) {
	pr, _ := io.Pipe() // never written, so reads block
	var buf bytes.Buffer
	esc := NewEscalator(New(&buf), NewLineSource(pr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := esc.Escalate(ctx, newTestEscalation(nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLineSourceDeliversRawLines(t *testing.T) {
	src := NewLineSource(strings.NewReader("first\n\nthird\n"))

	var got []string
	for line := range src.Lines() {
		got = append(got, line)
	}
	want := []string{"first", "", "third"}
	if len(got) != len(want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLineSourceClosesOnEOF(t *testing.T) {
	src := NewLineSource(strings.NewReader(""))

	select {
	case _, ok := <-src.Lines():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel never closed")
	}
}
