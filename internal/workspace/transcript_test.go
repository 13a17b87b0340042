package workspace

import (
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWorkspace_Append(t *testing.T) {
	w := newTestWorkspace(t)

	if err := w.Append("dev", "  starting on the schema  \n"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	content, err := w.Conversation()
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}

	entryPattern := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] @DEV: starting on the schema\n\n$`)
	if !entryPattern.MatchString(content) {
		t.Errorf("conversation entry = %q, want match for %q", content, entryPattern)
	}
}

func TestWorkspace_Append_Concurrent(t *testing.T) {
	w := newTestWorkspace(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := w.Append("dev", "message"); err != nil {
				t.Errorf("Append() error = %v", err)
			}
			_ = n
		}(i)
	}
	wg.Wait()

	count, err := w.MessageCount()
	if err != nil {
		t.Fatalf("MessageCount() error = %v", err)
	}
	if count != 20 {
		t.Errorf("MessageCount() = %d, want 20", count)
	}

	content, err := w.Conversation()
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}
	if msgs := ParseMessages(content); len(msgs) != 20 {
		t.Errorf("ParseMessages() returned %d entries, want 20", len(msgs))
	}
}

func TestWorkspace_ConversationSince(t *testing.T) {
	w := newTestWorkspace(t)

	if err := w.Append("dev", "first"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	fresh, offset, err := w.ConversationSince(0)
	if err != nil {
		t.Fatalf("ConversationSince(0) error = %v", err)
	}
	if !strings.Contains(fresh, "first") {
		t.Errorf("new content = %q, want it to contain %q", fresh, "first")
	}
	if offset != len(fresh) {
		t.Errorf("offset = %d, want %d", offset, len(fresh))
	}

	if err := w.Append("pm", "second"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	delta, _, err := w.ConversationSince(offset)
	if err != nil {
		t.Fatalf("ConversationSince(offset) error = %v", err)
	}
	if strings.Contains(delta, "first") {
		t.Errorf("delta %q should not contain already-seen content", delta)
	}
	if !strings.Contains(delta, "second") {
		t.Errorf("delta = %q, want it to contain %q", delta, "second")
	}
}

func TestWorkspace_ConversationSince_OffsetBeyondLength(t *testing.T) {
	w := newTestWorkspace(t)

	if err := w.Append("dev", "hello"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// An archive swaps in a shorter file; stale offsets must reset rather
	// than slice out of range.
	content, _, err := w.ConversationSince(100000)
	if err != nil {
		t.Fatalf("ConversationSince() error = %v", err)
	}
	if !strings.Contains(content, "hello") {
		t.Errorf("content after reset = %q, want full conversation", content)
	}
}

func TestWorkspace_Tail(t *testing.T) {
	w := newTestWorkspace(t)

	if err := w.Append("dev", strings.Repeat("x", 100)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	tail, err := w.Tail(10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(tail) != 10 {
		t.Errorf("len(Tail(10)) = %d, want 10", len(tail))
	}

	full, err := w.Tail(1 << 20)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	content, _ := w.Conversation()
	if full != content {
		t.Error("Tail() larger than file should return the whole conversation")
	}
}

func TestWorkspace_LastActivity(t *testing.T) {
	w := New(t.TempDir())
	if got := w.LastActivity(); !got.IsZero() {
		t.Errorf("LastActivity() without a log = %v, want zero time", got)
	}

	if err := w.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	before := time.Now().Add(-time.Second)
	if err := w.Append("dev", "hello"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if got := w.LastActivity(); got.Before(before) {
		t.Errorf("LastActivity() after append = %v, want at or after %v", got, before)
	}
}

func TestCountMessages(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty", "", 0},
		{"single", "[10:00:00] @DEV: hi\n\n", 1},
		{"two", "[10:00:00] @DEV: hi\n\n[10:00:05] @PM: hello\n\n", 2},
		{"no leading bracket", "garbage\n[10:00:00] @DEV: hi\n\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountMessages(tt.content); got != tt.want {
				t.Errorf("CountMessages(%q) = %d, want %d", tt.content, got, tt.want)
			}
		})
	}
}

func TestParseMessages(t *testing.T) {
	content := "[10:00:00] @DEV: working on auth\nstill going\n\n" +
		"[10:00:10] @PM: noted\n\n"

	msgs := ParseMessages(content)
	if len(msgs) != 2 {
		t.Fatalf("ParseMessages() returned %d entries, want 2", len(msgs))
	}

	if msgs[0].Sender != "DEV" {
		t.Errorf("msgs[0].Sender = %q, want %q", msgs[0].Sender, "DEV")
	}
	if msgs[0].Time != "10:00:00" {
		t.Errorf("msgs[0].Time = %q, want %q", msgs[0].Time, "10:00:00")
	}
	if want := "working on auth\nstill going"; msgs[0].Body != want {
		t.Errorf("msgs[0].Body = %q, want %q", msgs[0].Body, want)
	}
	if msgs[1].Sender != "PM" || msgs[1].Body != "noted" {
		t.Errorf("msgs[1] = %+v, want PM/noted", msgs[1])
	}
}

func TestParseMessages_SkipsMalformedRegions(t *testing.T) {
	content := "random preamble\n[10:00:00] @DEV: ok\n\n"

	msgs := ParseMessages(content)
	if len(msgs) != 1 {
		t.Fatalf("ParseMessages() returned %d entries, want 1", len(msgs))
	}
	if msgs[0].Body != "ok" {
		t.Errorf("Body = %q, want %q", msgs[0].Body, "ok")
	}
}

func TestFirstMeaningfulLine(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain", "done with tests", "done with tests"},
		{"leading blank and fence", "\n```go\nfunc main()", "func main()"},
		{"skips rules", "---\nactual content", "actual content"},
		{"nothing meaningful", "---\n```\n", "(no text)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstMeaningfulLine(tt.body); got != tt.want {
				t.Errorf("FirstMeaningfulLine(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestWorkspace_ArchiveConversation(t *testing.T) {
	w := newTestWorkspace(t)

	if err := w.Append("dev", "round one work"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	name, err := w.ArchiveConversation(1)
	if err != nil {
		t.Fatalf("ArchiveConversation() error = %v", err)
	}

	namePattern := regexp.MustCompile(`^conversation-round-1-\d{4}_[A-Z][a-z]{2}_\d{2}-\d{2}_\d{2}_\d{2}\.txt$`)
	if !namePattern.MatchString(name) {
		t.Errorf("archive name = %q, want match for %q", name, namePattern)
	}

	archived, err := os.ReadFile(w.ArtifactsDir() + "/" + name)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	if !strings.Contains(string(archived), "round one work") {
		t.Errorf("archive = %q, want original content", archived)
	}

	fresh, err := w.Conversation()
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}
	if fresh != "" {
		t.Errorf("conversation after archive = %q, want empty", fresh)
	}
}

func TestWorkspace_RoundRolloverPreservesDecisions(t *testing.T) {
	w := newTestWorkspace(t)

	recorded := "# Decisions Tracker\n\n### [Phase 1] Switched to sqlite\n"
	if err := os.WriteFile(w.DecisionsPath(), []byte(recorded), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	past := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := os.Chtimes(w.DecisionsPath(), past, past); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	if err := w.Append("dev", "work"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := w.ArchiveConversation(1); err != nil {
		t.Fatalf("ArchiveConversation() error = %v", err)
	}
	if err := w.ClearStatuses(); err != nil {
		t.Fatalf("ClearStatuses() error = %v", err)
	}

	if got := w.DecisionsContent(); got != recorded {
		t.Errorf("decisions content changed across rollover: %q", got)
	}
	if got := w.DecisionsModTime(); !got.Equal(past) {
		t.Errorf("decisions mtime changed across rollover: %v, want %v", got, past)
	}
}
