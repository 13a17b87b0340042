package assembly

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mandali-ai/mandali/internal/runtime/runtimetest"
)

func newTestAssembler(t *testing.T, client *runtimetest.FakeClient) *Assembler {
	t.Helper()
	return New(client, Config{
		Model:            "test-model",
		Cap:              10,
		Timeout:          time.Second,
		WorkingDirectory: t.TempDir(),
	})
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		wantType    TaskType
		wantDomains []string
		wantErr     bool
	}{
		{
			name:        "canonical",
			reply:       `<classification>{"task_type": "mixed", "domains": ["tax law", "accounting"]}</classification>`,
			wantType:    TaskMixed,
			wantDomains: []string{"tax law", "accounting"},
		},
		{
			name:        "alias field names",
			reply:       `<classification>{"type": "non_software", "areas": ["beekeeping"]}</classification>`,
			wantType:    TaskNonSoftware,
			wantDomains: []string{"beekeeping"},
		},
		{
			name:     "prose around the block",
			reply:    "Sure, here is my assessment:\n<classification>\n{\"task_type\": \"software\", \"domains\": []}\n</classification>\nLet me know if you need more.",
			wantType: TaskSoftware,
		},
		{
			name:        "dashed and hybrid spellings",
			reply:       `<classification>{"task_type": "Non-Software", "domains": ["law"]}</classification>`,
			wantType:    TaskNonSoftware,
			wantDomains: []string{"law"},
		},
		{
			name:        "hybrid maps to mixed",
			reply:       `<classification>{"task_type": "hybrid", "domains": ["marketing"]}</classification>`,
			wantType:    TaskMixed,
			wantDomains: []string{"marketing"},
		},
		{
			name:        "blank domains dropped",
			reply:       `<classification>{"task_type": "mixed", "domains": ["law", "  ", ""]}</classification>`,
			wantType:    TaskMixed,
			wantDomains: []string{"law"},
		},
		{
			name:    "no tagged block",
			reply:   `{"task_type": "software", "domains": []}`,
			wantErr: true,
		},
		{
			name:    "invalid JSON",
			reply:   `<classification>{"task_type": "software",}</classification>`,
			wantErr: true,
		},
		{
			name:    "unknown task type",
			reply:   `<classification>{"task_type": "hardware", "domains": []}</classification>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, err := parseClassification(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseClassification() = %+v, want error", cls)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseClassification() error = %v", err)
			}
			if cls.Type != tt.wantType {
				t.Errorf("type = %q, want %q", cls.Type, tt.wantType)
			}
			if len(cls.Domains) != len(tt.wantDomains) {
				t.Fatalf("domains = %v, want %v", cls.Domains, tt.wantDomains)
			}
			for i, d := range tt.wantDomains {
				if cls.Domains[i] != d {
					t.Errorf("domains[%d] = %q, want %q", i, cls.Domains[i], d)
				}
			}
		})
	}
}

func TestClassifyStrictRetryRecovers(t *testing.T) {
	client := runtimetest.NewFakeClient()
	replies := []string{
		"I think this is probably a mixed task involving law.",
		`<classification>{"task_type": "mixed", "domains": ["law"]}</classification>`,
	}
	var prompts []string
	client.OnOpen = func(s *runtimetest.FakeSession) {
		s.Respond(func(prompt string) (string, bool) {
			prompts = append(prompts, prompt)
			reply := replies[0]
			replies = replies[1:]
			return reply, true
		})
	}

	a := newTestAssembler(t, client)
	cls := a.Classify(context.Background(), "draft a licensing contract")

	if cls.Type != TaskMixed || cls.Primary() != "law" {
		t.Errorf("Classify() = %+v, want mixed/law", cls)
	}
	if len(prompts) != 2 {
		t.Fatalf("query count = %d, want 2", len(prompts))
	}
	if !strings.Contains(prompts[1], "could not be parsed") {
		t.Errorf("retry prompt missing the reformatting instruction:\n%s", prompts[1])
	}
}

func TestClassifyFallsBackToSoftware(t *testing.T) {
	client := runtimetest.NewFakeClient()
	client.OnOpen = func(s *runtimetest.FakeSession) {
		s.Respond(func(string) (string, bool) { return "no tags here", true })
	}

	a := newTestAssembler(t, client)
	cls := a.Classify(context.Background(), "do something")

	if cls.Type != TaskSoftware {
		t.Errorf("type = %q, want %q", cls.Type, TaskSoftware)
	}
	if len(cls.Domains) != 0 {
		t.Errorf("domains = %v, want none", cls.Domains)
	}
	if got := client.SessionCount(); got != 2 {
		t.Errorf("session count = %d, want 2 (one query plus one retry)", got)
	}
}

func TestClassifySessionsAreDestroyed(t *testing.T) {
	client := runtimetest.NewFakeClient()
	client.OnOpen = func(s *runtimetest.FakeSession) {
		s.Respond(func(string) (string, bool) {
			return `<classification>{"task_type": "software", "domains": []}</classification>`, true
		})
	}

	a := newTestAssembler(t, client)
	a.Classify(context.Background(), "build a web app")

	for i, s := range client.Sessions() {
		if !s.Destroyed() {
			t.Errorf("session %d left open after classification", i)
		}
	}
}
