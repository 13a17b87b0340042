package assembly

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// TaskType is the classification of a task relative to the default
// software roster.
type TaskType string

const (
	// TaskSoftware means the default team covers the whole task.
	TaskSoftware TaskType = "software"
	// TaskNonSoftware means none of the task is software work.
	TaskNonSoftware TaskType = "non_software"
	// TaskMixed means the task needs the default team plus synthesized
	// domain workers.
	TaskMixed TaskType = "mixed"
)

// Classification is the assembly pipeline's view of a task: its type and
// the ordered subject-matter domains, most central first.
type Classification struct {
	Type    TaskType
	Domains []string
}

// Primary returns the first-listed domain, or "" when there is none.
func (c Classification) Primary() string {
	if len(c.Domains) == 0 {
		return ""
	}
	return c.Domains[0]
}

// classificationPattern extracts the tagged JSON block from a
// classification reply.
var classificationPattern = regexp.MustCompile(`(?s)<classification>\s*(.*?)\s*</classification>`)

// Classify asks the runtime what kind of task this is. An unparseable
// reply gets one stricter retry; if that also fails the classification
// falls back to pure software, which keeps the trusted default roster
// and never synthesizes workers on garbage input.
func (a *Assembler) Classify(ctx context.Context, task string) Classification {
	reply, err := a.oneShot(ctx, classifyPrompt(task))
	if err == nil {
		if cls, perr := parseClassification(reply); perr == nil {
			return cls
		}
	} else {
		a.log.Warn("classification query failed", "error", err)
	}

	reply, err = a.oneShot(ctx, strictClassifyPrompt(task))
	if err != nil {
		a.log.Warn("classification retry failed", "error", err)
		return Classification{Type: TaskSoftware}
	}
	cls, perr := parseClassification(reply)
	if perr != nil {
		a.log.Warn("classification unparseable after retry", "error", perr)
		return Classification{Type: TaskSoftware}
	}
	return cls
}

// parseClassification extracts and normalizes the tagged classification
// block. It tolerates the field-name variants models drift into.
func parseClassification(reply string) (Classification, error) {
	matches := classificationPattern.FindStringSubmatch(reply)
	if len(matches) < 2 {
		return Classification{}, fmt.Errorf("no classification found in output (expected <classification>JSON</classification>)")
	}

	var raw struct {
		TaskType string   `json:"task_type"`
		Type     string   `json:"type"` // alternative name
		Domains  []string `json:"domains"`
		Areas    []string `json:"areas"` // alternative name
	}
	if err := json.Unmarshal([]byte(matches[1]), &raw); err != nil {
		return Classification{}, fmt.Errorf("parse classification JSON: %w", err)
	}

	typeTag := raw.TaskType
	if typeTag == "" {
		typeTag = raw.Type
	}
	taskType, err := normalizeTaskType(typeTag)
	if err != nil {
		return Classification{}, err
	}

	domains := raw.Domains
	if len(domains) == 0 {
		domains = raw.Areas
	}
	cleaned := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			cleaned = append(cleaned, d)
		}
	}
	return Classification{Type: taskType, Domains: cleaned}, nil
}

// normalizeTaskType maps the type tag's spelling variants onto the
// closed set.
func normalizeTaskType(tag string) (TaskType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "-", "_") {
	case "software":
		return TaskSoftware, nil
	case "non_software", "nonsoftware":
		return TaskNonSoftware, nil
	case "mixed", "hybrid":
		return TaskMixed, nil
	default:
		return "", fmt.Errorf("unknown task type %q", tag)
	}
}

func classifyPrompt(task string) string {
	return fmt.Sprintf(`A team of autonomous AI workers is being assembled for a task. Classify the task.

Task:
%s

The default team covers software work: developer, security reviewer, project manager, QA, SRE.

Respond with ONLY this tagged block:
<classification>
{"task_type": "software" | "non_software" | "mixed", "domains": ["most central domain", "next domain", ...]}
</classification>

Rules:
- "software": the default team can do all of it; leave domains empty
- "non_software": none of it is software work; list every subject-matter domain it needs, most central first
- "mixed": it needs software work AND other expertise; list only the non-software domains, most central first`, task)
}

func strictClassifyPrompt(task string) string {
	return fmt.Sprintf(`Your previous reply could not be parsed. Classify the task again.

Task:
%s

Output ONLY the tagged block below, with valid JSON inside, and nothing else. No prose, no code fences.

<classification>
{"task_type": "software", "domains": []}
</classification>

task_type must be exactly one of: software, non_software, mixed.`, task)
}
