package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/mandali-ai/mandali/internal/stall"
)

// rawTailBytes is how much raw conversation the "view recent
// conversation" option shows.
const rawTailBytes = 5000

// Escalator presents stalled-run escalations on the terminal and blocks
// until the operator picks an option. It consumes lines from a shared
// LineSource; the caller must not read from that source concurrently.
type Escalator struct {
	c     *Console
	lines *LineSource
}

// NewEscalator wires the terminal escalation menu.
func NewEscalator(c *Console, lines *LineSource) *Escalator {
	return &Escalator{c: c, lines: lines}
}

// Escalate shows the escalation panel and loops on the menu until the
// operator provides guidance or aborts. Viewing the conversation returns
// to the menu.
func (e *Escalator) Escalate(ctx context.Context, esc stall.Escalation) (stall.Resolution, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The team has stalled (%s). Current status:\n%s", esc.Reason, FormatStatusLines(esc.Statuses))
	if esc.Summary != "" {
		fmt.Fprintf(&b, "\n\nWhat the workers seem to need:\n%s", esc.Summary)
	}
	fmt.Fprintf(&b, "\n\nConversation: %s", esc.ConversationPath)
	b.WriteString("\n\nOptions:\n  1. Provide guidance\n  2. View recent conversation\n  3. Abort the run")
	e.c.Panel("HUMAN ESCALATION", b.String())

	for {
		e.c.Print("Choose [1/2/3]: ")
		choice, err := e.readLine(ctx)
		if err != nil {
			return stall.Resolution{}, err
		}

		switch strings.TrimSpace(choice) {
		case "1":
			guidance, err := e.readGuidance(ctx)
			if err != nil {
				return stall.Resolution{}, err
			}
			if guidance == "" {
				e.c.Println("No guidance entered.")
				continue
			}
			return stall.Resolution{Guidance: guidance}, nil

		case "2":
			e.c.Panel("Recent Conversation", e.conversationTail(esc))

		case "3":
			return stall.Resolution{Abort: true}, nil

		default:
			e.c.Println(errorStyle.Render("Invalid choice."))
		}
	}
}

// readGuidance collects lines until the first empty one.
func (e *Escalator) readGuidance(ctx context.Context) (string, error) {
	e.c.Println("Enter guidance for the team (finish with an empty line):")
	var lines []string
	for {
		line, err := e.readLine(ctx)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) == "" {
			return strings.TrimSpace(strings.Join(lines, "\n")), nil
		}
		lines = append(lines, line)
	}
}

func (e *Escalator) conversationTail(esc stall.Escalation) string {
	if esc.Tail == nil {
		return "(no conversation yet)"
	}
	tail, err := esc.Tail(rawTailBytes)
	if err != nil || strings.TrimSpace(tail) == "" {
		return "(no conversation yet)"
	}
	return tail
}

func (e *Escalator) readLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-e.lines.Lines():
		if !ok {
			return "", ErrInputClosed
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
