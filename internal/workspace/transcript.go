package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// OrchestratorSender is the distinguished sender tag used for control
// messages. Workers watch for this tag when scanning for termination and
// pause signals.
const OrchestratorSender = "ORCHESTRATOR"

// HumanSender is the distinguished sender tag for injected human guidance.
const HumanSender = "HUMAN"

// Message is one parsed conversation entry.
type Message struct {
	Time   string // wall-clock stamp as written, HH:MM:SS
	Sender string // upper-cased sender tag, without the @ prefix
	Body   string // message body, trailing whitespace trimmed
}

// messagePattern matches one conversation entry. Bodies run until the next
// entry header or end of input.
var messagePattern = regexp.MustCompile(`(?s)\[(\d{2}:\d{2}:\d{2})\]\s+@(\w+):\s*(.*?)(?:\n\[|\z)`)

// Append appends a message to the conversation log. The sender tag is
// upper-cased and the body trimmed; the entry format is
//
//	[HH:MM:SS] @SENDER: body\n\n
//
// Appends are serialized under the store mutex and use O_APPEND so entries
// never interleave, even when several worker loops write at once.
func (w *Workspace) Append(sender, body string) error {
	entry := fmt.Sprintf("[%s] @%s: %s\n\n",
		time.Now().Format("15:04:05"),
		strings.ToUpper(sender),
		strings.TrimSpace(body))

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.ConversationPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("workspace: open conversation for append: %w", err)
	}
	if _, err := f.WriteString(entry); err != nil {
		_ = f.Close()
		return fmt.Errorf("workspace: append to conversation: %w", err)
	}
	return f.Close()
}

// Conversation returns the full conversation log. A missing file reads as
// empty, not as an error: a fresh round starts with no conversation.
func (w *Workspace) Conversation() (string, error) {
	data, err := os.ReadFile(w.ConversationPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("workspace: read conversation: %w", err)
	}
	return string(data), nil
}

// ConversationSince returns the content appended after the given byte
// offset and the new end-of-file offset. Offsets beyond the current length
// (possible after an archive swapped in a fresh file) reset to the start.
func (w *Workspace) ConversationSince(offset int) (string, int, error) {
	content, err := w.Conversation()
	if err != nil {
		return "", offset, err
	}
	if offset > len(content) || offset < 0 {
		offset = 0
	}
	return content[offset:], len(content), nil
}

// Tail returns up to maxBytes from the end of the conversation log.
func (w *Workspace) Tail(maxBytes int) (string, error) {
	content, err := w.Conversation()
	if err != nil {
		return "", err
	}
	if len(content) <= maxBytes {
		return content, nil
	}
	return content[len(content)-maxBytes:], nil
}

// LastActivity returns the modification time of the conversation log, or
// the zero time if the log does not exist yet.
func (w *Workspace) LastActivity() time.Time {
	info, err := os.Stat(w.ConversationPath())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// MessageCount returns the number of entries in the conversation log.
func (w *Workspace) MessageCount() (int, error) {
	content, err := w.Conversation()
	if err != nil {
		return 0, err
	}
	return CountMessages(content), nil
}

// CountMessages counts conversation entries in raw log content by entry
// boundaries.
func CountMessages(content string) int {
	n := strings.Count(content, "\n[")
	if strings.HasPrefix(content, "[") {
		n++
	}
	return n
}

// ParseMessages parses raw conversation content into entries. Multi-line
// bodies are kept whole; malformed regions are skipped rather than
// reported, since worker output occasionally contains stray brackets.
func ParseMessages(content string) []Message {
	var msgs []Message
	for len(content) > 0 {
		loc := messagePattern.FindStringSubmatchIndex(content)
		if loc == nil {
			break
		}
		msgs = append(msgs, Message{
			Time:   content[loc[2]:loc[3]],
			Sender: content[loc[4]:loc[5]],
			Body:   strings.TrimSpace(content[loc[6]:loc[7]]),
		})
		// The pattern consumes the "\n[" of the next header; back up one
		// byte so the next match sees its opening bracket.
		next := loc[1]
		if next < len(content) && content[next-1] == '[' {
			next--
		}
		if next <= 0 || next >= len(content) {
			break
		}
		content = content[next:]
	}
	return msgs
}

// FirstMeaningfulLine collapses a message body to its first line that is
// neither empty nor markdown scaffolding, for one-line previews.
func FirstMeaningfulLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "---") || strings.HasPrefix(line, "```") {
			continue
		}
		return line
	}
	return "(no text)"
}

// ArchiveConversation renames the conversation log to a timestamped
// per-round archive and starts a fresh empty log. It returns the archive
// file name. The decisions tracker and all other artifacts are untouched.
func (w *Workspace) ArchiveConversation(round int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := fmt.Sprintf("conversation-round-%d-%s.txt", round, time.Now().Format("2006_Jan_02-15_04_05"))
	if _, err := os.Stat(w.ConversationPath()); err == nil {
		if err := os.Rename(w.ConversationPath(), filepath.Join(w.ArtifactsDir(), name)); err != nil {
			return "", fmt.Errorf("workspace: archive conversation: %w", err)
		}
	}
	if err := touch(w.ConversationPath()); err != nil {
		return "", err
	}
	return name, nil
}
