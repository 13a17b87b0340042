package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Collect sends a prompt and folds the session's event stream into the
// final reply text. A TextFinal event supersedes accumulated deltas; Idle
// ends the turn with whatever accumulated. On timeout the partial text is
// returned together with ErrResponseTimeout so callers can decide whether
// a truncated reply is still useful.
func Collect(ctx context.Context, clock clockwork.Clock, s Session, prompt string, timeout time.Duration) (string, error) {
	if err := s.Send(ctx, prompt); err != nil {
		return "", err
	}

	timer := clock.NewTimer(timeout)
	defer timer.Stop()

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return strings.TrimSpace(sb.String()), ctx.Err()

		case <-timer.Chan():
			return strings.TrimSpace(sb.String()), ErrResponseTimeout

		case ev, ok := <-s.Events():
			if !ok {
				return strings.TrimSpace(sb.String()), ErrSessionClosed
			}
			switch ev.Kind {
			case EventTextDelta:
				sb.WriteString(ev.Text)
			case EventTextFinal:
				return strings.TrimSpace(ev.Text), nil
			case EventIdle:
				return strings.TrimSpace(sb.String()), nil
			case EventError:
				return strings.TrimSpace(sb.String()), ev.Err
			case EventToolStart, EventToolEnd:
				// Tool chatter resets nothing; the turn is still going.
			}
		}
	}
}
