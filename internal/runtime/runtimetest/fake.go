// Package runtimetest provides a scripted in-memory runtime backend for
// tests. Replies are queued or computed per prompt; nothing sleeps and
// nothing leaves the process.
package runtimetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mandali-ai/mandali/internal/runtime"
)

// FakeClient implements runtime.Client. Every opened session is recorded
// so tests can inspect prompts and script replies.
type FakeClient struct {
	mu       sync.Mutex
	sessions []*FakeSession
	nextID   int

	// OnOpen, when set, configures each newly opened session before it is
	// returned to the code under test.
	OnOpen func(*FakeSession)

	// PingErr makes Ping fail.
	PingErr error
	// OpenErr makes OpenSession fail.
	OpenErr error
}

// NewFakeClient returns an empty fake backend.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// OpenSession records and returns a new fake session.
func (c *FakeClient) OpenSession(ctx context.Context, cfg runtime.SessionConfig) (runtime.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	c.nextID++
	s := &FakeSession{
		id:     fmt.Sprintf("fake-session-%d", c.nextID),
		cfg:    cfg,
		events: make(chan runtime.Event, 64),
	}
	if c.OnOpen != nil {
		c.OnOpen(s)
	}
	c.sessions = append(c.sessions, s)
	return s, nil
}

// ListModels reports a single fake model.
func (c *FakeClient) ListModels(ctx context.Context) ([]runtime.ModelInfo, error) {
	return []runtime.ModelInfo{{ID: "fake-model", Name: "fake-model"}}, nil
}

// Ping fails only if PingErr is set.
func (c *FakeClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PingErr
}

// Close is a no-op.
func (c *FakeClient) Close() error { return nil }

// Sessions returns every session opened so far, in open order.
func (c *FakeClient) Sessions() []*FakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*FakeSession, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// SessionCount returns how many sessions have been opened.
func (c *FakeClient) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

type scriptedReply struct {
	text   string
	err    error
	silent bool
}

// FakeSession implements runtime.Session with scripted replies. A Send
// consumes the responder first, then the queue; with neither, the reply is
// an empty TextFinal.
type FakeSession struct {
	id  string
	cfg runtime.SessionConfig

	mu        sync.Mutex
	events    chan runtime.Event
	prompts   []string
	queue     []scriptedReply
	responder func(prompt string) (string, bool)
	sendErr   error
	destroyed bool
}

// Queue appends a reply to be emitted for a future Send.
func (s *FakeSession) Queue(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scriptedReply{text: text})
}

// QueueError appends a failure to be emitted for a future Send.
func (s *FakeSession) QueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scriptedReply{err: err})
}

// QueueSilence appends a Send that produces no events at all, which is how
// a response timeout is provoked.
func (s *FakeSession) QueueSilence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scriptedReply{silent: true})
}

// Respond installs a dynamic responder consulted before the queue. A false
// second return means stay silent for that prompt.
func (s *FakeSession) Respond(fn func(prompt string) (string, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = fn
}

// SetSendErr makes every subsequent Send fail immediately.
func (s *FakeSession) SetSendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// Emit pushes a raw event onto the stream, for tests that need event
// sequences Send cannot script.
func (s *FakeSession) Emit(ev runtime.Event) {
	s.events <- ev
}

// Send records the prompt and synchronously emits the scripted reply.
func (s *FakeSession) Send(ctx context.Context, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return runtime.ErrSessionClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.prompts = append(s.prompts, prompt)

	if s.responder != nil {
		text, ok := s.responder(prompt)
		if !ok {
			return nil
		}
		s.events <- runtime.Event{Kind: runtime.EventTextFinal, Text: text}
		return nil
	}

	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		switch {
		case next.silent:
		case next.err != nil:
			s.events <- runtime.Event{Kind: runtime.EventError, Err: next.err}
		default:
			s.events <- runtime.Event{Kind: runtime.EventTextFinal, Text: next.text}
		}
		return nil
	}

	s.events <- runtime.Event{Kind: runtime.EventTextFinal, Text: ""}
	return nil
}

// Events returns the session's event stream.
func (s *FakeSession) Events() <-chan runtime.Event { return s.events }

// Destroy marks the session destroyed. The event channel stays open, as
// with the real backend.
func (s *FakeSession) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	return nil
}

// ID returns the fake session id.
func (s *FakeSession) ID() string { return s.id }

// Destroyed reports whether Destroy was called.
func (s *FakeSession) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Prompts returns every prompt sent so far.
func (s *FakeSession) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// LastPrompt returns the most recent prompt, or "" if none were sent.
func (s *FakeSession) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

// PromptCount returns how many prompts were sent.
func (s *FakeSession) PromptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Config returns the SessionConfig the session was opened with.
func (s *FakeSession) Config() runtime.SessionConfig { return s.cfg }
