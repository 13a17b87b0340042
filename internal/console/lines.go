package console

import (
	"bufio"
	"errors"
	"io"
)

// ErrInputClosed is returned when the operator's input stream reaches EOF
// while a menu is waiting for an answer, e.g. when stdin is not a
// terminal.
var ErrInputClosed = errors.New("console: input closed")

// LineSource pumps an io.Reader into a channel of raw lines. Exactly one
// goroutine owns the underlying reader, so the monitor loop and the
// escalation menu can take turns consuming lines without fighting over
// stdin. Empty lines are delivered too; guidance entry relies on them.
type LineSource struct {
	ch chan string
}

// NewLineSource starts the pump. The channel closes when r hits EOF or
// errors.
func NewLineSource(r io.Reader) *LineSource {
	s := &LineSource{ch: make(chan string)}
	go s.pump(r)
	return s
}

func (s *LineSource) pump(r io.Reader) {
	defer close(s.ch)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.ch <- scanner.Text()
	}
}

// Lines is the stream of input lines, without trailing newlines.
func (s *LineSource) Lines() <-chan string { return s.ch }
