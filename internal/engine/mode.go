package engine

import (
	"go.uber.org/zap"

	"github.com/chai-cli/chai-cli/internal/history"
)

// State is the interaction mode of a channel.
type State int

const (
	Normal State = iota
	AwaitingConfirmation
	AwaitingMultilineInput
)

func (s State) String() string {
	switch s {
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case AwaitingMultilineInput:
		return "awaiting_multiline_input"
	default:
		return "normal"
	}
}

// Pending is the request a channel is waiting on. A nil Pending means the
// channel is in Normal mode.
type Pending interface {
	state() State
}

// YesNo waits for yes, no or cancel.
type YesNo struct {
	Command string
}

// Review holds a candidate System prompt waiting for confirm, get, retry or
// cancel.
type Review struct {
	Command   string
	OldPrompt string
	NewPrompt string
	Feedback  string
	Summary   string
}

// Multiline accumulates lines until continue or cancel. Questionset also
// walks Questions, collecting one entry of Answers per question.
type Multiline struct {
	Command   string
	Buffer    string
	Questions []string
	Answers   []string
	Index     int
}

func (*YesNo) state() State     { return AwaitingConfirmation }
func (*Review) state() State    { return AwaitingConfirmation }
func (*Multiline) state() State { return AwaitingMultilineInput }

func (m *Multiline) add(line string) {
	if m.Buffer == "" {
		m.Buffer = line
		return
	}
	m.Buffer += "\n" + line
}

func commandOf(p Pending) string {
	switch p := p.(type) {
	case *YesNo:
		return p.Command
	case *Review:
		return p.Command
	case *Multiline:
		return p.Command
	}
	return ""
}

// Session is the per-channel interaction state.
type Session struct {
	Channel history.Channel
	Pending Pending
}

func (s *Session) State() State {
	if s.Pending == nil {
		return Normal
	}
	return s.Pending.state()
}

// Session returns the session of ch, if one was created.
func (e *Engine) Session(ch history.Channel) (*Session, bool) {
	s, ok := e.sessions[ch]
	return s, ok
}

func (e *Engine) session(ch history.Channel) *Session {
	s, ok := e.sessions[ch]
	if !ok {
		s = &Session{Channel: ch}
		e.sessions[ch] = s
	}
	return s
}

func (e *Engine) removeSession(ch history.Channel) {
	delete(e.sessions, ch)
}

func (e *Engine) setPending(s *Session, p Pending) {
	e.Log.Debug("mode change",
		zap.String("channel", string(s.Channel)),
		zap.Stringer("from", s.State()),
		zap.Stringer("to", p.state()),
		zap.String("command", commandOf(p)))
	s.Pending = p
}

func (e *Engine) clearPending(s *Session) {
	if s.Pending == nil {
		return
	}
	e.Log.Debug("mode change",
		zap.String("channel", string(s.Channel)),
		zap.Stringer("from", s.State()),
		zap.Stringer("to", Normal))
	s.Pending = nil
}
