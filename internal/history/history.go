// Package history keeps the ordered message history of every channel.
//
// The first message of a loaded channel is always its System prompt. The
// durable copy of that prompt lives in a PromptStore; the history only caches
// it and mirrors every replacement back to the store.
package history

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chai-cli/chai-cli/internal/character"
	"github.com/chai-cli/chai-cli/internal/provider"
)

type Channel string

// Default is the welcome channel.
const Default Channel = character.DefaultName

const hintPrefix = "Hint:"

type Message = provider.Message

// PromptStore reads and writes Character Prompt Files.
type PromptStore interface {
	ReadPrompt(name string) (string, error)
	WritePrompt(name, text string) error
}

type Store struct {
	prompts PromptStore
	welcome string
	log     *zap.Logger

	channels map[Channel][]Message
}

// New returns a store backed by prompts. welcome is the System prompt of the
// default channel.
func New(prompts PromptStore, welcome string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		prompts:  prompts,
		welcome:  welcome,
		log:      log,
		channels: make(map[Channel][]Message),
	}
}

func (s *Store) Has(ch Channel) bool {
	_, ok := s.channels[ch]
	return ok
}

// Load initialises the history of ch if it has none yet and returns it.
func (s *Store) Load(ch Channel) []Message {
	if msgs, ok := s.channels[ch]; ok && len(msgs) > 0 {
		return s.Messages(ch)
	}
	prompt := s.welcome
	if ch != Default {
		prompt = character.DefaultPrompt
		text, err := s.prompts.ReadPrompt(string(ch))
		switch {
		case err != nil:
			s.log.Debug("prompt file unavailable, using default", zap.String("channel", string(ch)), zap.Error(err))
		case strings.TrimSpace(text) == "":
			s.log.Debug("prompt file empty, using default", zap.String("channel", string(ch)))
		default:
			prompt = strings.TrimSpace(text)
		}
	}
	s.channels[ch] = []Message{{Role: provider.RoleSystem, Content: prompt}}
	return s.Messages(ch)
}

// Messages returns a copy of the history of ch.
func (s *Store) Messages(ch Channel) []Message {
	msgs := s.channels[ch]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

func (s *Store) Len(ch Channel) int {
	return len(s.channels[ch])
}

func (s *Store) Append(ch Channel, m Message) {
	s.Load(ch)
	s.channels[ch] = append(s.channels[ch], m)
}

// Set replaces the whole history of ch.
func (s *Store) Set(ch Channel, msgs []Message) {
	cp := make([]Message, len(msgs))
	copy(cp, msgs)
	s.channels[ch] = cp
}

// Remove forgets ch entirely.
func (s *Store) Remove(ch Channel) {
	delete(s.channels, ch)
}

// Clear drops everything but a leading System message.
func (s *Store) Clear(ch Channel) {
	msgs := s.channels[ch]
	if len(msgs) > 0 && msgs[0].Role == provider.RoleSystem {
		s.channels[ch] = msgs[:1:1]
		return
	}
	s.channels[ch] = nil
}

// System returns the System prompt at position 0.
func (s *Store) System(ch Channel) (string, bool) {
	msgs := s.channels[ch]
	if len(msgs) == 0 || msgs[0].Role != provider.RoleSystem {
		return "", false
	}
	return msgs[0].Content, true
}

// ReplaceSystem sets the System prompt of ch, inserting it if absent, and
// writes it to the prompt file. The in-memory change stays even when the
// write fails; the write error is returned.
func (s *Store) ReplaceSystem(ch Channel, text string) error {
	msgs := s.channels[ch]
	sys := Message{Role: provider.RoleSystem, Content: text}
	if len(msgs) > 0 && msgs[0].Role == provider.RoleSystem {
		msgs[0] = sys
	} else {
		msgs = append([]Message{sys}, msgs...)
	}
	s.channels[ch] = msgs
	s.log.Debug("system prompt replaced", zap.String("channel", string(ch)), zap.Int("len", len(text)))

	if ch == Default {
		return nil
	}
	if err := s.prompts.WritePrompt(string(ch), text); err != nil {
		return fmt.Errorf("save system prompt: %w", err)
	}
	return nil
}

// Reload replaces the history of ch with the prompt file content. It reports
// false when the file is missing, unreadable or empty.
func (s *Store) Reload(ch Channel) bool {
	if ch == Default {
		return false
	}
	text, err := s.prompts.ReadPrompt(string(ch))
	if err != nil {
		s.log.Debug("reload failed", zap.String("channel", string(ch)), zap.Error(err))
		return false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	s.channels[ch] = []Message{{Role: provider.RoleSystem, Content: text}}
	return true
}

func (s *Store) Last(ch Channel) (Message, bool) {
	msgs := s.channels[ch]
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// LastOf returns the most recent message with role.
func (s *Store) LastOf(ch Channel, role string) (Message, bool) {
	msgs := s.channels[ch]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i], true
		}
	}
	return Message{}, false
}

// RemoveTrailingIf pops the last message when pred holds for it.
func (s *Store) RemoveTrailingIf(ch Channel, pred func(Message) bool) (Message, bool) {
	msgs := s.channels[ch]
	if len(msgs) == 0 || !pred(msgs[len(msgs)-1]) {
		return Message{}, false
	}
	last := msgs[len(msgs)-1]
	s.channels[ch] = msgs[:len(msgs)-1]
	return last, true
}

// RemoveLastIf removes the most recent message matching pred, wherever it is.
func (s *Store) RemoveLastIf(ch Channel, pred func(Message) bool) bool {
	msgs := s.channels[ch]
	for i := len(msgs) - 1; i >= 0; i-- {
		if pred(msgs[i]) {
			s.channels[ch] = append(msgs[:i:i], msgs[i+1:]...)
			return true
		}
	}
	return false
}

// ReplaceLast overwrites the content of the most recent message with role.
func (s *Store) ReplaceLast(ch Channel, role, content string) bool {
	msgs := s.channels[ch]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			msgs[i].Content = content
			return true
		}
	}
	return false
}

// PruneAfterLast removes the messages matching pred that follow the most
// recent message with anchor role. It reports whether the anchor exists.
func (s *Store) PruneAfterLast(ch Channel, anchor string, pred func(Message) bool) bool {
	msgs := s.channels[ch]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != anchor {
			continue
		}
		kept := msgs[: i+1 : i+1]
		for _, m := range msgs[i+1:] {
			if !pred(m) {
				kept = append(kept, m)
			}
		}
		s.channels[ch] = kept
		return true
	}
	return false
}

// UpsertHint sets the "Hint:" System message right after the System prompt.
func (s *Store) UpsertHint(ch Channel, text string) {
	hint := Message{Role: provider.RoleSystem, Content: hintPrefix + " " + text}
	msgs := s.Load(ch)
	if len(msgs) > 1 && IsHint(msgs[1]) {
		msgs[1] = hint
	} else {
		msgs = append(msgs[:1:1], append([]Message{hint}, msgs[1:]...)...)
	}
	s.channels[ch] = msgs
}

// AppendHint adds a "Hint:" System message at the end of the history.
func (s *Store) AppendHint(ch Channel, text string) {
	s.Append(ch, Message{Role: provider.RoleSystem, Content: hintPrefix + " " + text})
}

func IsHint(m Message) bool {
	return m.Role == provider.RoleSystem && strings.HasPrefix(m.Content, hintPrefix)
}

func Is(role string) func(Message) bool {
	return func(m Message) bool { return m.Role == role }
}

// ErrNoSystem is returned by callers that need an existing System prompt.
var ErrNoSystem = errors.New("no existing system prompt found")
