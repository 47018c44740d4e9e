package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/chai-cli/chai-cli/internal/character"
	"github.com/chai-cli/chai-cli/internal/history"
	"github.com/chai-cli/chai-cli/internal/provider"
)

// handleYesNo consumes yes, no and cancel. Any other line is not handled and
// is routed as if nothing were pending.
func (e *Engine) handleYesNo(s *Session, y *YesNo, line string) (bool, error) {
	switch strings.ToLower(line) {
	case "yes":
		e.clearPending(s)
		switch y.Command {
		case "clearbackstory":
			e.History.Clear(s.Channel)
			e.Out.OK("Backstory cleared.")
		case "delete":
			return true, e.deleteCharacter(s.Channel)
		}
		return true, nil
	case "no", "cancel":
		e.clearPending(s)
		e.Out.Info(fmt.Sprintf("%s command canceled.", y.Command))
		return true, nil
	}
	return false, nil
}

func (e *Engine) handleMultiline(ctx context.Context, s *Session, m *Multiline, line string) error {
	lower := strings.ToLower(line)
	if lower == "cancel" {
		e.clearPending(s)
		e.Out.Info("Multiline input canceled.")
		return nil
	}
	if m.Command == "questionset" {
		switch {
		case m.Index == 0:
			m.Answers = append(m.Answers, line)
		case lower == "continue":
			m.Answers = append(m.Answers, m.Buffer)
			m.Buffer = ""
		default:
			m.add(line)
			e.Out.Info("Current input:\n" + m.Buffer)
			return nil
		}
		m.Index++
		return e.nextQuestion(ctx, s, m)
	}
	if lower == "continue" {
		e.clearPending(s)
		return e.submit(ctx, s.Channel, m)
	}
	m.add(line)
	e.Out.Info("Current multiline input:\n" + m.Buffer)
	return nil
}

func (e *Engine) nextQuestion(ctx context.Context, s *Session, m *Multiline) error {
	if m.Index < len(m.Questions) {
		e.Out.Info(m.Questions[m.Index] + " (type 'continue' when done or 'cancel' to abort)")
		return nil
	}
	e.clearPending(s)
	return e.generatePrompt(ctx, s.Channel, "questionset", character.QuestionsetInstruction(m.Answers))
}

func (e *Engine) submit(ctx context.Context, ch history.Channel, m *Multiline) error {
	text := strings.TrimSpace(m.Buffer)
	if text == "" {
		e.Out.Info("No input received; nothing changed.")
		return nil
	}
	switch m.Command {
	case "set":
		return e.generatePrompt(ctx, ch, "set", character.SetInstruction(text))
	case "rawset":
		if err := e.History.ReplaceSystem(ch, text); err != nil {
			return err
		}
		e.Out.OK("System prompt set manually via rawset.")
	case "dialogue":
		e.History.Append(ch, provider.Message{Role: provider.RoleUser, Content: text})
		return e.respond(ctx, ch)
	}
	return nil
}

// generatePrompt asks the system model for a new System prompt and installs it.
func (e *Engine) generatePrompt(ctx context.Context, ch history.Channel, via, instruction string) error {
	prompt, err := e.ask(ctx, "Generating backstory", e.SysModel, instruction)
	if err != nil {
		return fmt.Errorf("%s: %w", via, err)
	}
	if err := e.History.ReplaceSystem(ch, prompt); err != nil {
		return err
	}
	e.Out.OK(fmt.Sprintf("System prompt updated via %s.", via))
	return nil
}
