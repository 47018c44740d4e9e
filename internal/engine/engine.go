// Package engine drives one chat console: it routes input lines by the
// interaction mode of the current channel, dispatches commands and runs the
// prompt-improvement workflows against the completion provider.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chai-cli/chai-cli/internal/character"
	"github.com/chai-cli/chai-cli/internal/history"
	"github.com/chai-cli/chai-cli/internal/provider"
	"github.com/chai-cli/chai-cli/internal/store"
	"github.com/chai-cli/chai-cli/internal/theme"
)

var (
	// ErrQuit is returned by HandleLine when the user asked to exit.
	ErrQuit = errors.New("quit")
	// ErrEmptyReply means the model answered with nothing usable.
	ErrEmptyReply = errors.New("AI returned an empty reply")
)

// Output receives everything the engine shows to the user.
type Output interface {
	Info(text string)
	OK(text string)
	Error(text string)
	// Chat prints one conversation message; role is a theme role.
	Chat(role, speaker, text string)
	StreamStart(speaker string)
	StreamChunk(text string)
	StreamEnd()
	// Busy shows a progress indicator until done is called.
	Busy(label string) (done func())
}

// Prober finds a reachable completion endpoint.
type Prober interface {
	Probe(ctx context.Context) (provider.ProbeResult, error)
}

type Options struct {
	ConvoModel string
	SysModel   string
	Prefix     string
	Username   string
	// Threshold is the default selfimprove grade; MaxRounds > 0 caps the loop.
	Threshold int
	MaxRounds int
	Prober    Prober
	Theme     *theme.Theme
	Log       *zap.Logger
}

type Engine struct {
	Provider provider.Provider
	History  *history.Store
	Files    *store.Store
	Out      Output
	Theme    *theme.Theme
	Prober   Prober
	Log      *zap.Logger

	ConvoModel string
	SysModel   string
	Prefix     string
	Username   string
	Threshold  int
	MaxRounds  int

	current  history.Channel
	sessions map[history.Channel]*Session
	models   []string
	commands *Dispatcher
}

func New(p provider.Provider, files *store.Store, out Output, opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	th := opts.Theme
	if th == nil {
		th = theme.Default()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "!"
	}
	e := &Engine{
		Provider:   p,
		History:    history.New(files, character.WelcomePrompt(prefix), log.Named("history")),
		Files:      files,
		Out:        out,
		Theme:      th,
		Prober:     opts.Prober,
		Log:        log,
		ConvoModel: opts.ConvoModel,
		SysModel:   opts.SysModel,
		Prefix:     prefix,
		Username:   opts.Username,
		Threshold:  opts.Threshold,
		MaxRounds:  opts.MaxRounds,
		current:    history.Default,
		sessions:   make(map[history.Channel]*Session),
	}
	e.commands = e.registerCommands()
	e.History.Load(history.Default)
	return e
}

// Current returns the active channel.
func (e *Engine) Current() history.Channel {
	return e.current
}

// State returns the interaction mode of the active channel.
func (e *Engine) State() State {
	return e.session(e.current).State()
}

// Prompt is the input prompt label for the active channel.
func (e *Engine) Prompt() string {
	if e.State() == AwaitingMultilineInput {
		return fmt.Sprintf("[%s] %s ... ", e.current, e.Username)
	}
	return fmt.Sprintf("[%s] %s > ", e.current, e.Username)
}

// Start checks connectivity, greets the user and opens the default channel.
func (e *Engine) Start(ctx context.Context) {
	e.checkConnection(ctx)
	e.Out.Info(fmt.Sprintf("Welcome to chai version %s! Logged in as %s.", character.Version, e.Username))
	e.switchTo(history.Default)
	e.Out.Info(fmt.Sprintf("Switched to default character channel: %s", history.Default))
	e.Out.Info(fmt.Sprintf("Type %shelp for a list of commands.", e.Prefix))
}

// HandleLine processes one line of user input. Failures are reported through
// Out; the only error returned is ErrQuit.
func (e *Engine) HandleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	s := e.session(e.current)
	switch p := s.Pending.(type) {
	case *YesNo:
		if handled, err := e.handleYesNo(s, p, line); handled {
			return e.settle(err)
		}
	case *Review:
		return e.settle(e.handleReview(ctx, s, p, line))
	case *Multiline:
		return e.settle(e.handleMultiline(ctx, s, p, line))
	}
	if strings.HasPrefix(line, e.Prefix) {
		name, arg := parseCommand(strings.TrimPrefix(line, e.Prefix))
		return e.settle(e.dispatch(ctx, name, arg))
	}
	return e.settle(e.chat(ctx, line))
}

func (e *Engine) settle(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrQuit) {
		return err
	}
	e.report(err)
	return nil
}

func (e *Engine) report(err error) {
	var ue *usageError
	if errors.As(err, &ue) {
		e.Out.Error("Usage: " + e.Prefix + ue.usage)
		return
	}
	e.Log.Debug("command failed", zap.String("channel", string(e.current)), zap.Error(err))
	e.Out.Error("Error: " + err.Error())
}

func (e *Engine) speaker(ch history.Channel, role string) string {
	switch role {
	case provider.RoleUser:
		return e.Username
	case provider.RoleAssistant:
		if ch == history.Default {
			return character.DefaultSpeaker
		}
		return string(ch)
	}
	return role
}

func (e *Engine) switchTo(ch history.Channel) {
	e.current = ch
	e.History.Load(ch)
	e.session(ch)
	e.Log.Debug("channel switch", zap.String("channel", string(ch)))
}

func (e *Engine) saveLog(ch history.Channel) {
	path, err := e.Files.SaveLog(string(ch), e.History.Messages(ch))
	if err != nil {
		e.Out.Error(fmt.Sprintf("Error saving conversation: %v", err))
		return
	}
	e.Out.Info(fmt.Sprintf("Conversation saved as %s.", path))
}

// ask sends a single user instruction to model and returns the cleaned reply.
func (e *Engine) ask(ctx context.Context, label, model, instruction string) (string, error) {
	done := e.Out.Busy(label)
	reply, err := e.Provider.Complete(ctx, model, []provider.Message{{Role: provider.RoleUser, Content: instruction}})
	done()
	if err != nil {
		return "", err
	}
	reply = character.ProcessReply(reply)
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// respond streams a conversation-model reply to the history of ch and
// appends it once complete.
func (e *Engine) respond(ctx context.Context, ch history.Channel) error {
	msgs := e.History.Messages(ch)
	var sb strings.Builder
	e.Out.StreamStart(e.speaker(ch, provider.RoleAssistant))
	err := e.Provider.ChatStream(ctx, e.ConvoModel, msgs, func(d provider.StreamDelta) {
		if d.Content == "" {
			return
		}
		sb.WriteString(d.Content)
		e.Out.StreamChunk(d.Content)
	})
	e.Out.StreamEnd()
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	reply := sb.String()
	if strings.TrimSpace(reply) == "" {
		return ErrEmptyReply
	}
	e.History.Append(ch, provider.Message{Role: provider.RoleAssistant, Content: reply})
	e.Log.Debug("assistant reply", zap.String("channel", string(ch)), zap.Int("len", len(reply)))
	return nil
}

func (e *Engine) chat(ctx context.Context, line string) error {
	e.History.Append(e.current, provider.Message{Role: provider.RoleUser, Content: line})
	return e.respond(ctx, e.current)
}

func (e *Engine) checkConnection(ctx context.Context) {
	if e.Prober == nil {
		e.Out.Error("No completion endpoints configured.")
		return
	}
	done := e.Out.Busy("Checking connection")
	res, err := e.Prober.Probe(ctx)
	done()
	if err != nil {
		e.Out.Error("Not connected to any completion API.")
		return
	}
	e.Out.OK(res.String())
}
