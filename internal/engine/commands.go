package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/chai-cli/chai-cli/internal/character"
	"github.com/chai-cli/chai-cli/internal/history"
	"github.com/chai-cli/chai-cli/internal/provider"
	"github.com/chai-cli/chai-cli/internal/store"
	"github.com/chai-cli/chai-cli/internal/theme"
)

func (e *Engine) registerCommands() *Dispatcher {
	d := &Dispatcher{}

	d.Add(NewGroup("characters").
		Register(&Command{Name: "create", Usage: "create <character_name>", Summary: "Create a new character", Run: e.cmdCreate}).
		Register(&Command{Name: "duplicate", Usage: "duplicate <new_name>", Summary: "Duplicate the current character", Run: e.cmdDuplicate}).
		Register(&Command{Name: "delete", Usage: "delete", Summary: "Delete the current character", Run: e.cmdDelete}).
		Register(&Command{Name: "character", Usage: "character <name>", Summary: "Switch character (saves the current conversation)", Run: e.cmdCharacter}).
		Register(&Command{Name: "characterlist", Usage: "characterlist [remake]", Summary: "List characters with one-line summaries", Run: e.cmdCharacterList}).
		Register(&Command{Name: "clear", Usage: "clear", Summary: "Clear the conversation, keep the backstory", Run: e.cmdClear}).
		Register(&Command{Name: "clearbackstory", Usage: "clearbackstory", Summary: "Clear the conversation after confirmation", Run: e.cmdClearBackstory}).
		Register(&Command{Name: "reload", Usage: "reload", Summary: "Reload the system prompt from its file", Run: e.cmdReload}).
		Register(&Command{Name: "get", Usage: "get", Summary: "Show the system prompt", Passive: true, Run: e.cmdGet}).
		Register(&Command{Name: "exit", Usage: "exit", Summary: "Save the conversation and exit", Passive: true, Run: e.cmdExit}))

	d.Add(NewGroup("prompt").
		Register(&Command{Name: "set", Usage: "set [details]", Summary: "Generate a system prompt from a description", Run: e.cmdSet}).
		Register(&Command{Name: "rawset", Aliases: []string{"setraw"}, Usage: "rawset [prompt]", Summary: "Set the system prompt verbatim", Run: e.cmdRawSet}).
		Register(&Command{Name: "questionset", Usage: "questionset", Summary: "Build a system prompt from guided questions", Run: e.cmdQuestionSet}).
		Register(&Command{Name: "improve", Usage: "improve <advice>", Summary: "Improve the system prompt with advice", Run: e.improveCommand("improve")}).
		Register(&Command{Name: "sharpen", Usage: "sharpen <advice>", Summary: "Improve the prompt and regenerate the last reply", Run: e.improveCommand("sharpen")}).
		Register(&Command{Name: "fixate", Usage: "fixate <advice>", Summary: "Sharpen and keep the advice as a hint", Run: e.improveCommand("fixate")}).
		Register(&Command{Name: "selfimprove", Usage: "selfimprove [threshold]", Summary: "Improve the prompt until its grade reaches the threshold", Run: e.cmdSelfImprove}))

	d.Add(NewGroup("conversation").
		Register(&Command{Name: "serve", Usage: "serve", Summary: "Ask the character to speak next", Run: e.cmdServe}).
		Register(&Command{Name: "dialogue", Usage: "dialogue [text]", Summary: "Compose a multi-line message", Run: e.cmdDialogue}).
		Register(&Command{Name: "hint", Usage: "hint <text>", Summary: "Set a hint and regenerate the last reply", Run: e.cmdHint}).
		Register(&Command{Name: "edit", Usage: "edit <text>", Summary: "Edit your last message and regenerate", Run: e.cmdEdit}).
		Register(&Command{Name: "assistantedit", Usage: "assistantedit <text>", Summary: "Edit the last assistant message", Run: e.cmdAssistantEdit}).
		Register(&Command{Name: "iterate", Usage: "iterate", Summary: "Regenerate the last reply", Run: e.cmdIterate}).
		Register(&Command{Name: "user", Usage: "user", Summary: "Let the AI answer in your place", Run: e.cmdUser}).
		Register(&Command{Name: "log", Usage: "log", Summary: "Show the conversation", Passive: true, Run: e.cmdLog}).
		Register(&Command{Name: "save", Usage: "save", Summary: "Save the conversation", Run: e.cmdSave}).
		Register(&Command{Name: "load", Usage: "load", Summary: "Load the saved conversation", Run: e.cmdLoad}))

	d.Add(NewGroup("settings").
		Register(&Command{Name: "convomodel", Usage: "convomodel [number]", Summary: "List or switch the conversation model", Run: e.modelCommand("convomodel", "conversation", &e.ConvoModel)}).
		Register(&Command{Name: "sysmodel", Usage: "sysmodel [number]", Summary: "List or switch the system model", Run: e.modelCommand("sysmodel", "system", &e.SysModel)}).
		Register(&Command{Name: "connection", Usage: "connection", Summary: "Test the connection to the completion API", Passive: true, Run: e.cmdConnection}).
		Register(&Command{Name: "setcolor", Usage: "setcolor <role> <color>", Summary: "Change a message colour", Run: e.cmdSetColor}).
		Register(&Command{Name: "help", Usage: "help", Summary: "Show this list", Passive: true, Run: e.cmdHelp}))

	return d
}

// --- characters ---

func (e *Engine) cmdCreate(_ context.Context, arg string) error {
	if arg == "" {
		return usage("create <character_name>")
	}
	if history.Channel(arg) == history.Default {
		e.Out.Error(reservedName(arg))
		return nil
	}
	created, err := e.Files.CreatePrompt(arg)
	if err != nil {
		return err
	}
	if created {
		e.Out.Info(fmt.Sprintf("File for '%s' created.", arg))
	} else {
		e.Out.Info(fmt.Sprintf("File for '%s' already exists.", arg))
	}
	e.switchTo(history.Channel(arg))
	e.Out.OK(fmt.Sprintf("Character '%s' created and switched to.", arg))
	return nil
}

func (e *Engine) cmdDuplicate(_ context.Context, arg string) error {
	if arg == "" {
		return usage("duplicate <new_name>")
	}
	if e.current == history.Default {
		e.Out.Error("The default character cannot be duplicated.")
		return nil
	}
	if history.Channel(arg) == history.Default {
		e.Out.Error(reservedName(arg))
		return nil
	}
	err := e.Files.DuplicatePrompt(string(e.current), arg)
	switch {
	case errors.Is(err, store.ErrNotFound):
		e.Out.Error(fmt.Sprintf("No prompt file for '%s'. Cannot duplicate.", e.current))
		return nil
	case errors.Is(err, store.ErrExists):
		e.Out.Error(fmt.Sprintf("Character '%s' already exists.", arg))
		return nil
	case err != nil:
		return err
	}
	e.Out.OK(fmt.Sprintf("Character duplicated as '%s'.", arg))
	e.saveLog(e.current)
	e.switchTo(history.Channel(arg))
	e.Out.Info(fmt.Sprintf("Switched to character: %s", arg))
	return nil
}

func reservedName(name string) string {
	return fmt.Sprintf("'%s' is reserved for the default character.", name)
}

func (e *Engine) cmdDelete(_ context.Context, _ string) error {
	if e.current == history.Default {
		e.Out.Error("Cannot delete the default character.")
		return nil
	}
	e.setPending(e.session(e.current), &YesNo{Command: "delete"})
	e.Out.Info(fmt.Sprintf("Delete character '%s' and its file? (yes/no)", e.current))
	return nil
}

func (e *Engine) deleteCharacter(ch history.Channel) error {
	err := e.Files.RemovePrompt(string(ch))
	if errors.Is(err, store.ErrNotFound) {
		e.Out.Info(fmt.Sprintf("No file exists for character '%s'.", ch))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", ch, err)
	}
	e.History.Remove(ch)
	e.removeSession(ch)
	e.Out.OK(fmt.Sprintf("Character '%s' and its file have been deleted.", ch))
	e.switchTo(history.Default)
	e.Out.Info(fmt.Sprintf("Switched to default character channel: %s", history.Default))
	return nil
}

func (e *Engine) cmdCharacter(_ context.Context, arg string) error {
	if arg == "" {
		return usage("character <name>")
	}
	ch := history.Channel(arg)
	if ch != history.Default {
		if err := store.ValidName(arg); err != nil {
			return err
		}
	}
	e.saveLog(e.current)
	e.switchTo(ch)
	if ch != history.Default && !e.Files.PromptExists(arg) {
		e.Out.Info(fmt.Sprintf("No prompt file for '%s'; using the default backstory. Use %screate to make one.", arg, e.Prefix))
	}
	e.Out.OK(fmt.Sprintf("Switched to character: %s", arg))
	return nil
}

func (e *Engine) cmdCharacterList(ctx context.Context, arg string) error {
	if !strings.EqualFold(arg, "remake") {
		text, err := e.Files.ReadSummaries()
		if err == nil && text != "" {
			e.Out.Info("Character list:\n" + text)
			return nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	chars, err := e.Files.ListCharacters()
	if err != nil {
		return err
	}
	if len(chars) == 0 {
		e.Out.Info("No characters found.")
		return nil
	}
	entries := make([]string, 0, len(chars))
	for _, c := range chars {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary := "No system prompt available."
		if text, err := e.Files.ReadPrompt(c.Name); err == nil && strings.TrimSpace(text) != "" {
			summary, err = e.ask(ctx, "Summarizing "+c.Name, e.SysModel, character.DescribeInstruction(text))
			if err != nil {
				summary = "Error: " + err.Error()
			}
		}
		entries = append(entries, c.Name+": "+summary)
	}
	list := strings.Join(entries, "\n\n")
	if err := e.Files.WriteSummaries(list); err != nil {
		return fmt.Errorf("save character list: %w", err)
	}
	e.Out.Info("Character list:\n" + list)
	return nil
}

func (e *Engine) cmdClear(_ context.Context, _ string) error {
	e.History.Clear(e.current)
	e.Out.OK("Conversation cleared.")
	return nil
}

func (e *Engine) cmdClearBackstory(_ context.Context, _ string) error {
	e.setPending(e.session(e.current), &YesNo{Command: "clearbackstory"})
	e.Out.Info("Clear the backstory conversation? (yes/no)")
	return nil
}

func (e *Engine) cmdReload(_ context.Context, _ string) error {
	if !e.History.Reload(e.current) {
		e.Out.Error("Failed to reload the system prompt.")
		return nil
	}
	e.Out.OK("System prompt reloaded.")
	return nil
}

func (e *Engine) cmdGet(_ context.Context, _ string) error {
	prompt, ok := e.History.System(e.current)
	if !ok {
		e.Out.Info("No system prompt set.")
		return nil
	}
	e.Out.Info("System prompt:\n" + prompt)
	return nil
}

func (e *Engine) cmdExit(_ context.Context, _ string) error {
	e.saveLog(e.current)
	e.Out.Info("Goodbye.")
	return ErrQuit
}

// --- prompt ---

func (e *Engine) cmdSet(_ context.Context, arg string) error {
	e.setPending(e.session(e.current), &Multiline{Command: "set", Buffer: arg})
	e.Out.Info("Describe the character. Type 'continue' to generate or 'cancel' to abort.")
	return nil
}

func (e *Engine) cmdRawSet(_ context.Context, arg string) error {
	if arg != "" {
		if err := e.History.ReplaceSystem(e.current, arg); err != nil {
			return err
		}
		e.Out.OK("System prompt set manually via rawset.")
		return nil
	}
	e.setPending(e.session(e.current), &Multiline{Command: "rawset"})
	e.Out.Info("Enter the system prompt. Type 'continue' to apply or 'cancel' to abort.")
	return nil
}

func (e *Engine) cmdQuestionSet(_ context.Context, _ string) error {
	e.setPending(e.session(e.current), &Multiline{Command: "questionset", Questions: character.Questions})
	e.Out.Info(character.Questions[0] + " (single line)")
	return nil
}

// --- conversation ---

func (e *Engine) cmdServe(ctx context.Context, _ string) error {
	return e.respond(ctx, e.current)
}

func (e *Engine) cmdDialogue(_ context.Context, arg string) error {
	e.setPending(e.session(e.current), &Multiline{Command: "dialogue", Buffer: arg})
	e.Out.Info("Compose your message. Type 'continue' to send or 'cancel' to abort.")
	return nil
}

// regenerate drops a trailing assistant reply and answers the trailing user
// message again. It reports false when there is no user turn to answer.
func (e *Engine) regenerate(ctx context.Context, ch history.Channel, notice string) (bool, error) {
	e.History.RemoveTrailingIf(ch, history.Is(provider.RoleAssistant))
	last, ok := e.History.Last(ch)
	if !ok || last.Role != provider.RoleUser {
		return false, nil
	}
	e.Out.Info(notice)
	return true, e.respond(ctx, ch)
}

func (e *Engine) cmdHint(ctx context.Context, arg string) error {
	if arg == "" {
		return usage("hint <text>")
	}
	e.History.UpsertHint(e.current, arg)
	ran, err := e.regenerate(ctx, e.current, "Regenerating with hint...")
	if !ran {
		e.Out.OK("Hint set.")
	}
	return err
}

func (e *Engine) cmdIterate(ctx context.Context, _ string) error {
	ran, err := e.regenerate(ctx, e.current, "Regenerating last response...")
	if !ran {
		e.Out.Error("No user message to respond to.")
	}
	return err
}

func (e *Engine) cmdEdit(ctx context.Context, arg string) error {
	if arg == "" {
		return usage("edit <text>")
	}
	if !e.History.ReplaceLast(e.current, provider.RoleUser, arg) {
		e.Out.Error("No user message found to edit.")
		return nil
	}
	e.History.PruneAfterLast(e.current, provider.RoleUser, history.Is(provider.RoleAssistant))
	e.Out.Info("User message edited. Regenerating...")
	return e.respond(ctx, e.current)
}

func (e *Engine) cmdAssistantEdit(_ context.Context, arg string) error {
	if arg == "" {
		return usage("assistantedit <text>")
	}
	if !e.History.ReplaceLast(e.current, provider.RoleAssistant, arg) {
		e.Out.Error("No assistant message found to edit.")
		return nil
	}
	e.Out.OK("Assistant message edited.")
	return nil
}

func (e *Engine) cmdUser(ctx context.Context, _ string) error {
	last, ok := e.History.LastOf(e.current, provider.RoleAssistant)
	if !ok {
		e.Out.Error("No assistant message found to respond to.")
		return nil
	}
	reply, err := e.ask(ctx, "Writing your reply", e.ConvoModel, character.UserReplyInstruction(last.Content))
	if err != nil {
		return fmt.Errorf("user reply: %w", err)
	}
	e.History.Append(e.current, provider.Message{Role: provider.RoleUser, Content: reply})
	e.Out.Chat(theme.RoleUser, e.speaker(e.current, provider.RoleUser), reply)
	return nil
}

func (e *Engine) cmdLog(_ context.Context, _ string) error {
	msgs := e.History.Messages(e.current)
	if len(msgs) == 0 {
		e.Out.Info("No conversation history.")
		return nil
	}
	for _, m := range msgs {
		e.Out.Chat(m.Role, e.speaker(e.current, m.Role), m.Content)
	}
	return nil
}

func (e *Engine) cmdSave(_ context.Context, _ string) error {
	e.saveLog(e.current)
	return nil
}

func (e *Engine) cmdLoad(_ context.Context, _ string) error {
	msgs, err := e.Files.LoadLog(string(e.current))
	if errors.Is(err, store.ErrNotFound) {
		e.Out.Info("No saved conversation found.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	sys := e.History.Load(e.current)[0]
	e.History.Set(e.current, append([]provider.Message{sys}, msgs...))
	e.Log.Debug("conversation loaded", zap.String("channel", string(e.current)), zap.Int("messages", len(msgs)))
	e.Out.OK(fmt.Sprintf("Loaded %d messages from the saved conversation.", len(msgs)))
	return nil
}

// --- settings ---

func (e *Engine) listModels(ctx context.Context) ([]string, error) {
	if len(e.models) > 0 {
		return e.models, nil
	}
	done := e.Out.Busy("Fetching models")
	models, err := e.Provider.ListModels(ctx)
	done()
	if err != nil {
		return nil, err
	}
	e.models = models
	return models, nil
}

func (e *Engine) modelCommand(name, kind string, target *string) Handler {
	return func(ctx context.Context, arg string) error {
		models, err := e.listModels(ctx)
		if err != nil {
			return fmt.Errorf("fetch models: %w", err)
		}
		if len(models) == 0 {
			e.Out.Error("No models available.")
			return nil
		}
		if arg == "" {
			var sb strings.Builder
			fmt.Fprintf(&sb, "Available %s models (current: %s):", kind, *target)
			for i, m := range models {
				fmt.Fprintf(&sb, "\n%3d. %s", i+1, m)
			}
			e.Out.Info(sb.String())
			e.Out.Info(fmt.Sprintf("Type %s%s <number> to switch.", e.Prefix, name))
			return nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return usage(name + " [number]")
		}
		if n < 1 || n > len(models) {
			e.Out.Error("Invalid model number.")
			return nil
		}
		*target = models[n-1]
		e.Log.Debug("model switched", zap.String("kind", kind), zap.String("model", *target))
		e.Out.OK(fmt.Sprintf("%s model switched to %s.", strings.ToUpper(kind[:1])+kind[1:], *target))
		return nil
	}
}

func (e *Engine) cmdConnection(ctx context.Context, _ string) error {
	e.checkConnection(ctx)
	return nil
}

func (e *Engine) cmdSetColor(_ context.Context, arg string) error {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return usage(fmt.Sprintf("setcolor <role> <color>\nRoles: %s\nColors: %s",
			strings.Join(theme.Roles, ", "), strings.Join(theme.ColorNames(), ", ")))
	}
	if err := e.Theme.Set(fields[0], fields[1]); err != nil {
		return err
	}
	e.Out.OK(fmt.Sprintf("Color for %s messages set to %s.", strings.ToLower(fields[0]), strings.ToLower(fields[1])))
	return nil
}

func (e *Engine) cmdHelp(_ context.Context, _ string) error {
	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, g := range e.commands.Groups() {
		fmt.Fprintf(&sb, "\n\n%s", g.Name)
		for _, c := range g.Commands() {
			fmt.Fprintf(&sb, "\n  %-28s %s", e.Prefix+c.Usage, c.Summary)
		}
	}
	e.Out.Info(sb.String())
	return nil
}
