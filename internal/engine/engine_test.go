package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chai-cli/chai-cli/internal/history"
	"github.com/chai-cli/chai-cli/internal/provider"
	"github.com/chai-cli/chai-cli/internal/store"
)

type fakeProvider struct {
	// complete answers Complete calls; nil answers "generated prompt".
	complete  func(instruction string) (string, error)
	replies   []string
	streamErr error
	models    []string
	listCalls int

	instructions []string
	streamed     [][]provider.Message
}

func (f *fakeProvider) Complete(_ context.Context, _ string, msgs []provider.Message) (string, error) {
	instr := msgs[len(msgs)-1].Content
	f.instructions = append(f.instructions, instr)
	if f.complete != nil {
		return f.complete(instr)
	}
	return "generated prompt", nil
}

func (f *fakeProvider) ChatStream(_ context.Context, _ string, msgs []provider.Message, onDelta func(provider.StreamDelta)) error {
	f.streamed = append(f.streamed, msgs)
	if f.streamErr != nil {
		return f.streamErr
	}
	reply := "reply"
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	for _, part := range strings.SplitAfter(reply, " ") {
		onDelta(provider.StreamDelta{Content: part})
	}
	onDelta(provider.StreamDelta{Done: true})
	return nil
}

func (f *fakeProvider) ListModels(context.Context) ([]string, error) {
	f.listCalls++
	return f.models, nil
}

func (f *fakeProvider) count(prefix string) int {
	n := 0
	for _, in := range f.instructions {
		if strings.HasPrefix(in, prefix) {
			n++
		}
	}
	return n
}

type recorder struct {
	infos, oks, errs []string
	chats            []string
	stream           strings.Builder
	busy             int
}

func (r *recorder) Info(s string)  { r.infos = append(r.infos, s) }
func (r *recorder) OK(s string)    { r.oks = append(r.oks, s) }
func (r *recorder) Error(s string) { r.errs = append(r.errs, s) }
func (r *recorder) Chat(role, speaker, text string) {
	r.chats = append(r.chats, fmt.Sprintf("%s|%s|%s", role, speaker, text))
}
func (r *recorder) StreamStart(string)   {}
func (r *recorder) StreamChunk(s string) { r.stream.WriteString(s) }
func (r *recorder) StreamEnd()           {}
func (r *recorder) Busy(string) func()   { r.busy++; return func() {} }
func (r *recorder) lastInfo() string     { return last(r.infos) }
func (r *recorder) lastErr() string      { return last(r.errs) }

func last(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

func newTestEngine(t *testing.T, fp *fakeProvider) (*Engine, *recorder) {
	t.Helper()
	files := store.New(t.TempDir())
	require.NoError(t, files.Init())
	out := &recorder{}
	e := New(fp, files, out, Options{
		ConvoModel: "convo",
		SysModel:   "sys",
		Username:   "tester",
		Threshold:  80,
	})
	e.switchTo(history.Default)
	return e, out
}

func send(t *testing.T, e *Engine, lines ...string) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, e.HandleLine(context.Background(), l), l)
	}
}

func msg(role, content string) provider.Message {
	return provider.Message{Role: role, Content: content}
}

func system(e *Engine) string {
	s, _ := e.History.System(e.Current())
	return s
}

const (
	improvePrefix = "Improve the following system prompt"
	gradePrefix   = "On a scale from 0 to 100"
	advicePrefix  = "Below is the current system prompt:"
)

func TestChatStreamsAndAppends(t *testing.T) {
	fp := &fakeProvider{replies: []string{"hello there friend"}}
	e, out := newTestEngine(t, fp)

	send(t, e, "hi")

	msgs := e.History.Messages(history.Default)
	require.Len(t, msgs, 3)
	assert.Equal(t, msg(provider.RoleUser, "hi"), msgs[1])
	assert.Equal(t, msg(provider.RoleAssistant, "hello there friend"), msgs[2])
	assert.Equal(t, "hello there friend", out.stream.String())
	require.Len(t, fp.streamed, 1)
	assert.Equal(t, provider.RoleSystem, fp.streamed[0][0].Role)
}

func TestStreamErrorAppendsNothing(t *testing.T) {
	fp := &fakeProvider{streamErr: &provider.APIError{Status: 500, Body: "boom"}}
	e, out := newTestEngine(t, fp)

	send(t, e, "hi")

	l, _ := e.History.Last(history.Default)
	assert.Equal(t, provider.RoleUser, l.Role)
	assert.Contains(t, out.lastErr(), "API error 500")
}

func TestEmptyStreamIsNotAppended(t *testing.T) {
	fp := &fakeProvider{replies: []string{""}}
	e, out := newTestEngine(t, fp)

	send(t, e, "hi")

	assert.Equal(t, 2, e.History.Len(history.Default))
	assert.Contains(t, out.lastErr(), ErrEmptyReply.Error())
}

func TestEmptyLineIgnored(t *testing.T) {
	fp := &fakeProvider{}
	e, _ := newTestEngine(t, fp)
	send(t, e, "", "   ")
	assert.Empty(t, fp.streamed)
	assert.Equal(t, 1, e.History.Len(history.Default))
}

func TestUnknownCommand(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "!nope")
	assert.Equal(t, "Unknown command. Type !help for a list of commands.", out.lastErr())
}

func TestMultilineSetJoinsLines(t *testing.T) {
	fp := &fakeProvider{}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!create ada", "!set")
	assert.Equal(t, AwaitingMultilineInput, e.State())

	send(t, e, "a", "b", "continue")

	assert.Equal(t, Normal, e.State())
	assert.True(t, strings.HasSuffix(last(fp.instructions), "\nDetails: a\nb"))
	assert.Equal(t, "generated prompt", system(e))
	text, err := e.Files.ReadPrompt("ada")
	require.NoError(t, err)
	assert.Equal(t, "generated prompt", text)
}

func TestMultilineSetWithSeed(t *testing.T) {
	fp := &fakeProvider{}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!create ada", "!set a tall knight", "!not a command", "continue")
	assert.True(t, strings.HasSuffix(last(fp.instructions), "\nDetails: a tall knight\n!not a command"))
}

func TestRawsetMultilineAndEmptyBuffer(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "!create ada")
	before := system(e)

	send(t, e, "!rawset", "continue")
	assert.Equal(t, before, system(e))
	assert.Equal(t, Normal, e.State())
	assert.Equal(t, "No input received; nothing changed.", out.lastInfo())

	send(t, e, "!setraw", "You are Ada.", "Stay calm.", "continue")
	assert.Equal(t, "You are Ada.\nStay calm.", system(e))
	text, _ := e.Files.ReadPrompt("ada")
	assert.Equal(t, "You are Ada.\nStay calm.", text)
}

func TestRawsetInline(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProvider{})
	send(t, e, "!create ada", "!rawset You are Ada.")
	assert.Equal(t, "You are Ada.", system(e))
	assert.Equal(t, Normal, e.State())
}

func TestDialogueSendsOneUserMessage(t *testing.T) {
	fp := &fakeProvider{}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!dialogue first", "second", "continue")

	msgs := e.History.Messages(history.Default)
	require.Len(t, msgs, 3)
	assert.Equal(t, msg(provider.RoleUser, "first\nsecond"), msgs[1])
	assert.Equal(t, provider.RoleAssistant, msgs[2].Role)
}

func TestQuestionset(t *testing.T) {
	fp := &fakeProvider{}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!create ada", "!questionset", "Ada")
	assert.Equal(t, 1, e.session(e.Current()).Pending.(*Multiline).Index)

	send(t, e,
		"Born in a lighthouse", "raised by gulls", "continue",
		"curious", "continue",
		"none", "continue",
		"be kind", "continue")

	assert.Equal(t, Normal, e.State())
	instr := last(fp.instructions)
	assert.Contains(t, instr, "\nName: Ada\n")
	assert.Contains(t, instr, "\nBackground: Born in a lighthouse\nraised by gulls\n")
	assert.True(t, strings.HasSuffix(instr, "\nExtra Instructions: be kind"))
	assert.Equal(t, "generated prompt", system(e))
}

func TestCancelFromEveryMode(t *testing.T) {
	tests := []struct {
		name  string
		setup []string
	}{
		{"multiline", []string{"!set", "partial"}},
		{"questionset", []string{"!questionset", "Ada", "half an answer"}},
		{"delete", []string{"!delete"}},
		{"clearbackstory", []string{"!clearbackstory"}},
		{"review", []string{"!improve be bolder"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakeProvider{}
			e, _ := newTestEngine(t, fp)
			send(t, e, "!create ada", "hi")
			before := e.History.Messages("ada")

			send(t, e, tt.setup...)
			require.NotEqual(t, Normal, e.State())
			send(t, e, "CANCEL")

			assert.Equal(t, Normal, e.State())
			assert.Equal(t, before, e.History.Messages("ada"))
			assert.True(t, e.Files.PromptExists("ada"))
		})
	}
}

func TestPendingRefusesNonPassiveCommands(t *testing.T) {
	fp := &fakeProvider{}
	e, out := newTestEngine(t, fp)
	send(t, e, "!create ada", "hi", "!clearbackstory")

	send(t, e, "!clear")
	assert.Contains(t, out.lastErr(), "Waiting on !clearbackstory")
	assert.Equal(t, 3, e.History.Len("ada"))

	send(t, e, "!get")
	assert.Contains(t, out.lastInfo(), "System prompt:")
	assert.Equal(t, AwaitingConfirmation, e.State())

	send(t, e, "Yes")
	assert.Equal(t, Normal, e.State())
	assert.Equal(t, 1, e.History.Len("ada"))
}

func TestYesNoFallsThroughToChat(t *testing.T) {
	fp := &fakeProvider{}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!create ada", "!clearbackstory", "maybe later")

	assert.Len(t, fp.streamed, 1)
	assert.Equal(t, AwaitingConfirmation, e.State())
	send(t, e, "no")
	assert.Equal(t, Normal, e.State())
	assert.Equal(t, 3, e.History.Len("ada"))
}

func TestDeleteDefaultRejected(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "!delete")
	assert.Equal(t, "Cannot delete the default character.", out.lastErr())
	assert.Equal(t, Normal, e.State())
}

func TestDeleteConfirmed(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProvider{})
	send(t, e, "!create ada", "hi", "!delete", "yes")

	assert.False(t, e.Files.PromptExists("ada"))
	assert.Equal(t, history.Default, e.Current())
	assert.False(t, e.History.Has("ada"))
	_, ok := e.Session("ada")
	assert.False(t, ok)
}

func TestDuplicateDefaultCreatesNoFile(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "!duplicate copy")

	assert.Equal(t, "The default character cannot be duplicated.", out.lastErr())
	assert.False(t, e.Files.PromptExists("copy"))
	assert.Equal(t, history.Default, e.Current())
}

func TestDuplicateCopiesAndSwitches(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProvider{})
	send(t, e, "!create ada", "!rawset You are Ada.", "!duplicate ada2")

	assert.Equal(t, history.Channel("ada2"), e.Current())
	assert.Equal(t, "You are Ada.", system(e))
	_, err := os.Stat(e.Files.LogPath("ada"))
	assert.NoError(t, err)
}

func TestDuplicateToDefaultNameRefused(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "!create ada", "!rawset You are Ada.", "!duplicate welcome")

	assert.Equal(t, "'welcome' is reserved for the default character.", out.lastErr())
	assert.False(t, e.Files.PromptExists("welcome"))
	assert.Equal(t, history.Channel("ada"), e.Current())
	assert.Equal(t, "You are Ada.", system(e))
}

func TestCreateDefaultNameRefused(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "!create ada", "!create welcome")

	assert.Equal(t, "'welcome' is reserved for the default character.", out.lastErr())
	assert.False(t, e.Files.PromptExists("welcome"))
	assert.Equal(t, history.Channel("ada"), e.Current())
}

func TestCharacterSwitchSavesLog(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "hi", "!character bob")

	assert.Equal(t, history.Channel("bob"), e.Current())
	_, err := os.Stat(e.Files.LogPath("welcome"))
	assert.NoError(t, err)
	assert.Contains(t, strings.Join(out.infos, "\n"), "No prompt file for 'bob'")

	send(t, e, "!character ../etc")
	assert.Contains(t, out.lastErr(), "invalid character name")
	assert.Equal(t, history.Channel("bob"), e.Current())
}

func TestSaveLoadSkipsSystemLines(t *testing.T) {
	fp := &fakeProvider{replies: []string{"first", "line one\nline two"}}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!create ada", "!rawset You are Ada.", "hi", "!hint stay short", "!save")

	send(t, e, "!clear")
	require.Equal(t, 1, e.History.Len("ada"))
	send(t, e, "!load")

	assert.Equal(t, []provider.Message{
		msg(provider.RoleSystem, "You are Ada."),
		msg(provider.RoleUser, "hi"),
		msg(provider.RoleAssistant, "line one\nline two"),
	}, e.History.Messages("ada"))
}

func TestIterateDoesNotDuplicateUser(t *testing.T) {
	fp := &fakeProvider{replies: []string{"first", "second"}}
	e, _ := newTestEngine(t, fp)
	send(t, e, "hi", "!iterate")

	assert.Equal(t, []provider.Message{
		msg(provider.RoleUser, "hi"),
		msg(provider.RoleAssistant, "second"),
	}, e.History.Messages(history.Default)[1:])
}

func TestIterateWithoutUserTurn(t *testing.T) {
	fp := &fakeProvider{}
	e, out := newTestEngine(t, fp)
	send(t, e, "!iterate")
	assert.Empty(t, fp.streamed)
	assert.Equal(t, "No user message to respond to.", out.lastErr())
}

func TestHintUpsertsAndRegenerates(t *testing.T) {
	fp := &fakeProvider{replies: []string{"first", "second", "third"}}
	e, _ := newTestEngine(t, fp)
	send(t, e, "hi", "!hint be brief", "!hint be loud")

	msgs := e.History.Messages(history.Default)
	assert.Equal(t, []provider.Message{
		msg(provider.RoleSystem, "Hint: be loud"),
		msg(provider.RoleUser, "hi"),
		msg(provider.RoleAssistant, "third"),
	}, msgs[1:])
}

func TestEditPrunesLaterReplies(t *testing.T) {
	fp := &fakeProvider{replies: []string{"first", "second"}}
	e, _ := newTestEngine(t, fp)
	send(t, e, "hi", "!edit hello")

	assert.Equal(t, []provider.Message{
		msg(provider.RoleUser, "hello"),
		msg(provider.RoleAssistant, "second"),
	}, e.History.Messages(history.Default)[1:])
}

func TestAssistantEdit(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "!assistantedit nope")
	assert.Equal(t, "No assistant message found to edit.", out.lastErr())

	send(t, e, "hi", "!assistantedit changed")
	l, _ := e.History.Last(history.Default)
	assert.Equal(t, msg(provider.RoleAssistant, "changed"), l)
}

func TestUserReply(t *testing.T) {
	fp := &fakeProvider{complete: func(string) (string, error) { return "(smiles) [sure thing]", nil }}
	e, out := newTestEngine(t, fp)
	send(t, e, "hi", "!user")

	l, _ := e.History.Last(history.Default)
	assert.Equal(t, msg(provider.RoleUser, "sure thing"), l)
	assert.Equal(t, "user|tester|sure thing", last(out.chats))
}

func TestImproveConfirm(t *testing.T) {
	fp := &fakeProvider{complete: func(in string) (string, error) {
		if strings.HasPrefix(in, advicePrefix) && strings.Contains(in, "Improve the system prompt using") {
			return "better prompt", nil
		}
		return "added detail", nil
	}}
	e, out := newTestEngine(t, fp)
	send(t, e, "!create ada", "!rawset old prompt", "!improve more wit")

	r, ok := e.session("ada").Pending.(*Review)
	require.True(t, ok)
	assert.Equal(t, "better prompt", r.NewPrompt)
	assert.Equal(t, "added detail", r.Summary)
	assert.Equal(t, "old prompt", system(e))

	send(t, e, "2")
	assert.Equal(t, "New system prompt:\nbetter prompt", out.lastInfo())
	send(t, e, "diff")
	assert.Equal(t, "Changes:\n- old prompt\n+ better prompt", out.lastInfo())
	send(t, e, "whatever")
	assert.Contains(t, out.lastInfo(), "1) confirm")
	send(t, e, "confirm")

	assert.Equal(t, Normal, e.State())
	assert.Equal(t, "better prompt", system(e))
	text, _ := e.Files.ReadPrompt("ada")
	assert.Equal(t, "better prompt", text)
}

func TestImproveNeedsAdvice(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "!improve")
	assert.Equal(t, "Usage: !improve <improvement advice>", out.lastErr())
	assert.Equal(t, Normal, e.State())
}

func TestFixateConfirmRegeneratesAndHints(t *testing.T) {
	fp := &fakeProvider{replies: []string{"first", "second"}}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!create ada", "hi", "!fixate be bolder", "1")

	assert.Equal(t, []provider.Message{
		msg(provider.RoleSystem, "generated prompt"),
		msg(provider.RoleUser, "hi"),
		msg(provider.RoleAssistant, "second"),
		msg(provider.RoleSystem, "Hint: be bolder"),
	}, e.History.Messages("ada"))
}

func TestSharpenWithoutAssistantOnlyReplaces(t *testing.T) {
	fp := &fakeProvider{}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!create ada", "!sharpen crisper", "1")
	assert.Empty(t, fp.streamed)
	assert.Equal(t, 1, e.History.Len("ada"))
	assert.Equal(t, "generated prompt", system(e))
}

func TestReviewRetryFailureKeepsCandidate(t *testing.T) {
	fail := false
	fp := &fakeProvider{complete: func(in string) (string, error) {
		if fail {
			return "", &provider.APIError{Status: 503, Body: "busy"}
		}
		return "candidate", nil
	}}
	e, out := newTestEngine(t, fp)
	send(t, e, "!improve warmer")

	fail = true
	send(t, e, "retry")
	assert.Contains(t, out.lastErr(), "API error 503")
	r, ok := e.session(history.Default).Pending.(*Review)
	require.True(t, ok)
	assert.Equal(t, "candidate", r.NewPrompt)
}

func TestReviewRetryUsesSameInstructionFamily(t *testing.T) {
	fp := &fakeProvider{complete: func(in string) (string, error) { return "10", nil }}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!selfimprove 0", "3")
	assert.Equal(t, 2, fp.count(improvePrefix))

	send(t, e, "4", "!improve warmer", "retry")
	assert.Equal(t, 2, fp.count(improvePrefix))
}

func TestSelfImproveThresholdZeroRunsOnce(t *testing.T) {
	fp := &fakeProvider{complete: func(in string) (string, error) {
		if strings.HasPrefix(in, gradePrefix) {
			return "no idea", nil
		}
		return "candidate", nil
	}}
	e, out := newTestEngine(t, fp)
	send(t, e, "!selfimprove 0")

	assert.Equal(t, 1, fp.count(improvePrefix))
	assert.Equal(t, 1, fp.count(gradePrefix))
	assert.Contains(t, strings.Join(out.infos, "\n"), "Self-improve iteration 1: grade = 0")
	_, ok := e.session(history.Default).Pending.(*Review)
	assert.True(t, ok)
}

func TestSelfImproveStopsAtThreshold(t *testing.T) {
	grades := []string{"40", "Grade: 55/100", "85"}
	round := 0
	fp := &fakeProvider{complete: func(in string) (string, error) {
		switch {
		case strings.HasPrefix(in, improvePrefix):
			round++
			return fmt.Sprintf("candidate %d", round), nil
		case strings.HasPrefix(in, gradePrefix):
			g := grades[0]
			grades = grades[1:]
			return g, nil
		}
		return "summary", nil
	}}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!create ada", "!selfimprove")

	assert.Equal(t, 3, fp.count(improvePrefix))
	assert.Contains(t, fp.instructions[2], "candidate 1")
	r, ok := e.session("ada").Pending.(*Review)
	require.True(t, ok)
	assert.Equal(t, "candidate 3", r.NewPrompt)
	assert.Equal(t, "summary", r.Summary)

	send(t, e, "confirm")
	assert.Equal(t, "candidate 3", system(e))
}

func TestSelfImproveMaxRounds(t *testing.T) {
	fp := &fakeProvider{complete: func(in string) (string, error) { return "10", nil }}
	e, _ := newTestEngine(t, fp)
	e.MaxRounds = 2
	send(t, e, "!selfimprove 99")
	assert.Equal(t, 2, fp.count(improvePrefix))
	assert.Equal(t, AwaitingConfirmation, e.State())
}

func TestSelfImproveAbortsOnAPIError(t *testing.T) {
	fp := &fakeProvider{complete: func(in string) (string, error) {
		return "", &provider.APIError{Status: 500, Body: "down"}
	}}
	e, out := newTestEngine(t, fp)
	before := system(e)
	send(t, e, "!selfimprove")

	assert.Equal(t, Normal, e.State())
	assert.Equal(t, before, system(e))
	assert.Contains(t, out.lastErr(), "selfimprove: API error 500")
}

func TestSummaryFailureDoesNotAbort(t *testing.T) {
	fp := &fakeProvider{complete: func(in string) (string, error) {
		if strings.Contains(in, "one-line summary") {
			return "", &provider.APIError{Status: 500}
		}
		return "candidate", nil
	}}
	e, _ := newTestEngine(t, fp)
	send(t, e, "!improve sharper")

	r, ok := e.session(history.Default).Pending.(*Review)
	require.True(t, ok)
	assert.Equal(t, noSummary, r.Summary)
}

func TestModelsAreCached(t *testing.T) {
	fp := &fakeProvider{models: []string{"m-a", "m-b"}}
	e, out := newTestEngine(t, fp)
	send(t, e, "!convomodel")
	assert.Contains(t, strings.Join(out.infos, "\n"), "  2. m-b")

	send(t, e, "!sysmodel 2", "!convomodel 1", "!convomodel 3")
	assert.Equal(t, 1, fp.listCalls)
	assert.Equal(t, "m-b", e.SysModel)
	assert.Equal(t, "m-a", e.ConvoModel)
	assert.Equal(t, "Invalid model number.", out.lastErr())
}

func TestCharacterList(t *testing.T) {
	fp := &fakeProvider{complete: func(string) (string, error) { return "A quiet knight.", nil }}
	e, out := newTestEngine(t, fp)
	send(t, e, "!create ada", "!rawset Ada is a knight.", "!create bob", "!characterlist")

	want := "Character list:\nada: A quiet knight.\n\nbob: No system prompt available."
	assert.Equal(t, want, out.lastInfo())
	assert.Equal(t, 1, len(fp.instructions))

	send(t, e, "!characterlist")
	assert.Equal(t, want, out.lastInfo())
	assert.Equal(t, 1, len(fp.instructions))

	send(t, e, "!characterlist remake")
	assert.Equal(t, 2, len(fp.instructions))
}

func TestSetColor(t *testing.T) {
	e, out := newTestEngine(t, &fakeProvider{})
	send(t, e, "!setcolor user babypink")
	assert.Equal(t, "babypink", e.Theme.Color("user"))

	send(t, e, "!setcolor user")
	assert.True(t, strings.HasPrefix(out.lastErr(), "Usage: !setcolor <role> <color>"))

	send(t, e, "!setcolor villain red")
	assert.Contains(t, out.lastErr(), "invalid role")
}

func TestExitSavesAndQuits(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProvider{})
	send(t, e, "hi")
	err := e.HandleLine(context.Background(), "!EXIT")
	assert.ErrorIs(t, err, ErrQuit)
	_, statErr := os.Stat(e.Files.LogPath("welcome"))
	assert.NoError(t, statErr)
}

func TestCustomPrefix(t *testing.T) {
	files := store.New(t.TempDir())
	require.NoError(t, files.Init())
	out := &recorder{}
	e := New(&fakeProvider{}, files, out, Options{Prefix: "/"})
	send(t, e, "!get")
	assert.Empty(t, out.infos)
	send(t, e, "/get")
	assert.Contains(t, out.lastInfo(), "/create <name>")
}

func TestDispatcherFirstGroupWins(t *testing.T) {
	var got string
	d := &Dispatcher{}
	d.Add(NewGroup("a").Register(&Command{Name: "x", Run: func(context.Context, string) error { got = "a"; return nil }}))
	d.Add(NewGroup("b").Register(&Command{Name: "x", Aliases: []string{"y"}, Run: func(context.Context, string) error { got = "b"; return nil }}))

	c, ok := d.Lookup("x")
	require.True(t, ok)
	require.NoError(t, c.Run(context.Background(), ""))
	assert.Equal(t, "a", got)

	c, ok = d.Lookup("y")
	require.True(t, ok)
	require.NoError(t, c.Run(context.Background(), ""))
	assert.Equal(t, "b", got)

	_, ok = d.Lookup("z")
	assert.False(t, ok)
}

type fakeProber struct {
	err error
}

func (p fakeProber) Probe(context.Context) (provider.ProbeResult, error) {
	if p.err != nil {
		return provider.ProbeResult{}, p.err
	}
	return provider.ProbeResult{Endpoint: provider.Endpoint{Name: "localhost"}}, nil
}

func TestStartAndConnection(t *testing.T) {
	files := store.New(t.TempDir())
	require.NoError(t, files.Init())
	out := &recorder{}
	e := New(&fakeProvider{}, files, out, Options{Username: "tester", Prober: fakeProber{}})

	e.Start(context.Background())
	assert.Equal(t, []string{"Connected to localhost (ping: 0ms)"}, out.oks)
	assert.Equal(t, history.Default, e.Current())
	assert.Equal(t, "[welcome] tester > ", e.Prompt())

	e.Prober = fakeProber{err: provider.ErrUnreachable}
	send(t, e, "!clearbackstory", "!connection")
	assert.Equal(t, "Not connected to any completion API.", out.lastErr())
}
