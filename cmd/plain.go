package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/chai-cli/chai-cli/internal/engine"
	"github.com/chai-cli/chai-cli/internal/progress"
	"github.com/chai-cli/chai-cli/internal/theme"
)

// plainOutput writes engine output line by line, for pipes and dumb terminals.
type plainOutput struct {
	w     io.Writer
	theme *theme.Theme
	tty   bool
}

func newPlainOutput(w io.Writer, th *theme.Theme, tty bool) *plainOutput {
	return &plainOutput{w: w, theme: th, tty: tty}
}

func (o *plainOutput) Info(s string) {
	fmt.Fprintln(o.w, o.theme.Style(theme.RoleSystem).Render(s))
}

func (o *plainOutput) OK(s string) {
	fmt.Fprintln(o.w, sOK.Render(s))
}

func (o *plainOutput) Error(s string) {
	fmt.Fprintln(o.w, sErr.Render(s))
}

func (o *plainOutput) Chat(role, speaker, text string) {
	st := o.theme.Style(role)
	fmt.Fprintln(o.w, st.Bold(true).Render(speaker+":")+" "+st.Render(text))
}

func (o *plainOutput) StreamStart(speaker string) {
	fmt.Fprint(o.w, o.theme.Style(theme.RoleAssistant).Bold(true).Render(speaker+":")+" ")
}

func (o *plainOutput) StreamChunk(s string) {
	fmt.Fprint(o.w, s)
}

func (o *plainOutput) StreamEnd() {
	fmt.Fprintln(o.w)
}

// Busy draws a spinner only on a terminal.
func (o *plainOutput) Busy(label string) func() {
	if !o.tty {
		return func() {}
	}
	return progress.Start(o.w, label).Stop
}

// runPlain feeds lines from in to eng until exit, end of input or an
// interrupt.
func runPlain(eng *engine.Engine, in *bufio.Scanner, w io.Writer, showPrompt bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng.Start(ctx)
	for ctx.Err() == nil {
		if showPrompt {
			fmt.Fprint(w, sPrompt.Render(eng.Prompt()))
		}
		if !in.Scan() {
			break
		}
		if err := eng.HandleLine(ctx, in.Text()); errors.Is(err, engine.ErrQuit) {
			return nil
		}
	}
	return in.Err()
}
