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
)

const reviewOptions = "Options: 1) confirm  2) get  3) retry  4) cancel  (or diff)"

const noSummary = "No summary provided by AI."

// improveCommand builds the handler shared by improve, sharpen and fixate.
func (e *Engine) improveCommand(name string) Handler {
	return func(ctx context.Context, arg string) error {
		if arg == "" {
			return usage(name + " <improvement advice>")
		}
		old, ok := e.History.System(e.current)
		if !ok {
			return history.ErrNoSystem
		}
		cand, summary, err := e.candidate(ctx, old, character.AdviceInstruction(old, arg))
		if err != nil {
			return fmt.Errorf("prompt improvement: %w", err)
		}
		e.setPending(e.session(e.current), &Review{
			Command:   name,
			OldPrompt: old,
			NewPrompt: cand,
			Feedback:  arg,
			Summary:   summary,
		})
		e.showReview(summary)
		return nil
	}
}

func (e *Engine) cmdSelfImprove(ctx context.Context, arg string) error {
	threshold := e.Threshold
	if n, err := strconv.Atoi(arg); err == nil && n >= 0 {
		threshold = n
	}
	old, ok := e.History.System(e.current)
	if !ok {
		return history.ErrNoSystem
	}

	seed := old
	var cand string
	var grade int
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := e.ask(ctx, "Generating improved backstory", e.SysModel, character.ImproveInstruction(seed))
		if err != nil {
			return fmt.Errorf("selfimprove: %w", err)
		}
		g, err := e.ask(ctx, "Grading backstory", e.SysModel, character.GradeInstruction(c))
		if err != nil && !errors.Is(err, ErrEmptyReply) {
			return fmt.Errorf("selfimprove: %w", err)
		}
		cand, grade = c, character.ParseGrade(g)
		e.Log.Debug("selfimprove round", zap.Int("round", round), zap.Int("grade", grade), zap.Int("threshold", threshold))
		e.Out.Info(fmt.Sprintf("Self-improve iteration %d: grade = %d", round, grade))
		if grade >= threshold {
			break
		}
		if e.MaxRounds > 0 && round >= e.MaxRounds {
			e.Out.Info(fmt.Sprintf("Stopping after %d rounds below threshold %d.", round, threshold))
			break
		}
		seed = c
	}

	summary := e.summarize(ctx, old, cand)
	e.setPending(e.session(e.current), &Review{
		Command:   "selfimprove",
		OldPrompt: old,
		NewPrompt: cand,
		Feedback:  fmt.Sprintf("Self-improve completed with grade %d", grade),
		Summary:   summary,
	})
	e.showReview(summary)
	return nil
}

func (e *Engine) candidate(ctx context.Context, old, instruction string) (string, string, error) {
	cand, err := e.ask(ctx, "Generating improved backstory", e.SysModel, instruction)
	if err != nil {
		return "", "", err
	}
	return cand, e.summarize(ctx, old, cand), nil
}

// summarize never fails; the review goes ahead with a placeholder summary.
func (e *Engine) summarize(ctx context.Context, old, cand string) string {
	s, err := e.ask(ctx, "Summarizing changes", e.SysModel, character.SummaryInstruction(old, cand))
	if err != nil {
		e.Log.Debug("summary unavailable", zap.Error(err))
		return noSummary
	}
	return s
}

func (e *Engine) showReview(summary string) {
	e.Out.Info("Change summary: " + summary)
	e.Out.Info("Improvement pending. " + reviewOptions)
}

func (e *Engine) handleReview(ctx context.Context, s *Session, r *Review, line string) error {
	switch strings.ToLower(line) {
	case "1", "confirm":
		return e.confirmReview(ctx, s, r)
	case "2", "get":
		e.Out.Info("New system prompt:\n" + r.NewPrompt)
	case "3", "retry":
		return e.retryReview(ctx, r)
	case "diff":
		e.Out.Info("Changes:\n" + formatDiff(r.OldPrompt, r.NewPrompt))
	case "4", "cancel":
		e.clearPending(s)
		e.Out.Info("Improvement canceled.")
	default:
		e.Out.Info(reviewOptions)
	}
	return nil
}

func (e *Engine) confirmReview(ctx context.Context, s *Session, r *Review) error {
	ch := s.Channel
	e.clearPending(s)
	err := e.History.ReplaceSystem(ch, r.NewPrompt)
	e.Out.OK("New system prompt accepted.")
	switch {
	case err != nil:
		e.report(err)
	case ch != history.Default:
		e.Out.OK("New system prompt saved permanently.")
	}

	if r.Command != "sharpen" && r.Command != "fixate" {
		return nil
	}
	if e.History.RemoveLastIf(ch, history.Is(provider.RoleAssistant)) {
		e.Out.Info("Regenerating previous assistant message...")
		if err := e.respond(ctx, ch); err != nil {
			e.report(err)
		}
	}
	if r.Command == "fixate" {
		e.History.AppendHint(ch, r.Feedback)
	}
	return nil
}

// retryReview replaces the candidate. The previous one stays pending on failure.
func (e *Engine) retryReview(ctx context.Context, r *Review) error {
	instruction := character.AdviceInstruction(r.OldPrompt, r.Feedback)
	if r.Command == "selfimprove" {
		instruction = character.ImproveInstruction(r.OldPrompt)
	}
	cand, summary, err := e.candidate(ctx, r.OldPrompt, instruction)
	if err != nil {
		return fmt.Errorf("prompt improvement: %w", err)
	}
	r.NewPrompt, r.Summary = cand, summary
	e.showReview(summary)
	return nil
}
