package character

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessReply(t *testing.T) {
	assert.Equal(t, "hello there", ProcessReply("(smiles) [hello there]"))
	assert.Equal(t, "plain text", ProcessReply("plain text  \n"))
	assert.Equal(t, "  keeps leading", ProcessReply("  keeps leading"))
	assert.Equal(t, "[no stage]", ProcessReply("[no stage]"))
}

func TestParseGrade(t *testing.T) {
	cases := map[string]int{
		"85":               85,
		"Grade: 72/100":    72,
		"I'd say 90.":      90,
		"excellent":        0,
		"":                 0,
		"150":              100,
		"99999999999999999999999": 100,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseGrade(in), "input %q", in)
	}
}

func TestQuestionsetInstruction(t *testing.T) {
	got := QuestionsetInstruction([]string{"Ada", "inventor", "curious"})
	assert.True(t, strings.HasPrefix(got, questionsetPreamble))
	assert.Contains(t, got, "\nName: Ada\n")
	assert.Contains(t, got, "\nPersonality: curious\n")
	assert.True(t, strings.HasSuffix(got, "\nExtra Instructions: "))
	assert.Len(t, Questions, len(questionLabels))
}

func TestWelcomePromptUsesPrefix(t *testing.T) {
	p := WelcomePrompt("/")
	assert.Contains(t, p, "/create <name>")
	assert.Contains(t, p, Version)
}
