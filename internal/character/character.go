// Package character holds the built-in prompt texts and the instruction
// templates sent to the system model when a character prompt is generated,
// improved, graded or summarised.
package character

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const Version = "1.4"

// DefaultName is the welcome channel; it has no prompt file.
const DefaultName = "welcome"

// DefaultSpeaker is shown for assistant lines on the welcome channel.
const DefaultSpeaker = "chai"

func WelcomePrompt(prefix string) string {
	return fmt.Sprintf(`[WELCOME SYSTEM PROMPT]
Welcome to chai version %[2]s!
This tool lets you roleplay with AI characters. Commands:
  %[1]screate <name>           - Create a new character
  %[1]scharacter <name>        - Switch characters (auto-saves current conversation)
  %[1]sduplicate <name>        - Duplicate current character to a new one
  %[1]sset                     - Update the system prompt
  %[1]simprove/sharpen/fixate  - Improve the system prompt based on your advice
  %[1]sselfimprove [score]     - Improve the system prompt until graded above a threshold (default 80)
  %[1]sconnection              - Test connection to the completion API
  %[1]scharacterlist [remake]  - List characters with one-sentence summaries
  %[1]ssetcolor <role> <color> - Customize colors (roles: system, user, assistant, command)
  %[1]sconvomodel / %[1]ssysmodel - Switch conversation / system model
  %[1]sexit                    - Save conversation and exit
Simply type your messages to chat.
Enjoy!`, prefix, Version)
}

const DefaultPrompt = `[SYSTEM PROMPT]
Background: You are an engaging conversational AI.
Personality: Friendly, concise, and interactive.
Guidelines:
- Keep responses brief (1-3 sentences)
- Always leave room for the user to respond
- Stay in character at all times`

const (
	setPreamble = "Generate a detailed, consistent, high-quality system prompt for this AI character " +
		"that is roleplay-ready. Use the following details exactly and output only the final prompt with no extra commentary."
	questionsetPreamble = "Generate a detailed, consistent, high-quality system prompt for this AI character based on the following details. " +
		"The final prompt should be roleplay-ready and formatted consistently. Do not add extra commentary."
)

// Questions asked by the guided questionset workflow, in order.
var Questions = []string{
	"Enter the character name:",
	"Enter a detailed background:",
	"Enter personality traits:",
	"Enter special abilities or additional details:",
	"Enter any extra instructions for roleplay:",
}

var questionLabels = []string{
	"Name",
	"Background",
	"Personality",
	"Special Abilities/Additional Details",
	"Extra Instructions",
}

func SetInstruction(details string) string {
	return setPreamble + "\nDetails: " + details
}

func QuestionsetInstruction(answers []string) string {
	var sb strings.Builder
	sb.WriteString(questionsetPreamble)
	for i, label := range questionLabels {
		a := ""
		if i < len(answers) {
			a = answers[i]
		}
		fmt.Fprintf(&sb, "\n%s: %s", label, a)
	}
	return sb.String()
}

// ImproveInstruction asks for a richer version of prompt without advice.
func ImproveInstruction(prompt string) string {
	return "Improve the following system prompt by adding more descriptive details and enhancements without removing any original information. " +
		"Ensure the final output is a refined system prompt suitable for guiding an AI character's behavior. " +
		"Do not include any greetings or extraneous text; output only the final improved system prompt.\n" +
		"Original system prompt:\n" + prompt
}

// AdviceInstruction combines prompt with the user's improvement advice.
func AdviceInstruction(prompt, advice string) string {
	return "Below is the current system prompt:\n" + prompt +
		"\n\nImprove the system prompt using the following advice:\n" + advice +
		"\n\nCombine the old prompt and the improvement advice to generate a new system prompt that incorporates the changes while retaining all original details. " +
		"Return only the final system prompt with no additional commentary."
}

func GradeInstruction(prompt string) string {
	return "On a scale from 0 to 100, grade the following system prompt solely based on user experience and clarity. " +
		"Return only the number.\n" + prompt
}

func SummaryInstruction(oldPrompt, newPrompt string) string {
	return "Below is the current system prompt:\n" + oldPrompt +
		"\n\nBelow is the new improved system prompt:\n" + newPrompt +
		"\n\nProvide a one-line summary of the changes (mention what was improved):"
}

func DescribeInstruction(prompt string) string {
	return "Provide a one sentence summary of the following character description:\n" + prompt
}

func UserReplyInstruction(assistant string) string {
	return "Generate a user reply to the following assistant message:\n" + assistant
}

var bracketReply = regexp.MustCompile(`^\(.*?\)\s*\[(.*)\]$`)

// ProcessReply unwraps replies shaped like "(stage direction) [text]" and
// trims trailing whitespace otherwise.
func ProcessReply(reply string) string {
	if m := bracketReply.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimRight(reply, " \t\r\n")
}

var firstNumber = regexp.MustCompile(`\d+`)

// ParseGrade extracts the first integer of a grading reply, clamped to
// 0..100. Replies without a number grade 0.
func ParseGrade(reply string) int {
	m := firstNumber.FindString(reply)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		// too many digits for an int
		return 100
	}
	if n > 100 {
		return 100
	}
	return n
}
