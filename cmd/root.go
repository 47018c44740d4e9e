package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var plainMode bool

var rootCmd = &cobra.Command{
	Use:   "chai-cli",
	Short: "chai — roleplay chat with AI characters",
	Long: `chai — roleplay chat with AI characters on a local completion server.

Every character has its own system prompt ("backstory") and conversation.
Prompts can be written by hand, generated from a description, or improved
by the system model until they grade above a threshold.

Quick Start:
  chai-cli init                   # write ~/.chai/chai.yaml
  chai-cli                        # start chatting
  chai-cli --plain < script.txt   # line mode, no TUI

Inside the chat type !help for the list of commands.

Examples:
  chai-cli character list
  chai-cli convo show ada
  chai-cli connection
  chai-cli models`,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(plainMode)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&plainMode, "plain", false, "Line mode without the full-screen UI (default when stdin is not a terminal)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
