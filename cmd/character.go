package cmd

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chai-cli/chai-cli/internal/store"
)

func init() {
	characterCmd := &cobra.Command{
		Use:   "character",
		Short: "Manage characters",
	}

	characterCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all characters",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := storeFromConfig()
			if err != nil {
				return err
			}
			chars, err := files.ListCharacters()
			if err != nil {
				return err
			}
			if len(chars) == 0 {
				fmt.Println("No characters.")
				return nil
			}
			for _, c := range chars {
				fmt.Printf("  %-20s  %8s  %s\n", c.Name, humanize.Bytes(uint64(c.Size)), humanize.Time(c.UpdatedAt))
			}
			return nil
		},
	})

	characterCmd.AddCommand(&cobra.Command{
		Use:   "show [name]",
		Short: "Print a character's system prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := storeFromConfig()
			if err != nil {
				return err
			}
			text, err := files.ReadPrompt(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("File:    %s\n", files.PromptPath(args[0]))
			fmt.Printf("Length:  %s characters\n\n", humanize.Comma(int64(len([]rune(text)))))
			fmt.Println(text)
			return nil
		},
	})

	characterCmd.AddCommand(&cobra.Command{
		Use:   "rm [name]",
		Short: "Delete a character's prompt file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := storeFromConfig()
			if err != nil {
				return err
			}
			if err := files.RemovePrompt(args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("character not found: %s", args[0])
				}
				return err
			}
			fmt.Printf("Deleted character %s\n", args[0])
			return nil
		},
	})

	rootCmd.AddCommand(characterCmd)
}

func storeFromConfig() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}
