package cmd

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chai-cli/chai-cli/internal/store"
)

func init() {
	convoCmd := &cobra.Command{
		Use:   "convo",
		Short: "Manage saved conversations",
	}

	convoCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := storeFromConfig()
			if err != nil {
				return err
			}
			logs, err := files.ListLogs()
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				fmt.Println("No saved conversations.")
				return nil
			}
			for _, l := range logs {
				fmt.Printf("  %-20s  %8s  %s\n", l.Name, humanize.Bytes(uint64(l.Size)), humanize.Time(l.UpdatedAt))
			}
			return nil
		},
	})

	convoCmd.AddCommand(&cobra.Command{
		Use:   "show [name]",
		Short: "Print a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := storeFromConfig()
			if err != nil {
				return err
			}
			msgs, err := files.LoadLog(args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("saved conversation not found: %s", args[0])
				}
				return err
			}
			fmt.Printf("File:      %s\n", files.LogPath(args[0]))
			fmt.Printf("Messages:  %d\n\n", len(msgs))
			for _, m := range msgs {
				fmt.Printf("%s: %s\n", m.Role, m.Content)
			}
			return nil
		},
	})

	convoCmd.AddCommand(&cobra.Command{
		Use:   "rm [name]",
		Short: "Delete a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := storeFromConfig()
			if err != nil {
				return err
			}
			if err := files.RemoveLog(args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("saved conversation not found: %s", args[0])
				}
				return err
			}
			fmt.Printf("Deleted saved conversation %s\n", args[0])
			return nil
		},
	})

	rootCmd.AddCommand(convoCmd)
}
