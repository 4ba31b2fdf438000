package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/sekisho/internal/history"
	"github.com/harunnryd/sekisho/internal/store"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect conversation journals",
}

var historyLimit int

var historyShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show the journaled mutations of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		journalDir, err := store.GetJournalDir(workspaceID(cmd), cfg.Store.WorkspacePath)
		if err != nil {
			return err
		}

		entries, err := history.ReadJournal(journalDir, args[0], historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No journal entries")
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			detail := ""
			switch {
			case e.Turn != nil:
				detail = describeTurn(e.Turn)
			case len(e.TurnIDs) > 0:
				detail = strings.Join(e.TurnIDs, ", ")
			}
			rows = append(rows, []string{
				e.Timestamp.Format("2006-01-02 15:04:05"),
				string(e.Op),
				truncateString(detail, 60),
			})
		}
		fmt.Println(renderTable([]string{"Time", "Op", "Detail"}, rows))
		return nil
	},
}

func describeTurn(turn *history.Turn) string {
	var parts []string
	parts = append(parts, turn.ID)
	if turn.Role != "" {
		parts = append(parts, turn.Role)
	}
	for _, round := range turn.Rounds {
		for _, call := range round.ToolCalls {
			parts = append(parts, fmt.Sprintf("%s=%s", call.ID, call.Status))
		}
	}
	return strings.Join(parts, " ")
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <conversation-id>",
	Short: "Delete the journal of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		journalDir, err := store.GetJournalDir(workspaceID(cmd), cfg.Store.WorkspacePath)
		if err != nil {
			return err
		}

		removed := 0
		for _, path := range []string{
			filepath.Join(journalDir, args[0]+".jsonl"),
			filepath.Join(journalDir, args[0]+".jsonl.1"),
		} {
			if err := os.Remove(path); err == nil {
				removed++
			} else if !os.IsNotExist(err) {
				return err
			}
		}
		fmt.Printf("Removed %d journal file(s)\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyShowCmd.Flags().IntVar(&historyLimit, "limit", 100, "maximum entries to show (0 for all)")
}
