package main

import (
	"fmt"
	"time"

	"github.com/harunnryd/sekisho/internal/gateway"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect and decide pending tool calls",
	Long:  `Work with the tool calls a running "sekisho serve" process is holding for confirmation. Decisions are spooled through the workspace and picked up by the serving process.`,
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tool calls awaiting confirmation",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := gatewayDir(cmd)
		if err != nil {
			return err
		}
		pending, err := gateway.ReadPendingSnapshot(pendingSnapshotPath(dir))
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No pending tool calls")
			return nil
		}

		rows := make([][]string, 0, len(pending))
		for i := range pending {
			p := &pending[i]
			deadline := "-"
			if !p.Deadline.IsZero() {
				deadline = p.Deadline.Format(time.RFC3339)
			}
			rows = append(rows, []string{
				truncateString(p.ToolCallID, 26),
				truncateString(p.ConversationID, 20),
				truncateString(p.ToolName, 24),
				truncateString(p.Decision.Reason, 36),
				deadline,
			})
		}
		fmt.Println(renderTable([]string{"Tool Call", "Conversation", "Tool", "Reason", "Deadline"}, rows))
		return nil
	},
}

var (
	pendingRemember    string
	pendingWholeServer bool
)

var pendingApproveCmd = &cobra.Command{
	Use:   "approve <tool-call-id>",
	Short: "Approve a pending tool call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return spoolDecision(cmd, gateway.DecisionRequest{
			ToolCallID:  args[0],
			Action:      gateway.ActionApprove,
			Remember:    pendingRemember,
			WholeServer: pendingWholeServer,
		})
	},
}

var pendingRejectCmd = &cobra.Command{
	Use:   "reject <tool-call-id>",
	Short: "Reject a pending tool call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return spoolDecision(cmd, gateway.DecisionRequest{
			ToolCallID: args[0],
			Action:     gateway.ActionReject,
		})
	},
}

func spoolDecision(cmd *cobra.Command, req gateway.DecisionRequest) error {
	dir, err := gatewayDir(cmd)
	if err != nil {
		return err
	}
	if err := gateway.WriteDecision(decisionSpoolDir(dir), req); err != nil {
		return err
	}
	fmt.Printf("Decision spooled: %s %s\n", req.Action, req.ToolCallID)
	return nil
}

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingApproveCmd)
	pendingCmd.AddCommand(pendingRejectCmd)

	pendingApproveCmd.Flags().StringVar(&pendingRemember, "remember", "", "also persist a matching rule (session or global)")
	pendingApproveCmd.Flags().BoolVar(&pendingWholeServer, "whole-server", false, "approve the whole MCP server, not just the tool")
}
