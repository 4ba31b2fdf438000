package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/harunnryd/sekisho/internal/approval"
	"github.com/harunnryd/sekisho/internal/concurrency"
	"github.com/harunnryd/sekisho/internal/config"
	"github.com/harunnryd/sekisho/internal/gateway"
	"github.com/harunnryd/sekisho/internal/history"
	"github.com/harunnryd/sekisho/internal/logger"
	"github.com/harunnryd/sekisho/internal/store"

	"github.com/spf13/cobra"
)

// invokeMessage is one message on the serve protocol: newline delimited
// JSON on stdin, replies as replyMessage lines on stdout. An empty Op is a
// tool invocation; "endConversation" cancels the conversation's pending
// calls and drops its session rules.
type invokeMessage struct {
	Op             string                 `json:"op,omitempty"`
	RequestID      string                 `json:"requestId"`
	ConversationID string                 `json:"conversationId"`
	TurnID         string                 `json:"turnId"`
	RoundID        int                    `json:"roundId"`
	ToolCallID     string                 `json:"toolCallId"`
	Name           string                 `json:"name"`
	Title          string                 `json:"title,omitempty"`
	Message        string                 `json:"message,omitempty"`
	Params         map[string]interface{} `json:"params,omitempty"`
}

type replyMessage struct {
	ToolCallID string `json:"toolCallId"`
	Accepted   bool   `json:"accepted"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tool-call checkpoint",
	Long:  `Read tool invocations as JSON lines on stdin and reply on stdout. Pending calls can be decided from another process with "sekisho pending approve|reject".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := openWorkspace(cmd)
		if err != nil {
			return err
		}

		staleTTL, err := config.DurationOrDefault(cfg.Store.StaleLockTTL, config.DefaultStoreStaleLockTTL)
		if err != nil {
			return fmt.Errorf("invalid store.stale_lock_ttl: %w", err)
		}
		forceClean, _ := cmd.Flags().GetBool("force-clean-locks")
		if err := store.CleanupStaleLocks(base, staleTTL, forceClean); err != nil {
			slog.Warn("Failed to clean up stale locks", "workspace", workspaceID(cmd), "error", err)
		}

		// One serving process per workspace: the gateway snapshot and the
		// dedupe store are not multi-writer safe.
		lockCfg, err := fileLockConfig()
		if err != nil {
			return err
		}
		lock, err := store.NewFileLock(workspaceID(cmd), base, lockCfg)
		if err != nil {
			lockPath, _ := store.GetLockPath(workspaceID(cmd), cfg.Store.WorkspacePath)
			return fmt.Errorf("workspace %q is in use (lock at %s): %w", workspaceID(cmd), lockPath, err)
		}
		defer func() {
			if lock.IsLocked() {
				lock.Unlock()
			}
		}()

		rules, err := openRules(cmd)
		if err != nil {
			return err
		}
		if !rules.Healthy() && cfg.Approval.FailClosed {
			slog.Warn("Rule store unhealthy, every call will prompt")
		}

		var ruleWatcher *approval.Watcher
		if cfg.Approval.WatchRules {
			ruleWatcher, err = approval.NewWatcher(rules)
			if err != nil {
				slog.Warn("Rule file watching disabled", "error", err)
			} else {
				defer ruleWatcher.Close()
			}
		}

		journalDir, err := store.GetJournalDir(workspaceID(cmd), cfg.Store.WorkspacePath)
		if err != nil {
			return err
		}
		histories := history.NewManager(journalDir, cfg.History.Journal, cfg.History.JournalRotateMaxBytes)
		defer histories.Close()

		gwDir, err := gatewayDir(cmd)
		if err != nil {
			return err
		}
		timeout, err := config.DurationOrDefault(cfg.Gateway.ConfirmationTimeout, config.DefaultGatewayConfirmTimeout)
		if err != nil {
			return fmt.Errorf("invalid gateway.confirmation_timeout: %w", err)
		}
		dedupeTTL, err := config.DurationOrDefault(cfg.Gateway.DedupeTTL, config.DefaultGatewayDedupeTTL)
		if err != nil {
			return fmt.Errorf("invalid gateway.dedupe_ttl: %w", err)
		}

		gw, err := gateway.New(histories, rules, gateway.Config{
			ConfirmationTimeout: timeout,
			DedupeDir:           gwDir,
			DedupeTTL:           dedupeTTL,
			SnapshotPath:        pendingSnapshotPath(gwDir),
		})
		if err != nil {
			return err
		}

		stopSpool, err := gw.WatchDecisions(decisionSpoolDir(gwDir))
		if err != nil {
			return err
		}
		defer stopSpool()

		reaper, err := gw.StartReaper(cfg.Gateway.ReaperSchedule)
		if err != nil {
			return err
		}
		defer reaper.Stop()

		handler := NewSignalHandler(cmd.Context())
		handler.Start()
		defer handler.Stop()

		slog.Info("Sekisho serving", "workspace", workspaceID(cmd), "confirmation_timeout", timeout)

		concurrency.SafeGo(func() {
			serveStdin(handler.Context(), gw, os.Stdin, os.Stdout)
			handler.Shutdown()
		}, nil)

		handler.Wait()
		return nil
	},
}

// serveStdin pumps invocations from r until EOF or ctx cancellation.
// Every accepted invocation eventually produces exactly one reply line.
func serveStdin(ctx context.Context, gw *gateway.Gateway, r io.Reader, w io.Writer) {
	var writeMu sync.Mutex
	respond := func(toolCallID string, accepted bool) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := json.NewEncoder(w).Encode(replyMessage{ToolCallID: toolCallID, Accepted: accepted}); err != nil {
			slog.Error("Failed to write reply", "tool_call", toolCallID, "error", err)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg invokeMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			slog.Warn("Dropping unparseable invocation line", "error", err)
			continue
		}

		switch msg.Op {
		case "":
		case "endConversation":
			if msg.ConversationID == "" {
				slog.Warn("Dropping endConversation without a conversation id")
				continue
			}
			gw.EndConversation(msg.ConversationID)
			continue
		default:
			slog.Warn("Dropping message with unknown op", "op", msg.Op)
			continue
		}

		reply, err := gw.HandleInvocation(gateway.Request{
			RequestID:      msg.RequestID,
			ConversationID: msg.ConversationID,
			TurnID:         msg.TurnID,
			RoundID:        msg.RoundID,
			ToolCallID:     msg.ToolCallID,
			Name:           msg.Name,
			Title:          msg.Title,
			Message:        msg.Message,
			Input:          msg.Params,
		})
		if err != nil {
			slog.Warn("Invocation not accepted", "tool_call", msg.ToolCallID, "error", err)
			continue
		}
		if reply == nil {
			continue
		}

		callCtx := logger.WithConversationID(logger.WithTraceID(ctx, msg.RequestID), msg.ConversationID)
		toolCallID := msg.ToolCallID
		concurrency.SafeGo(func() {
			select {
			case resp := <-reply:
				respond(toolCallID, resp.Accepted)
				slog.Debug("Reply delivered",
					"trace_id", logger.GetTraceID(callCtx),
					"conversation", logger.GetConversationID(callCtx),
					"tool_call", toolCallID,
					"accepted", resp.Accepted,
				)
			case <-callCtx.Done():
			}
		}, nil)
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Stdin closed with error", "error", err)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("force-clean-locks", false, "remove stale workspace lock files instead of only warning")
}
