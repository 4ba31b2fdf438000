package gateway

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"

	"github.com/harunnryd/sekisho/internal/approval"
	"github.com/harunnryd/sekisho/internal/concurrency"
	"github.com/harunnryd/sekisho/internal/errors"
	"github.com/harunnryd/sekisho/internal/store"
)

// The gateway owns the registry in-process; other processes observe and
// drive it through two files under the workspace. The pending snapshot is
// rewritten after every registry change, and decision requests are dropped
// into a spool directory the gateway watches.

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionCancel  = "cancel"
)

// DecisionRequest is a spooled user decision for a pending tool call.
// Remember is empty for a one-off decision, or "session"/"global" to also
// persist a matching rule at that scope.
type DecisionRequest struct {
	ToolCallID  string `json:"toolCallId"`
	Action      string `json:"action"`
	Remember    string `json:"remember,omitempty"`
	WholeServer bool   `json:"wholeServer,omitempty"`
}

// WriteDecision spools a decision for the gateway process to pick up.
func WriteDecision(dir string, req DecisionRequest) error {
	if req.ToolCallID == "" {
		return fmt.Errorf("decision needs a tool call id: %w", errors.ErrInvalidInput)
	}
	switch req.Action {
	case ActionApprove, ActionReject, ActionCancel:
	default:
		return fmt.Errorf("decision action %q: %w", req.Action, errors.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create decision spool: %w", err)
	}
	name := ulid.Make().String() + ".json"
	return store.WriteJSON(filepath.Join(dir, name), req)
}

// ReadPendingSnapshot reads the pending-calls file written by a running
// gateway. A missing file means nothing is pending.
func ReadPendingSnapshot(path string) ([]PendingToolCall, error) {
	var pending []PendingToolCall
	if err := store.ReadJSON(path, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (g *Gateway) syncPending() {
	if g.snapshot == "" {
		return
	}
	if err := store.WriteJSON(g.snapshot, g.registry.List()); err != nil {
		slog.Warn("Failed to write pending snapshot", "path", g.snapshot, "error", err)
	}
}

// WatchDecisions consumes spooled decisions until the returned stop
// function is called. Each spool file is applied once and then removed;
// malformed files are removed without effect.
func (g *Gateway) WatchDecisions(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create decision spool: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch decision spool: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch decision spool: %w", err)
	}

	// Decisions spooled before the watch started.
	g.drainSpool(dir)

	done := make(chan struct{})
	concurrency.SafeGo(func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && strings.HasSuffix(event.Name, ".json") {
					g.applySpooled(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Decision spool watch error", "error", err)
			case <-done:
				return
			}
		}
	}, nil)

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

func (g *Gateway) drainSpool(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			g.applySpooled(filepath.Join(dir, e.Name()))
		}
	}
}

func (g *Gateway) applySpooled(path string) {
	var req DecisionRequest
	if err := store.ReadJSON(path, &req); err != nil {
		slog.Warn("Dropping unreadable decision", "path", path, "error", err)
		os.Remove(path)
		return
	}
	if req.ToolCallID == "" {
		// Partially written file; the follow-up write event retries it.
		return
	}

	if err := g.applyDecision(req); err != nil {
		slog.Warn("Decision failed",
			"tool_call", req.ToolCallID,
			"action", req.Action,
			"error", err,
		)
	}
	os.Remove(path)
}

func (g *Gateway) applyDecision(req DecisionRequest) error {
	switch req.Action {
	case ActionApprove:
		opts := ApproveOptions{WholeServer: req.WholeServer}
		switch req.Remember {
		case "":
		case string(approval.ScopeSession):
			entry, ok := g.registry.Get(req.ToolCallID)
			if !ok {
				return fmt.Errorf("tool call %q: %w", req.ToolCallID, errors.ErrNotFound)
			}
			scope := approval.SessionScope(entry.ConversationID)
			opts.RememberScope = &scope
		case string(approval.ScopeGlobal):
			scope := approval.GlobalScope()
			opts.RememberScope = &scope
		default:
			return fmt.Errorf("remember scope %q: %w", req.Remember, errors.ErrInvalidInput)
		}
		return g.Approve(req.ToolCallID, opts)
	case ActionReject:
		return g.Reject(req.ToolCallID)
	case ActionCancel:
		g.Cancel(req.ToolCallID)
		return nil
	}
	return fmt.Errorf("decision action %q: %w", req.Action, errors.ErrInvalidInput)
}
