package gateway

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/sekisho/internal/approval"
	"github.com/harunnryd/sekisho/internal/concurrency"
	"github.com/harunnryd/sekisho/internal/errors"
	"github.com/harunnryd/sekisho/internal/history"
)

// Request is an incoming tool invocation from an agent host. RequestID is
// the host's delivery id and may repeat on retries; ToolCallID identifies
// the call itself.
type Request struct {
	RequestID      string
	ConversationID string
	TurnID         string
	RoundID        int
	ToolCallID     string
	Name           string
	Title          string
	Message        string
	Input          map[string]interface{}
}

// Config tunes the gateway. A zero ConfirmationTimeout parks calls
// indefinitely; an empty DedupeDir disables request deduplication; an
// empty SnapshotPath disables the pending-calls file other processes read.
type Config struct {
	ConfirmationTimeout time.Duration
	DedupeDir           string
	DedupeTTL           time.Duration
	SnapshotPath        string
}

// Gateway is the checkpoint between agent hosts and the user: it records
// every tool call in conversation history, auto-approves what the rules
// permit and parks the rest until a decision arrives.
type Gateway struct {
	histories *history.Manager
	rules     *approval.RuleStore
	engine    *approval.Engine
	registry  *Registry
	dedupe    *dedupeStore
	locks     *concurrency.ConversationLockManager
	timeout   time.Duration
	snapshot  string
}

func New(histories *history.Manager, rules *approval.RuleStore, cfg Config) (*Gateway, error) {
	g := &Gateway{
		histories: histories,
		rules:     rules,
		engine:    approval.NewEngine(rules),
		registry:  NewRegistry(),
		locks:     concurrency.NewConversationLockManager(),
		timeout:   cfg.ConfirmationTimeout,
		snapshot:  cfg.SnapshotPath,
	}
	if cfg.DedupeDir != "" {
		d, err := newDedupeStore(cfg.DedupeDir, cfg.DedupeTTL)
		if err != nil {
			return nil, fmt.Errorf("open dedupe store: %w", err)
		}
		g.dedupe = d
	}
	return g, nil
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

// HandleInvocation evaluates a tool request against the rules, records it
// in history and returns a channel carrying exactly one Response. A
// malformed request is dropped: the returned channel is nil and no history
// is written. A replayed request id returns ErrDuplicateRequest.
func (g *Gateway) HandleInvocation(req Request) (<-chan Response, error) {
	if req.ConversationID == "" || req.TurnID == "" || req.ToolCallID == "" || req.Name == "" {
		slog.Warn("Dropping malformed tool invocation",
			"conversation", req.ConversationID,
			"turn", req.TurnID,
			"tool_call", req.ToolCallID,
			"tool", req.Name,
		)
		return nil, nil
	}

	if g.dedupe != nil {
		dup, err := g.dedupe.CheckAndMark(req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("mark request %q: %w", req.RequestID, err)
		}
		if dup {
			slog.Warn("Dropping replayed tool invocation",
				"conversation", req.ConversationID,
				"request", req.RequestID,
			)
			return nil, errors.ErrDuplicateRequest
		}
	}

	// Evaluation, the history append and parking happen as one unit per
	// conversation so a decision cannot interleave with them.
	g.locks.Lock(req.ConversationID)
	defer g.locks.Unlock(req.ConversationID)

	decision := g.engine.Evaluate(req.ConversationID, approval.ToolRequest{
		Name:    req.Name,
		Title:   req.Title,
		Message: req.Message,
		Input:   req.Input,
	})

	status := history.StatusWaitConfirmation
	if decision.AutoApprove {
		status = history.StatusAccepted
	}

	store := g.histories.Get(req.ConversationID)
	turnID := store.ResolveParent(req.TurnID)
	store.Append(history.Turn{
		ID:   turnID,
		Role: history.RoleAssistant,
		Rounds: []history.Round{{
			RoundID: req.RoundID,
			ToolCalls: []history.ToolCall{{
				ID:           req.ToolCallID,
				Name:         req.Name,
				Title:        req.Title,
				Status:       status,
				InvokeParams: req.Input,
			}},
		}},
	})

	reply := make(chan Response, 1)
	if decision.AutoApprove {
		slog.Debug("Tool call auto-approved",
			"conversation", req.ConversationID,
			"tool_call", req.ToolCallID,
			"reason", decision.Reason,
		)
		reply <- Response{Accepted: true}
		return reply, nil
	}

	pending := &PendingToolCall{
		RequestID:      req.RequestID,
		ConversationID: req.ConversationID,
		TurnID:         turnID,
		RoundID:        req.RoundID,
		ToolCallID:     req.ToolCallID,
		ToolName:       req.Name,
		Decision:       decision,
		ParkedAt:       time.Now(),
		reply:          reply,
	}
	if g.timeout > 0 {
		pending.Deadline = pending.ParkedAt.Add(g.timeout)
	}
	if !g.registry.Park(pending) {
		return nil, fmt.Errorf("tool call %q already pending: %w", req.ToolCallID, errors.ErrConflict)
	}
	g.syncPending()

	slog.Info("Tool call awaiting confirmation",
		"conversation", req.ConversationID,
		"tool_call", req.ToolCallID,
		"tool", req.Name,
		"reason", decision.Reason,
	)
	return reply, nil
}

// ApproveOptions controls what an approval leaves behind. A nil
// RememberScope approves this call only; otherwise a matching rule is
// written at the given scope. WholeServer widens an MCP approval from the
// single tool to the whole server.
type ApproveOptions struct {
	RememberScope *approval.Scope
	WholeServer   bool
}

// Approve resolves a pending tool call in the caller's favor.
func (g *Gateway) Approve(toolCallID string, opts ApproveOptions) error {
	entry, ok := g.registry.Get(toolCallID)
	if !ok {
		return fmt.Errorf("tool call %q: %w", toolCallID, errors.ErrNotFound)
	}
	g.locks.Lock(entry.ConversationID)
	defer g.locks.Unlock(entry.ConversationID)

	if err := g.patchStatus(entry, history.StatusAccepted); err != nil {
		return err
	}
	if opts.RememberScope != nil {
		if err := g.remember(entry, *opts.RememberScope, opts.WholeServer); err != nil {
			// The call is already approved; the rule write failing only
			// means the next identical call will prompt again.
			slog.Warn("Approved but failed to persist rule",
				"tool_call", toolCallID,
				"error", err,
			)
		}
	}

	if _, resolved := g.registry.Resolve(toolCallID, true); !resolved {
		return fmt.Errorf("tool call %q resolved concurrently: %w", toolCallID, errors.ErrConflict)
	}
	g.syncPending()
	slog.Info("Tool call approved", "conversation", entry.ConversationID, "tool_call", toolCallID)
	return nil
}

// Reject resolves a pending tool call against the caller.
func (g *Gateway) Reject(toolCallID string) error {
	entry, ok := g.registry.Get(toolCallID)
	if !ok {
		return fmt.Errorf("tool call %q: %w", toolCallID, errors.ErrNotFound)
	}
	g.locks.Lock(entry.ConversationID)
	defer g.locks.Unlock(entry.ConversationID)

	if err := g.patchStatus(entry, history.StatusCancelled); err != nil {
		return err
	}
	if _, resolved := g.registry.Resolve(toolCallID, false); !resolved {
		return fmt.Errorf("tool call %q resolved concurrently: %w", toolCallID, errors.ErrConflict)
	}
	g.syncPending()
	slog.Info("Tool call rejected", "conversation", entry.ConversationID, "tool_call", toolCallID)
	return nil
}

// Cancel withdraws a pending tool call, for example when the host aborts
// the turn. Cancelling a call that is not pending is a no-op.
func (g *Gateway) Cancel(toolCallID string) {
	peek, ok := g.registry.Get(toolCallID)
	if !ok {
		return
	}
	g.locks.Lock(peek.ConversationID)
	defer g.locks.Unlock(peek.ConversationID)

	entry, resolved := g.registry.Resolve(toolCallID, false)
	if !resolved {
		return
	}
	if err := g.patchStatus(entry, history.StatusCancelled); err != nil {
		slog.Warn("Cancelled tool call but failed to patch history",
			"tool_call", toolCallID,
			"error", err,
		)
	}
	g.syncPending()
	slog.Info("Tool call cancelled", "conversation", entry.ConversationID, "tool_call", toolCallID)
}

// patchStatus appends a minimal status-only patch for the pending call,
// shaped at the turn's top-level rounds even when the call sits in a
// sub-agent round.
func (g *Gateway) patchStatus(entry *PendingToolCall, status history.Status) error {
	store := g.histories.Get(entry.ConversationID)
	for _, turn := range store.Read() {
		if turn.ID != entry.TurnID || turn.Role != history.RoleAssistant {
			continue
		}
		patch, ok := history.LocateStatusPatch(entry.ToolCallID, status, turn.Rounds)
		if !ok {
			return fmt.Errorf("tool call %q not in turn %q: %w", entry.ToolCallID, entry.TurnID, errors.ErrNotFound)
		}
		store.Append(history.Turn{
			ID:     entry.TurnID,
			Role:   history.RoleAssistant,
			Rounds: []history.Round{patch},
		})
		return nil
	}
	return fmt.Errorf("turn %q: %w", entry.TurnID, errors.ErrNotFound)
}

// remember persists a rule matching the decision that parked the call.
func (g *Gateway) remember(entry *PendingToolCall, scope approval.Scope, wholeServer bool) error {
	d := entry.Decision
	switch d.Kind {
	case approval.KindTerminalCommand:
		for _, name := range d.CommandNames {
			if err := g.rules.SetCommandRule(scope, name, true); err != nil {
				return err
			}
		}
		return nil
	case approval.KindSensitiveFile:
		return g.rules.SetSensitiveFileRule(scope, d.FileKey, approval.SensitiveFileRule{
			Description: d.FileKey,
			AutoApprove: true,
		})
	case approval.KindMCP:
		if wholeServer || d.MCPTool == "" {
			return g.rules.SetMCPServerAllowed(scope, d.MCPServer, true)
		}
		return g.rules.SetMCPToolAllowed(scope, d.MCPServer, d.MCPTool)
	}
	return fmt.Errorf("rule kind %q: %w", d.Kind, errors.ErrInvalidInput)
}

// Pending lists the parked tool calls, oldest first.
func (g *Gateway) Pending() []PendingToolCall {
	return g.registry.List()
}

// EndConversation cancels every pending call of the conversation and
// discards its session-scoped rules. Global rules are untouched.
func (g *Gateway) EndConversation(conversationID string) {
	pending := g.registry.List()
	for i := range pending {
		if pending[i].ConversationID == conversationID {
			g.Cancel(pending[i].ToolCallID)
		}
	}
	g.rules.DropSession(conversationID)
	slog.Info("Conversation ended", "conversation", conversationID)
}

// expireOverdue cancels every parked call whose deadline passed, patching
// its tool call to cancelled and replying accepted=false.
func (g *Gateway) expireOverdue(now time.Time) {
	for _, entry := range g.registry.TakeExpired(now) {
		entry.resolve(false)
		g.locks.Lock(entry.ConversationID)
		if err := g.patchStatus(entry, history.StatusCancelled); err != nil {
			slog.Warn("Expired tool call but failed to patch history",
				"tool_call", entry.ToolCallID,
				"error", err,
			)
		}
		g.locks.Unlock(entry.ConversationID)
		slog.Info("Tool call expired",
			"conversation", entry.ConversationID,
			"tool_call", entry.ToolCallID,
			"parked_at", entry.ParkedAt,
		)
	}
	g.syncPending()
	if g.dedupe != nil {
		if err := g.dedupe.Prune(now); err != nil {
			slog.Warn("Failed to prune request dedupe store", "error", err)
		}
	}
}
