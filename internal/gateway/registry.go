package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/sekisho/internal/approval"
)

// Response is the reply to a tool invocation, delivered exactly once.
type Response struct {
	Accepted bool
}

// PendingToolCall is a parked invocation awaiting a user decision. It exists
// only between the waitForConfirmation append and the decision; it is
// removed exactly once by one of approve, reject, cancel or expiry.
type PendingToolCall struct {
	RequestID      string            `json:"requestId,omitempty"`
	ConversationID string            `json:"conversationId"`
	TurnID         string            `json:"turnId"`
	RoundID        int               `json:"roundId"`
	ToolCallID     string            `json:"toolCallId"`
	ToolName       string            `json:"toolName"`
	Decision       approval.Decision `json:"decision"`
	ParkedAt       time.Time         `json:"parkedAt"`
	Deadline       time.Time         `json:"deadline,omitempty"` // zero means wait indefinitely

	reply chan Response
	once  sync.Once
}

func (p *PendingToolCall) resolve(accepted bool) {
	p.once.Do(func() {
		p.reply <- Response{Accepted: accepted}
	})
}

// Registry tracks parked tool calls keyed by tool-call id. It is mutated by
// independent flows (gateway inserts, decision handlers and the reaper
// remove), so every access happens under its own lock.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*PendingToolCall
}

func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]*PendingToolCall)}
}

// Park registers a pending call. Parking an id twice is a conflict: tool
// call ids are unique within a conversation for the call's lifetime.
func (r *Registry) Park(p *PendingToolCall) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pending[p.ToolCallID]; exists {
		return false
	}
	r.pending[p.ToolCallID] = p
	return true
}

// Get peeks at a pending call without removing it.
func (r *Registry) Get(toolCallID string) (*PendingToolCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[toolCallID]
	return p, ok
}

// Resolve removes the entry and delivers the reply. A missing entry is not
// an error; the call may already have been resolved or cancelled.
func (r *Registry) Resolve(toolCallID string, accepted bool) (*PendingToolCall, bool) {
	r.mu.Lock()
	p, ok := r.pending[toolCallID]
	if ok {
		delete(r.pending, toolCallID)
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	p.resolve(accepted)
	return p, true
}

// TakeExpired removes and returns every entry whose deadline has passed.
func (r *Registry) TakeExpired(now time.Time) []*PendingToolCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*PendingToolCall
	for id, p := range r.pending {
		if !p.Deadline.IsZero() && now.After(p.Deadline) {
			expired = append(expired, p)
			delete(r.pending, id)
		}
	}
	return expired
}

// List returns a snapshot of the pending calls, oldest first.
func (r *Registry) List() []PendingToolCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PendingToolCall, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, PendingToolCall{
			RequestID:      p.RequestID,
			ConversationID: p.ConversationID,
			TurnID:         p.TurnID,
			RoundID:        p.RoundID,
			ToolCallID:     p.ToolCallID,
			ToolName:       p.ToolName,
			Decision:       p.Decision,
			ParkedAt:       p.ParkedAt,
			Deadline:       p.Deadline,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParkedAt.Before(out[j].ParkedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
