package approval

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/harunnryd/sekisho/internal/concurrency"
	sekishoErrors "github.com/harunnryd/sekisho/internal/errors"
	"github.com/harunnryd/sekisho/internal/store"
)

const (
	terminalCommandsFile = "terminal_commands.json"
	sensitiveFilesFile   = "sensitive_files.json"
	mcpServersFile       = "mcp_servers.json"
)

// RuleStore holds the approval rule sets at global scope (persisted JSON
// files) and session scope (in-memory, per conversation id). Reads return
// consistent copies so an in-flight policy evaluation never observes a
// half-written rule set; global writes persist before they apply.
type RuleStore struct {
	dir string

	mu       sync.RWMutex
	terminal TerminalCommandsRules
	files    SensitiveFilesRules
	mcp      AutoApprovedMCPServers
	sessions map[string]*sessionRules
	loadErr  error

	subMu       sync.Mutex
	subscribers map[int]func(RuleChange)
	nextSubID   int
}

type sessionRules struct {
	terminal TerminalCommandsRules
	files    SensitiveFilesRules
	mcp      AutoApprovedMCPServers
}

func newSessionRules() *sessionRules {
	return &sessionRules{
		terminal: newTerminalCommandsRules(),
		files:    newSensitiveFilesRules(),
		mcp:      newAutoApprovedMCPServers(),
	}
}

func NewRuleStore(dir string) *RuleStore {
	s := &RuleStore{
		dir:         dir,
		terminal:    newTerminalCommandsRules(),
		files:       newSensitiveFilesRules(),
		mcp:         newAutoApprovedMCPServers(),
		sessions:    make(map[string]*sessionRules),
		subscribers: make(map[int]func(RuleChange)),
	}
	s.Reload()
	return s
}

func (s *RuleStore) Dir() string {
	return s.dir
}

// Reload re-reads the persisted global rule files. A read failure marks the
// store dirty; lookups then report not-found so policy evaluation denies.
func (s *RuleStore) Reload() {
	terminal := newTerminalCommandsRules()
	files := newSensitiveFilesRules()
	mcp := newAutoApprovedMCPServers()

	var loadErr error
	if err := store.ReadJSON(filepath.Join(s.dir, terminalCommandsFile), &terminal); err != nil {
		loadErr = fmt.Errorf("read terminal command rules: %w", err)
	}
	if err := store.ReadJSON(filepath.Join(s.dir, sensitiveFilesFile), &files); err != nil {
		loadErr = fmt.Errorf("read sensitive file rules: %w", err)
	}
	if err := store.ReadJSON(filepath.Join(s.dir, mcpServersFile), &mcp); err != nil {
		loadErr = fmt.Errorf("read mcp server rules: %w", err)
	}

	s.mu.Lock()
	if loadErr != nil {
		slog.Error("Failed to load approval rules, denying until recovered", "error", loadErr)
		s.loadErr = loadErr
	} else {
		s.terminal = terminal
		s.files = files
		s.mcp = mcp
		s.loadErr = nil
	}
	s.mu.Unlock()
}

// Healthy reports whether the last global load succeeded.
func (s *RuleStore) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr == nil
}

// CommandRule looks up a terminal-command rule at one scope. ok is false for
// unknown keys and whenever the persisted rules could not be read.
func (s *RuleStore) CommandRule(scope Scope, key string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scope.Kind == ScopeSession {
		if sess, exists := s.sessions[scope.ConversationID]; exists {
			v, ok := sess.terminal.Commands[key]
			return v, ok
		}
		return false, false
	}

	if s.loadErr != nil {
		return false, false
	}
	v, ok := s.terminal.Commands[key]
	return v, ok
}

// CommandAllowed reports whether the key is auto-approved at session or
// global scope for the conversation.
func (s *RuleStore) CommandAllowed(conversationID, key string) bool {
	if v, ok := s.CommandRule(SessionScope(conversationID), key); ok && v {
		return true
	}
	if v, ok := s.CommandRule(GlobalScope(), key); ok && v {
		return true
	}
	return false
}

func (s *RuleStore) SetCommandRule(scope Scope, key string, autoApprove bool) error {
	s.mu.Lock()

	if scope.Kind == ScopeSession {
		s.sessionLocked(scope.ConversationID).terminal.Commands[key] = autoApprove
		s.mu.Unlock()
		s.publish(RuleChange{Kind: KindTerminalCommand, Scope: scope})
		return nil
	}

	// write-then-apply: persistence failure leaves memory untouched
	next := newTerminalCommandsRules()
	for k, v := range s.terminal.Commands {
		next.Commands[k] = v
	}
	next.Commands[key] = autoApprove
	if err := store.WriteJSON(filepath.Join(s.dir, terminalCommandsFile), next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist terminal command rule: %w (%w)", err, sekishoErrors.ErrPersistence)
	}
	s.terminal = next
	s.mu.Unlock()
	s.publish(RuleChange{Kind: KindTerminalCommand, Scope: scope})
	return nil
}

func (s *RuleStore) SensitiveFileRule(scope Scope, key string) (SensitiveFileRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scope.Kind == ScopeSession {
		if sess, exists := s.sessions[scope.ConversationID]; exists {
			rule, ok := sess.files.Rules[key]
			return rule, ok
		}
		return SensitiveFileRule{}, false
	}

	if s.loadErr != nil {
		return SensitiveFileRule{}, false
	}
	rule, ok := s.files.Rules[key]
	return rule, ok
}

func (s *RuleStore) SensitiveFileAllowed(conversationID, key string) bool {
	if rule, ok := s.SensitiveFileRule(SessionScope(conversationID), key); ok && rule.AutoApprove {
		return true
	}
	if rule, ok := s.SensitiveFileRule(GlobalScope(), key); ok && rule.AutoApprove {
		return true
	}
	return false
}

func (s *RuleStore) SetSensitiveFileRule(scope Scope, key string, rule SensitiveFileRule) error {
	s.mu.Lock()

	if scope.Kind == ScopeSession {
		s.sessionLocked(scope.ConversationID).files.Rules[key] = rule
		s.mu.Unlock()
		s.publish(RuleChange{Kind: KindSensitiveFile, Scope: scope})
		return nil
	}

	next := newSensitiveFilesRules()
	for k, v := range s.files.Rules {
		next.Rules[k] = v
	}
	next.Rules[key] = rule
	if err := store.WriteJSON(filepath.Join(s.dir, sensitiveFilesFile), next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist sensitive file rule: %w (%w)", err, sekishoErrors.ErrPersistence)
	}
	s.files = next
	s.mu.Unlock()
	s.publish(RuleChange{Kind: KindSensitiveFile, Scope: scope})
	return nil
}

func (s *RuleStore) MCPServer(scope Scope, server string) (MCPServerApproval, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scope.Kind == ScopeSession {
		if sess, exists := s.sessions[scope.ConversationID]; exists {
			approval, ok := sess.mcp.Servers[server]
			return approval, ok
		}
		return MCPServerApproval{}, false
	}

	if s.loadErr != nil {
		return MCPServerApproval{}, false
	}
	approval, ok := s.mcp.Servers[server]
	return approval, ok
}

// MCPAllowed reports whether the server (or the specific tool on it) is
// approved at session or global scope. A server-level allow wins over
// tool-level entries.
func (s *RuleStore) MCPAllowed(conversationID, server, tool string) bool {
	if approval, ok := s.MCPServer(SessionScope(conversationID), server); ok && approval.ToolAllowed(tool) {
		return true
	}
	if approval, ok := s.MCPServer(GlobalScope(), server); ok && approval.ToolAllowed(tool) {
		return true
	}
	return false
}

func (s *RuleStore) SetMCPServerAllowed(scope Scope, server string, allowed bool) error {
	return s.setMCP(scope, server, func(approval *MCPServerApproval) {
		approval.IsServerAllowed = allowed
	})
}

func (s *RuleStore) SetMCPToolAllowed(scope Scope, server, tool string) error {
	return s.setMCP(scope, server, func(approval *MCPServerApproval) {
		if approval.ToolAllowed(tool) {
			return
		}
		approval.AllowedTools = append(approval.AllowedTools, tool)
	})
}

func (s *RuleStore) setMCP(scope Scope, server string, update func(*MCPServerApproval)) error {
	s.mu.Lock()

	if scope.Kind == ScopeSession {
		sess := s.sessionLocked(scope.ConversationID)
		approval := sess.mcp.Servers[server]
		update(&approval)
		sess.mcp.Servers[server] = approval
		s.mu.Unlock()
		s.publish(RuleChange{Kind: KindMCP, Scope: scope})
		return nil
	}

	next := newAutoApprovedMCPServers()
	for k, v := range s.mcp.Servers {
		next.Servers[k] = v
	}
	approval := next.Servers[server]
	update(&approval)
	next.Servers[server] = approval
	if err := store.WriteJSON(filepath.Join(s.dir, mcpServersFile), next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist mcp server rule: %w (%w)", err, sekishoErrors.ErrPersistence)
	}
	s.mcp = next
	s.mu.Unlock()
	s.publish(RuleChange{Kind: KindMCP, Scope: scope})
	return nil
}

// GlobalTerminalCommands returns a copy of the persisted command rules.
func (s *RuleStore) GlobalTerminalCommands() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.terminal.Commands))
	for k, v := range s.terminal.Commands {
		out[k] = v
	}
	return out
}

// GlobalSensitiveFiles returns a copy of the persisted sensitive-file rules.
func (s *RuleStore) GlobalSensitiveFiles() map[string]SensitiveFileRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]SensitiveFileRule, len(s.files.Rules))
	for k, v := range s.files.Rules {
		out[k] = v
	}
	return out
}

// GlobalMCPServers returns a copy of the persisted MCP approvals.
func (s *RuleStore) GlobalMCPServers() map[string]MCPServerApproval {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]MCPServerApproval, len(s.mcp.Servers))
	for k, v := range s.mcp.Servers {
		v.AllowedTools = append([]string(nil), v.AllowedTools...)
		out[k] = v
	}
	return out
}

// DropSession discards the volatile rules of one conversation.
func (s *RuleStore) DropSession(conversationID string) {
	s.mu.Lock()
	delete(s.sessions, conversationID)
	s.mu.Unlock()
}

// Subscribe registers a rule-change listener and returns its cancel func.
func (s *RuleStore) Subscribe(fn func(RuleChange)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *RuleStore) publish(change RuleChange) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, fn := range s.subscribers {
		fn := fn
		concurrency.SafeGo(func() { fn(change) }, nil)
	}
}

func (s *RuleStore) sessionLocked(conversationID string) *sessionRules {
	sess, ok := s.sessions[conversationID]
	if !ok {
		sess = newSessionRules()
		s.sessions[conversationID] = sess
	}
	return sess
}
