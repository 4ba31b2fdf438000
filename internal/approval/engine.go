package approval

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"

	"github.com/harunnryd/sekisho/internal/shellparse"
)

// ToolRequest is the policy-relevant slice of a tool invocation.
type ToolRequest struct {
	Name    string
	Title   string
	Message string
	Input   map[string]interface{}
}

// Decision is the outcome of a policy evaluation, carrying enough context
// for the gateway to persist a matching rule when the user later approves
// with a remember flag.
type Decision struct {
	AutoApprove  bool     `json:"autoApprove"`
	Kind         RuleKind `json:"kind"`
	Reason       string   `json:"reason,omitempty"`
	CommandLine  string   `json:"commandLine,omitempty"`
	CommandNames []string `json:"commandNames,omitempty"`
	FileKey      string   `json:"fileKey,omitempty"`
	MCPServer    string   `json:"mcpServer,omitempty"`
	MCPTool      string   `json:"mcpTool,omitempty"`
}

// Engine decides whether a tool invocation is pre-approved by the rule
// store. Every failure path denies: denying only costs a prompt, approving
// incorrectly costs unintended execution.
type Engine struct {
	rules *RuleStore
}

func NewEngine(rules *RuleStore) *Engine {
	return &Engine{rules: rules}
}

// Evaluate applies the policy order: MCP server approvals first, then
// sensitive-file rules, then terminal-command rules.
func (e *Engine) Evaluate(conversationID string, req ToolRequest) Decision {
	if server, tool, ok := MCPTarget(req.Name, req.Title); ok {
		decision := Decision{Kind: KindMCP, MCPServer: server, MCPTool: tool}
		if e.rules.MCPAllowed(conversationID, server, tool) {
			decision.AutoApprove = true
			decision.Reason = fmt.Sprintf("mcp server %q approved", server)
		} else {
			decision.Reason = fmt.Sprintf("mcp server %q not approved", server)
		}
		return decision
	}

	if key, ok := SensitiveFileKey(req.Message); ok {
		decision := Decision{Kind: KindSensitiveFile, FileKey: key}
		if e.rules.SensitiveFileAllowed(conversationID, key) {
			decision.AutoApprove = true
			decision.Reason = fmt.Sprintf("sensitive file %q approved", key)
		} else {
			decision.Reason = fmt.Sprintf("sensitive file %q not approved", key)
		}
		return decision
	}

	params, err := ParseTerminalCommandParams(req.Input)
	if err != nil {
		return Decision{Kind: KindTerminalCommand, Reason: err.Error()}
	}
	command := params.Command
	names := shellparse.CommandNames(command)
	decision := Decision{Kind: KindTerminalCommand, CommandLine: command, CommandNames: names}

	if len(names) == 0 {
		decision.Reason = "no command to evaluate"
		return decision
	}

	// An exact-command-line rule covers the whole line in one key.
	if e.rules.CommandAllowed(conversationID, command) {
		decision.AutoApprove = true
		decision.Reason = "exact command line approved"
		return decision
	}

	// Otherwise every extracted name must be approved.
	for _, name := range names {
		if !e.rules.CommandAllowed(conversationID, name) {
			decision.Reason = fmt.Sprintf("command %q not approved", name)
			return decision
		}
	}

	decision.AutoApprove = true
	decision.Reason = "all command names approved"
	return decision
}

// ShouldAutoApprove is the boolean view of Evaluate used by simple callers.
func (e *Engine) ShouldAutoApprove(conversationID string, req ToolRequest) bool {
	decision := e.Evaluate(conversationID, req)
	slog.Debug("Policy evaluated",
		"conversation", conversationID,
		"tool", req.Name,
		"kind", decision.Kind,
		"auto_approve", decision.AutoApprove,
		"reason", decision.Reason,
	)
	return decision.AutoApprove
}

// MCP tool names arrive encoded as mcp__<server>__<tool>; some hosts carry
// the server in the title as "MCP: <server>" instead.
const mcpNamePrefix = "mcp__"

var mcpTitlePattern = regexp.MustCompile(`^MCP:\s*([^/\s]+)\s*(?:/\s*(\S+))?$`)

func MCPTarget(name, title string) (server, tool string, ok bool) {
	if strings.HasPrefix(name, mcpNamePrefix) {
		parts := strings.SplitN(strings.TrimPrefix(name, mcpNamePrefix), "__", 2)
		if parts[0] == "" {
			return "", "", false
		}
		server = parts[0]
		if len(parts) == 2 {
			tool = parts[1]
		}
		return server, tool, true
	}

	if m := mcpTitlePattern.FindStringSubmatch(strings.TrimSpace(title)); m != nil {
		server = m[1]
		tool = m[2]
		if tool == "" {
			tool = name
		}
		return server, tool, true
	}

	return "", "", false
}

// Sensitive-file confirmations carry a message like:
//
//	Allow access to sensitive file "~/.ssh/config"?
//
// The file key is the quoted path when one is present, otherwise a stable
// hash of the whole message, so equal prompts always map to the same rule.
var sensitiveFilePattern = regexp.MustCompile(`(?i)sensitive file\s+["']?([^"'?]+?)["']?\??\s*$`)
var sensitiveFileMarker = regexp.MustCompile(`(?i)sensitive file`)

func SensitiveFileKey(message string) (string, bool) {
	message = strings.TrimSpace(message)
	if message == "" || !sensitiveFileMarker.MatchString(message) {
		return "", false
	}

	if m := sensitiveFilePattern.FindStringSubmatch(message); m != nil {
		if path := strings.TrimSpace(m[1]); path != "" {
			return path, true
		}
	}

	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(message)))
	return fmt.Sprintf("msg-%x", h.Sum64()), true
}
