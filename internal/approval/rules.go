package approval

// Persisted rule schemas. Each rule type lives in its own JSON file and is
// persisted independently; the three are never written transactionally,
// which is acceptable because each is also evaluated independently.

// TerminalCommandsRules maps canonical command names (or, for exact-line
// rules, the full trimmed command line) to an auto-approve flag.
type TerminalCommandsRules struct {
	Commands map[string]bool `json:"commands"`
}

// SensitiveFileRule is one approval decision for a sensitive-file operation,
// keyed by a file key derived deterministically from the confirmation message.
type SensitiveFileRule struct {
	Description string `json:"description"`
	AutoApprove bool   `json:"autoApprove"`
}

type SensitiveFilesRules struct {
	Rules map[string]SensitiveFileRule `json:"rules"`
}

// MCPServerApproval records approval for an MCP server and, when the server
// itself is not blanket-allowed, for individual tools. IsServerAllowed makes
// the tool entries redundant.
type MCPServerApproval struct {
	IsServerAllowed bool     `json:"isServerAllowed"`
	AllowedTools    []string `json:"allowedTools"`
}

type AutoApprovedMCPServers struct {
	Servers map[string]MCPServerApproval `json:"servers"`
}

func newTerminalCommandsRules() TerminalCommandsRules {
	return TerminalCommandsRules{Commands: make(map[string]bool)}
}

func newSensitiveFilesRules() SensitiveFilesRules {
	return SensitiveFilesRules{Rules: make(map[string]SensitiveFileRule)}
}

func newAutoApprovedMCPServers() AutoApprovedMCPServers {
	return AutoApprovedMCPServers{Servers: make(map[string]MCPServerApproval)}
}

func (a MCPServerApproval) ToolAllowed(tool string) bool {
	if a.IsServerAllowed {
		return true
	}
	for _, t := range a.AllowedTools {
		if t == tool {
			return true
		}
	}
	return false
}

// RuleKind distinguishes the three independently-persisted rule types.
type RuleKind string

const (
	KindTerminalCommand RuleKind = "terminal_command"
	KindSensitiveFile   RuleKind = "sensitive_file"
	KindMCP             RuleKind = "mcp"
)

// ScopeKind is the lifetime of a rule: session entries are volatile and
// conversation-scoped, global entries persist across process restarts.
type ScopeKind string

const (
	ScopeSession ScopeKind = "session"
	ScopeGlobal  ScopeKind = "global"
)

type Scope struct {
	Kind           ScopeKind
	ConversationID string
}

func SessionScope(conversationID string) Scope {
	return Scope{Kind: ScopeSession, ConversationID: conversationID}
}

func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

// RuleChange notifies subscribers that a rule set changed.
type RuleChange struct {
	Kind  RuleKind
	Scope Scope
}
