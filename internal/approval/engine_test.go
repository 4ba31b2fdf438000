package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandRequest(command string) ToolRequest {
	return ToolRequest{
		Name:  "run_command",
		Input: map[string]interface{}{"command": command},
	}
}

func TestEvaluateAllCommandNamesMustBeApproved(t *testing.T) {
	s := newTestStore(t)
	e := NewEngine(s)

	require.NoError(t, s.SetCommandRule(GlobalScope(), "cd", true))
	require.NoError(t, s.SetCommandRule(GlobalScope(), "swift", true))

	assert.True(t, e.ShouldAutoApprove("conv-1", commandRequest("cd Core && swift test")))

	// one unknown name denies the whole line
	assert.False(t, e.ShouldAutoApprove("conv-1", commandRequest("cd Core && swift test && rm -rf build")))
}

func TestEvaluateSessionAndGlobalBothGrant(t *testing.T) {
	s := newTestStore(t)
	e := NewEngine(s)

	require.NoError(t, s.SetCommandRule(SessionScope("conv-1"), "git", true))
	require.NoError(t, s.SetCommandRule(GlobalScope(), "grep", true))

	assert.True(t, e.ShouldAutoApprove("conv-1", commandRequest("git log | grep fix")))
	assert.False(t, e.ShouldAutoApprove("conv-2", commandRequest("git log | grep fix")))
}

func TestEvaluateEmptyCommandDenies(t *testing.T) {
	e := NewEngine(newTestStore(t))

	assert.False(t, e.ShouldAutoApprove("conv-1", commandRequest("   ")))
	assert.False(t, e.ShouldAutoApprove("conv-1", ToolRequest{Name: "run_command"}))
}

func TestEvaluateExactCommandLineRule(t *testing.T) {
	s := newTestStore(t)
	e := NewEngine(s)

	require.NoError(t, s.SetCommandRule(GlobalScope(), "npm run deploy -- --prod", true))

	assert.True(t, e.ShouldAutoApprove("conv-1", commandRequest("npm run deploy -- --prod")))
	// the exact-line rule does not leak approval to the bare name
	assert.False(t, e.ShouldAutoApprove("conv-1", commandRequest("npm install")))
}

func TestEvaluateMCPPrecedesCommandRules(t *testing.T) {
	s := newTestStore(t)
	e := NewEngine(s)

	req := ToolRequest{
		Name:  "mcp__github__create_issue",
		Input: map[string]interface{}{"command": "ls"},
	}

	// command "ls" being approved is irrelevant for an MCP invocation
	require.NoError(t, s.SetCommandRule(GlobalScope(), "ls", true))
	assert.False(t, e.ShouldAutoApprove("conv-1", req))

	require.NoError(t, s.SetMCPToolAllowed(GlobalScope(), "github", "create_issue"))
	assert.True(t, e.ShouldAutoApprove("conv-1", req))
}

func TestEvaluateSensitiveFilePrecedesCommandRules(t *testing.T) {
	s := newTestStore(t)
	e := NewEngine(s)

	req := ToolRequest{
		Name:    "write_file",
		Message: `Allow access to sensitive file "~/.aws/credentials"?`,
	}

	decision := e.Evaluate("conv-1", req)
	assert.False(t, decision.AutoApprove)
	assert.Equal(t, KindSensitiveFile, decision.Kind)
	assert.Equal(t, "~/.aws/credentials", decision.FileKey)

	require.NoError(t, s.SetSensitiveFileRule(SessionScope("conv-1"), "~/.aws/credentials", SensitiveFileRule{
		Description: "aws credentials",
		AutoApprove: true,
	}))
	assert.True(t, e.ShouldAutoApprove("conv-1", req))
}

func TestEvaluateDecisionCarriesCommandContext(t *testing.T) {
	e := NewEngine(newTestStore(t))

	decision := e.Evaluate("conv-1", commandRequest("sudo apt-get update && ls"))
	assert.False(t, decision.AutoApprove)
	assert.Equal(t, KindTerminalCommand, decision.Kind)
	assert.Equal(t, []string{"apt-get", "ls"}, decision.CommandNames)
	assert.Equal(t, "sudo apt-get update && ls", decision.CommandLine)
}

func TestMCPTarget(t *testing.T) {
	server, tool, ok := MCPTarget("mcp__filesystem__read_file", "")
	require.True(t, ok)
	assert.Equal(t, "filesystem", server)
	assert.Equal(t, "read_file", tool)

	server, tool, ok = MCPTarget("read_file", "MCP: filesystem")
	require.True(t, ok)
	assert.Equal(t, "filesystem", server)
	assert.Equal(t, "read_file", tool)

	server, tool, ok = MCPTarget("query", "MCP: db / run_query")
	require.True(t, ok)
	assert.Equal(t, "db", server)
	assert.Equal(t, "run_query", tool)

	_, _, ok = MCPTarget("run_command", "Run command")
	assert.False(t, ok)
}

func TestSensitiveFileKey(t *testing.T) {
	key, ok := SensitiveFileKey(`Allow access to sensitive file "~/.ssh/config"?`)
	require.True(t, ok)
	assert.Equal(t, "~/.ssh/config", key)

	key, ok = SensitiveFileKey("Allow access to sensitive file '~/.env'")
	require.True(t, ok)
	assert.Equal(t, "~/.env", key)

	// same message, same key
	a, ok := SensitiveFileKey("This touches a sensitive file in your project")
	require.True(t, ok)
	b, _ := SensitiveFileKey("This touches a sensitive file in your project")
	assert.Equal(t, a, b)

	_, ok = SensitiveFileKey("Run this command?")
	assert.False(t, ok)

	_, ok = SensitiveFileKey("")
	assert.False(t, ok)
}
