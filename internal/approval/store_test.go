package approval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sekishoErrors "github.com/harunnryd/sekisho/internal/errors"
)

func newTestStore(t *testing.T) *RuleStore {
	t.Helper()
	return NewRuleStore(t.TempDir())
}

func TestCommandRuleScopes(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetCommandRule(SessionScope("conv-1"), "git", true))
	require.NoError(t, s.SetCommandRule(GlobalScope(), "ls", true))

	assert.True(t, s.CommandAllowed("conv-1", "git"))
	assert.True(t, s.CommandAllowed("conv-1", "ls"))
	assert.True(t, s.CommandAllowed("conv-2", "ls"))

	// session entries are conversation-scoped
	assert.False(t, s.CommandAllowed("conv-2", "git"))
}

func TestCommandRuleExplicitDeny(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetCommandRule(GlobalScope(), "rm", false))

	v, ok := s.CommandRule(GlobalScope(), "rm")
	assert.True(t, ok)
	assert.False(t, v)
	assert.False(t, s.CommandAllowed("conv-1", "rm"))
}

func TestGlobalRulesSurviveReload(t *testing.T) {
	dir := t.TempDir()

	s := NewRuleStore(dir)
	require.NoError(t, s.SetCommandRule(GlobalScope(), "make", true))
	require.NoError(t, s.SetSensitiveFileRule(GlobalScope(), "~/.ssh/config", SensitiveFileRule{
		Description: "ssh config",
		AutoApprove: true,
	}))
	require.NoError(t, s.SetMCPServerAllowed(GlobalScope(), "filesystem", true))

	// a fresh store sees the persisted state; session rules do not persist
	require.NoError(t, s.SetCommandRule(SessionScope("conv-1"), "go", true))

	reloaded := NewRuleStore(dir)
	assert.True(t, reloaded.CommandAllowed("conv-1", "make"))
	assert.True(t, reloaded.SensitiveFileAllowed("conv-1", "~/.ssh/config"))
	assert.True(t, reloaded.MCPAllowed("conv-1", "filesystem", "anything"))
	assert.False(t, reloaded.CommandAllowed("conv-1", "go"))
}

func TestMCPServerLevelWinsOverToolLevel(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetMCPToolAllowed(GlobalScope(), "github", "list_issues"))
	assert.True(t, s.MCPAllowed("conv-1", "github", "list_issues"))
	assert.False(t, s.MCPAllowed("conv-1", "github", "create_issue"))

	require.NoError(t, s.SetMCPServerAllowed(GlobalScope(), "github", true))
	assert.True(t, s.MCPAllowed("conv-1", "github", "create_issue"))
}

func TestCorruptRuleFileFailsClosed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, terminalCommandsFile), []byte("{broken"), 0644))

	s := NewRuleStore(dir)
	assert.False(t, s.Healthy())
	assert.False(t, s.CommandAllowed("conv-1", "ls"))

	_, ok := s.CommandRule(GlobalScope(), "ls")
	assert.False(t, ok)
}

func TestWriteFailureLeavesMemoryUntouched(t *testing.T) {
	dir := t.TempDir()
	s := NewRuleStore(dir)

	// retarget writes below a regular file so the atomic write fails
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	s.dir = filepath.Join(blocker, "rules")

	err := s.SetCommandRule(GlobalScope(), "ls", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, sekishoErrors.ErrPersistence)
	assert.False(t, s.CommandAllowed("conv-1", "ls"))
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetCommandRule(GlobalScope(), "ls", true))

	snap := s.GlobalTerminalCommands()
	snap["rm"] = true

	assert.False(t, s.CommandAllowed("conv-1", "rm"))
}

func TestDropSession(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetCommandRule(SessionScope("conv-1"), "git", true))
	assert.True(t, s.CommandAllowed("conv-1", "git"))

	s.DropSession("conv-1")
	assert.False(t, s.CommandAllowed("conv-1", "git"))
}

func TestSubscribePublishesChanges(t *testing.T) {
	s := newTestStore(t)

	got := make(chan RuleChange, 2)
	cancel := s.Subscribe(func(c RuleChange) { got <- c })
	defer cancel()

	require.NoError(t, s.SetCommandRule(GlobalScope(), "ls", true))

	change := <-got
	assert.Equal(t, KindTerminalCommand, change.Kind)
	assert.Equal(t, ScopeGlobal, change.Scope.Kind)
}
