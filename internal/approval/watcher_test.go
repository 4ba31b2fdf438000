package approval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsExternalRuleChanges(t *testing.T) {
	dir := t.TempDir()
	s := NewRuleStore(dir)

	w, err := NewWatcher(s)
	require.NoError(t, err)
	defer w.Close()

	changes := make(chan RuleChange, 4)
	cancel := s.Subscribe(func(c RuleChange) { changes <- c })
	defer cancel()

	// another process rewrites the global command rules
	data, err := json.Marshal(TerminalCommandsRules{Commands: map[string]bool{"ls": true}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, terminalCommandsFile), data, 0644))

	select {
	case change := <-changes:
		assert.Equal(t, KindTerminalCommand, change.Kind)
		assert.Equal(t, ScopeGlobal, change.Scope.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("rule change was not observed")
	}

	assert.Eventually(t, func() bool {
		return s.CommandAllowed("conv-1", "ls")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRuleKindForFile(t *testing.T) {
	kind, ok := ruleKindForFile(terminalCommandsFile)
	assert.True(t, ok)
	assert.Equal(t, KindTerminalCommand, kind)

	kind, ok = ruleKindForFile(sensitiveFilesFile)
	assert.True(t, ok)
	assert.Equal(t, KindSensitiveFile, kind)

	kind, ok = ruleKindForFile(mcpServersFile)
	assert.True(t, ok)
	assert.Equal(t, KindMCP, kind)

	_, ok = ruleKindForFile("unrelated.json")
	assert.False(t, ok)
}
