package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/sekisho/internal/errors"
)

func TestParseTerminalCommandParams(t *testing.T) {
	params, err := ParseTerminalCommandParams(map[string]interface{}{"command": "  git status  "})
	require.NoError(t, err)
	assert.Equal(t, "git status", params.Command)
}

func TestParseTerminalCommandParamsMissingKey(t *testing.T) {
	params, err := ParseTerminalCommandParams(map[string]interface{}{"cwd": "/tmp"})
	require.NoError(t, err)
	assert.Empty(t, params.Command)

	params, err = ParseTerminalCommandParams(nil)
	require.NoError(t, err)
	assert.Empty(t, params.Command)
}

func TestParseTerminalCommandParamsWrongType(t *testing.T) {
	_, err := ParseTerminalCommandParams(map[string]interface{}{"command": 42})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestEvaluateDeniesNonStringCommand(t *testing.T) {
	rules := NewRuleStore(t.TempDir())
	engine := NewEngine(rules)

	decision := engine.Evaluate("conv-1", ToolRequest{
		Name:  "run_terminal_cmd",
		Input: map[string]interface{}{"command": 42},
	})
	assert.False(t, decision.AutoApprove)
	assert.Equal(t, KindTerminalCommand, decision.Kind)
}
