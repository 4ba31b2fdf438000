package approval

import (
	"fmt"
	"strings"

	"github.com/harunnryd/sekisho/internal/errors"
)

// Tool inputs arrive as loose maps from the host. Each tool the policy
// cares about gets a typed params struct, validated here at the boundary
// so the engine never reaches into the map itself.

// TerminalCommandParams is the validated input of a terminal tool call.
type TerminalCommandParams struct {
	Command string
}

// ParseTerminalCommandParams validates the input map of a terminal tool
// call. A missing command key yields empty params, which the policy
// denies; a command of the wrong type is an input error.
func ParseTerminalCommandParams(input map[string]interface{}) (TerminalCommandParams, error) {
	raw, ok := input["command"]
	if !ok || raw == nil {
		return TerminalCommandParams{}, nil
	}
	command, ok := raw.(string)
	if !ok {
		return TerminalCommandParams{}, fmt.Errorf("command must be a string, got %T: %w", raw, errors.ErrInvalidInput)
	}
	return TerminalCommandParams{Command: strings.TrimSpace(command)}, nil
}
