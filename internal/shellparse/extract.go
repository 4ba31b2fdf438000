package shellparse

import (
	"regexp"
	"strings"

	"github.com/google/shlex"
)

var assignmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// CommandName extracts the canonical command name from a single sub-command:
// leading NAME=value assignments and sudo/env wrappers are stripped and the
// first remaining token is returned. The second result is false when the
// sub-command carries no command at all.
func CommandName(subCommand string) (string, bool) {
	tokens, err := shlex.Split(subCommand)
	if err != nil || len(tokens) == 0 {
		return "", false
	}

	i := 0
	for i < len(tokens) {
		token := tokens[i]
		switch {
		case assignmentPattern.MatchString(token):
			i++
		case token == "sudo" || token == "env":
			i++
			for i < len(tokens) && strings.HasPrefix(tokens[i], "-") {
				i++
			}
		default:
			return token, true
		}
	}
	return "", false
}

// CommandNames runs SplitCommands and CommandName over a full command line
// and returns every canonical name found, in order, de-duplicated.
func CommandNames(command string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, sub := range SplitCommands(command) {
		name, ok := CommandName(sub)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
