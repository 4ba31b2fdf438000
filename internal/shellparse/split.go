package shellparse

import (
	"strings"
)

// SplitCommands splits a shell command line into its independently-meaningful
// sub-commands at top-level occurrences of &&, ||, |, ; and background &.
// Separators inside single/double-quoted spans or inside subshell parentheses
// never split; the contents of a top-level (...) group are flattened into
// their own sub-commands. Whitespace-only input yields no sub-commands.
func SplitCommands(command string) []string {
	var segments []string
	var buf strings.Builder

	depth := 0
	inSingle := false
	inDouble := false
	escaped := false

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			segments = append(segments, s)
		}
		buf.Reset()
	}

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if escaped {
			buf.WriteRune(c)
			escaped = false
			continue
		}

		switch {
		case c == '\\' && !inSingle:
			escaped = true
			buf.WriteRune(c)
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			buf.WriteRune(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			buf.WriteRune(c)
		case inSingle || inDouble:
			buf.WriteRune(c)
		case c == '(':
			depth++
			buf.WriteRune(c)
		case c == ')':
			if depth > 0 {
				depth--
			}
			buf.WriteRune(c)
		case depth > 0:
			buf.WriteRune(c)
		case c == '&':
			switch {
			case i+1 < len(runes) && runes[i+1] == '&':
				flush()
				i++
			case i+1 < len(runes) && runes[i+1] == '>':
				// &> redirects both streams; the target is not a command
				buf.WriteRune(c)
			default:
				// background job terminator
				flush()
			}
		case c == '|':
			if i+1 < len(runes) && runes[i+1] == '|' {
				i++
			}
			flush()
		case c == ';':
			flush()
		default:
			buf.WriteRune(c)
		}
	}
	flush()

	// A top-level subshell group is transparent: its contents are
	// sub-commands of their own.
	var out []string
	for _, segment := range segments {
		if inner, ok := stripSubshell(segment); ok {
			out = append(out, SplitCommands(inner)...)
			continue
		}
		out = append(out, segment)
	}
	return out
}

// stripSubshell reports whether segment is a single balanced (...) group and
// returns its contents.
func stripSubshell(segment string) (string, bool) {
	if len(segment) < 2 || segment[0] != '(' || segment[len(segment)-1] != ')' {
		return "", false
	}

	depth := 0
	inSingle := false
	inDouble := false
	escaped := false

	for i, c := range segment {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && !inSingle:
			escaped = true
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 && i != len(segment)-1 {
				// closes before the end: not one single group
				return "", false
			}
		}
	}
	if depth != 0 {
		return "", false
	}
	return segment[1 : len(segment)-1], true
}
