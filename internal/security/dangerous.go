package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrCommandBlocked = errors.New("dangerous command blocked")

// blockedFragments match anywhere in the raw command text.
var blockedFragments = []string{
	"rm -rf /",
	"> /dev/",
}

// blockedWords match whole shell words by base name, so "sudoku" is not
// "sudo" but "/usr/bin/sudo" is.
var blockedWords = []string{
	"sudo",
	"shutdown",
	"reboot",
}

// CheckCommand rejects commands matching the destructive blocklist. It is a
// string filter, not an isolation boundary.
func CheckCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return nil
	}

	for _, frag := range blockedFragments {
		if strings.Contains(trimmed, frag) {
			return fmt.Errorf("%w: %s", ErrCommandBlocked, frag)
		}
	}

	words, err := parseShellWords(trimmed)
	if err != nil {
		// unbalanced quoting: fall back to raw substring matching
		for _, w := range blockedWords {
			if strings.Contains(trimmed, w) {
				return fmt.Errorf("%w: %s", ErrCommandBlocked, w)
			}
		}
		return nil
	}
	for _, word := range words {
		for _, token := range splitOperators(word) {
			base := filepath.Base(token)
			for _, w := range blockedWords {
				if base == w {
					return fmt.Errorf("%w: %s", ErrCommandBlocked, w)
				}
			}
		}
	}
	return nil
}

// splitOperators breaks a shell word on control operators, so "ls;sudo"
// yields "ls" and "sudo".
func splitOperators(word string) []string {
	return strings.FieldsFunc(word, func(r rune) bool {
		switch r {
		case ';', '&', '|', '(', ')', '`', '$':
			return true
		}
		return false
	})
}

func parseShellWords(input string) ([]string, error) {
	var (
		out         []string
		cur         strings.Builder
		inSingle    bool
		inDouble    bool
		escaped     bool
		justFlushed bool
	)

	flush := func() {
		if cur.Len() > 0 || justFlushed {
			out = append(out, cur.String())
			cur.Reset()
			justFlushed = false
		}
	}

	for _, r := range input {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			justFlushed = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			justFlushed = true
		case isSpace(r) && !inSingle && !inDouble:
			flush()
		default:
			cur.WriteRune(r)
			justFlushed = false
		}
	}

	if escaped {
		return nil, errors.New("dangling escape")
	}
	if inSingle || inDouble {
		return nil, fmt.Errorf("unmatched quote")
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
