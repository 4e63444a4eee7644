package tui

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxEditDiffLines bounds the edit preview shown in the chat panel.
const maxEditDiffLines = 40

// editDiff renders an edit_file replacement as a single-hunk unified diff.
// Line numbers are relative to the replaced fragment since the TUI never
// reads the file itself.
func editDiff(path, oldText, newText string) string {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}
	if prefix == len(oldLines) && prefix == len(newLines) {
		return ""
	}

	name := filepath.ToSlash(filepath.Clean(strings.TrimSpace(path)))
	out := []string{
		"--- a/" + name,
		"+++ b/" + name,
		fmt.Sprintf("@@ -%d,%d +%d,%d @@", prefix+1, len(oldLines)-prefix-suffix, prefix+1, len(newLines)-prefix-suffix),
	}
	for _, line := range oldLines[prefix : len(oldLines)-suffix] {
		out = append(out, "-"+line)
	}
	for _, line := range newLines[prefix : len(newLines)-suffix] {
		out = append(out, "+"+line)
	}
	if len(out) > maxEditDiffLines {
		out = append(out[:maxEditDiffLines], "... (diff truncated)")
	}
	return strings.Join(out, "\n")
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
