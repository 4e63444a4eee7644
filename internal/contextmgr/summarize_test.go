package contextmgr

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"buildmatic/internal/chat"

	"github.com/google/go-cmp/cmp"
)

func toolRound(id, name, input, result string) []chat.Message {
	return []chat.Message{
		{Role: chat.RoleAssistant, Content: []chat.Block{chat.ToolUseBlock(id, name, json.RawMessage(input))}},
		{Role: chat.RoleUser, Content: []chat.Block{chat.ToolResultBlock(id, result)}},
	}
}

func TestSummarize_ShortHistoryUnchanged(t *testing.T) {
	history := []chat.Message{chat.UserText("hi"), {Role: chat.RoleAssistant, Content: []chat.Block{chat.TextBlock("hello")}}}
	got := Summarize(history, 2)
	if diff := cmp.Diff(history, got); diff != "" {
		t.Fatalf("Summarize() mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize_KeepsExactSuffix(t *testing.T) {
	history := []chat.Message{chat.UserText("build a site")}
	history = append(history, toolRound("t1", "write_file", `{"path":"site/index.html","content":"<html>"}`, "Wrote 6 bytes to site/index.html")...)
	history = append(history, toolRound("t2", "Skill", `{"skill":"frontend"}`, "<skill-loaded>")...)
	history = append(history, toolRound("t3", "bash", `{"command":"ls"}`, "index.html")...)
	history = append(history, toolRound("t4", "read_file", `{"path":"x"}`, "x")...)

	const keep = 4
	got := Summarize(history, keep)
	if len(got) != keep+1 {
		t.Fatalf("len = %d, want %d", len(got), keep+1)
	}
	if diff := cmp.Diff(history[len(history)-keep:], got[1:]); diff != "" {
		t.Fatalf("recent suffix mismatch (-want +got):\n%s", diff)
	}

	summary := got[0]
	if summary.Role != chat.RoleUser {
		t.Fatalf("summary role = %q", summary.Role)
	}
	want := strings.Join([]string{
		"[Earlier context: 5 messages]",
		"Files created: site/index.html (6b)",
		"User: build a site",
		"Loaded skill: frontend",
		"[Recent messages follow]",
	}, "\n")
	if summary.Text() != want {
		t.Fatalf("summary =\n%s\nwant\n%s", summary.Text(), want)
	}
}

func TestSummarize_CapsBulletsAndPreview(t *testing.T) {
	history := []chat.Message{chat.UserText(strings.Repeat("a", 150))}
	for i := 0; i < 15; i++ {
		history = append(history, toolRound(fmt.Sprintf("t%d", i), "bash", `{"command":"true"}`, "(no output)")...)
	}
	got := Summarize(history, 2)
	text := got[0].Text()
	if !strings.Contains(text, "User: "+strings.Repeat("a", 100)+"\n") {
		t.Fatalf("user preview not capped at 100: %q", text)
	}
	if n := strings.Count(text, "Used: bash"); n != 9 {
		t.Fatalf("Used lines = %d, want 9", n)
	}
}

func TestSummarize_DoesNotMutateInput(t *testing.T) {
	history := []chat.Message{chat.UserText("one"), chat.UserText("two"), chat.UserText("three")}
	snapshot := append([]chat.Message(nil), history...)
	_ = Summarize(history, 1)
	if diff := cmp.Diff(snapshot, history); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
}

func TestSummarize_IsDeterministic(t *testing.T) {
	history := []chat.Message{chat.UserText("x")}
	history = append(history, toolRound("t1", "bash", `{}`, "ok")...)
	if diff := cmp.Diff(Summarize(history, 1), Summarize(history, 1)); diff != "" {
		t.Fatalf("non-deterministic (-a +b):\n%s", diff)
	}
}
