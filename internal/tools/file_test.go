package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"buildmatic/internal/security"
)

func newTestWorkspace(t *testing.T) (*security.Workspace, string) {
	t.Helper()
	parent := t.TempDir()
	root := filepath.Join(parent, "ws")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	ws, err := security.NewWorkspace(root)
	if err != nil {
		t.Fatal(err)
	}
	return ws, parent
}

func mustArgs(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestWriteToolCreatesParents(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	out, err := NewWriteTool(ws).Execute(context.Background(), mustArgs(t, map[string]string{"path": "a/b/notes.txt", "content": "hi"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "Wrote 2 bytes to a/b/notes.txt" {
		t.Fatalf("output = %q", out)
	}
	data, err := os.ReadFile(filepath.Join(ws.Root(), "a", "b", "notes.txt"))
	if err != nil || string(data) != "hi" {
		t.Fatalf("file = %q, err = %v", data, err)
	}
}

func TestFileToolsRejectEscapes(t *testing.T) {
	ws, parent := newTestWorkspace(t)
	outside := filepath.Join(parent, "outside.txt")
	ctx := context.Background()

	_, err := NewWriteTool(ws).Execute(ctx, mustArgs(t, map[string]string{"path": "../outside.txt", "content": "x"}))
	if !errors.Is(err, security.ErrPathOutsideWorkspace) {
		t.Fatalf("write error = %v", err)
	}
	if _, statErr := os.Stat(outside); !os.IsNotExist(statErr) {
		t.Fatalf("outside file must not exist, stat err = %v", statErr)
	}

	_, err = NewReadTool(ws, 0).Execute(ctx, mustArgs(t, map[string]string{"path": "../outside.txt"}))
	if !errors.Is(err, security.ErrPathOutsideWorkspace) {
		t.Fatalf("read error = %v", err)
	}

	_, err = NewEditTool(ws).Execute(ctx, mustArgs(t, map[string]string{"path": "../outside.txt", "old_text": "a", "new_text": "b"}))
	if !errors.Is(err, security.ErrPathOutsideWorkspace) {
		t.Fatalf("edit error = %v", err)
	}
	if _, statErr := os.Stat(outside); !os.IsNotExist(statErr) {
		t.Fatalf("outside file must not exist, stat err = %v", statErr)
	}
}

func TestReadToolLimit(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	if err := os.WriteFile(filepath.Join(ws.Root(), "f.txt"), []byte("1\n2\n3\n4\n5"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := NewReadTool(ws, 0)
	out, err := tool.Execute(context.Background(), mustArgs(t, map[string]any{"path": "f.txt", "limit": 2}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "1\n2\n... (3 more lines)" {
		t.Fatalf("output = %q", out)
	}

	out, err = tool.Execute(context.Background(), mustArgs(t, map[string]any{"path": "f.txt"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "1\n2\n3\n4\n5" {
		t.Fatalf("output = %q", out)
	}
}

func TestReadToolCapsSize(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	if err := os.WriteFile(filepath.Join(ws.Root(), "big.txt"), []byte(strings.Repeat("x", 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := NewReadTool(ws, 40).Execute(context.Background(), mustArgs(t, map[string]string{"path": "big.txt"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(out) != 40 {
		t.Fatalf("len = %d", len(out))
	}
}

func TestEditToolReplacesFirstOccurrence(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	path := filepath.Join(ws.Root(), "main.go")
	if err := os.WriteFile(path, []byte("foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := NewEditTool(ws).Execute(context.Background(), mustArgs(t, map[string]string{"path": "main.go", "old_text": "foo", "new_text": "bar"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "Edited main.go" {
		t.Fatalf("output = %q", out)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "bar foo" {
		t.Fatalf("content = %q", data)
	}
}

func TestEditToolNotFoundLeavesFileUnchanged(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	path := filepath.Join(ws.Root(), "main.go")
	original := []byte("package main\n\nfunc main() {}\n")
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewEditTool(ws).Execute(context.Background(), mustArgs(t, map[string]string{"path": "main.go", "old_text": "missing", "new_text": "x"}))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Execute() error = %v, want not found", err)
	}
	data, _ := os.ReadFile(path)
	if !bytes.Equal(data, original) {
		t.Fatalf("file changed: %q", data)
	}
}
