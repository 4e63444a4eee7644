package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_SessionCRUD(t *testing.T) {
	store := newTestStore(t)

	meta := SessionMeta{ID: "sess_test_001", WorkDir: "/tmp", Model: "claude-sonnet-4-20250514"}
	if err := store.CreateSession(meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := store.CreateSession(meta); err == nil {
		t.Fatal("duplicate CreateSession should fail")
	}

	loaded, err := store.LoadSession("sess_test_001")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.WorkDir != "/tmp" || loaded.Model != meta.Model {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.CreatedAt == "" || loaded.UpdatedAt == "" {
		t.Fatalf("timestamps not set: %+v", loaded)
	}

	metas, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("ListSessions count=%d, want 1", len(metas))
	}

	if _, err := store.LoadSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("LoadSession(missing) err = %v", err)
	}
}

func TestSQLiteStore_RecordCallUpdatesTotals(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateSession(SessionMeta{ID: "s1"}); err != nil {
		t.Fatal(err)
	}

	calls := []CallRecord{
		{SessionID: "s1", CallID: "call-1", Model: "m", InputTokens: 100, OutputTokens: 10, CacheReadTokens: 50, StopReason: "tool_use", ToolCalls: []string{"bash", "read_file"}},
		{SessionID: "s1", CallID: "call-2", Agent: "explore", Model: "fast", InputTokens: 30, OutputTokens: 5, StopReason: "end_turn", ResponsePreview: "done"},
	}
	for _, c := range calls {
		if err := store.RecordCall(c); err != nil {
			t.Fatalf("RecordCall(%s): %v", c.CallID, err)
		}
	}

	meta, err := store.LoadSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if meta.TotalCalls != 2 || meta.TotalInputTokens != 130 || meta.TotalOutputTokens != 15 || meta.TotalCacheReadTokens != 50 {
		t.Fatalf("totals = %+v", meta)
	}

	got, err := store.ListCalls("s1")
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListCalls count=%d, want 2", len(got))
	}
	if got[0].CallID != "call-1" || len(got[0].ToolCalls) != 2 || got[0].ToolCalls[1] != "read_file" {
		t.Fatalf("call[0] = %+v", got[0])
	}
	if got[1].Agent != "explore" || got[1].ToolCalls != nil || got[1].ResponsePreview != "done" {
		t.Fatalf("call[1] = %+v", got[1])
	}
}

func TestSQLiteStore_RecordCallUnknownSession(t *testing.T) {
	store := newTestStore(t)
	err := store.RecordCall(CallRecord{SessionID: "nope", CallID: "call-1"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	calls, err := store.ListCalls("nope")
	if err != nil || len(calls) != 0 {
		t.Fatalf("calls = %v, err = %v", calls, err)
	}
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStore("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestImportSessionLogs(t *testing.T) {
	dir := t.TempDir()
	doc := `{
		"sessionId": "sess_1_abc",
		"startTime": "2026-01-02T03:04:05Z",
		"workDir": "/work",
		"model": "m",
		"calls": [
			{"timestamp": "2026-01-02T03:04:06Z", "callId": "call-1", "model": "m", "inputTokens": 12, "outputTokens": 3, "cacheReadTokens": 4, "stopReason": "tool_use", "toolCallsInResponse": ["write_file"]},
			{"timestamp": "2026-01-02T03:04:07Z", "callId": "call-2", "model": "m", "inputTokens": 8, "outputTokens": 2, "stopReason": "end_turn", "toolCallsInResponse": []}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, "session-2026-01-02T03-04-05-000Z.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session-broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newTestStore(t)
	n, err := ImportSessionLogs(dir, store, nil)
	if err != nil {
		t.Fatalf("ImportSessionLogs: %v", err)
	}
	if n != 1 {
		t.Fatalf("imported = %d, want 1", n)
	}
	meta, err := store.LoadSession("sess_1_abc")
	if err != nil {
		t.Fatal(err)
	}
	if meta.TotalCalls != 2 || meta.TotalInputTokens != 20 || meta.WorkDir != "/work" {
		t.Fatalf("meta = %+v", meta)
	}

	// 二次导入跳过 / second import is a no-op
	n, err = ImportSessionLogs(dir, store, nil)
	if err != nil || n != 0 {
		t.Fatalf("second import = %d, %v", n, err)
	}
}
