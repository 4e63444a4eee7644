package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现
// SQLiteStore implements Store using SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
	// 单写者 / single writer
	mu sync.Mutex
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id                 TEXT PRIMARY KEY,
		work_dir           TEXT NOT NULL DEFAULT '',
		model              TEXT NOT NULL DEFAULT '',
		total_calls        INTEGER NOT NULL DEFAULT 0,
		total_input        INTEGER NOT NULL DEFAULT 0,
		total_output       INTEGER NOT NULL DEFAULT 0,
		total_cache_read   INTEGER NOT NULL DEFAULT 0,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS calls (
		seq               INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id        TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		call_id           TEXT NOT NULL,
		agent             TEXT NOT NULL DEFAULT '',
		model             TEXT NOT NULL DEFAULT '',
		ts                TEXT NOT NULL,
		input_tokens      INTEGER NOT NULL DEFAULT 0,
		output_tokens     INTEGER NOT NULL DEFAULT 0,
		cache_read        INTEGER NOT NULL DEFAULT 0,
		cache_creation    INTEGER NOT NULL DEFAULT 0,
		estimated_context INTEGER NOT NULL DEFAULT 0,
		duration_ms       INTEGER NOT NULL DEFAULT 0,
		message_count     INTEGER NOT NULL DEFAULT 0,
		stop_reason       TEXT NOT NULL DEFAULT '',
		tool_calls        TEXT NOT NULL DEFAULT '[]',
		response_preview  TEXT NOT NULL DEFAULT '',
		UNIQUE(session_id, call_id)
	);

	CREATE INDEX IF NOT EXISTS idx_calls_session ON calls(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Session Operations ---

func (s *SQLiteStore) CreateSession(meta SessionMeta) error {
	if strings.TrimSpace(meta.ID) == "" {
		return fmt.Errorf("session id is empty")
	}
	now := nowUTC()
	if strings.TrimSpace(meta.CreatedAt) == "" {
		meta.CreatedAt = now
	}
	if strings.TrimSpace(meta.UpdatedAt) == "" {
		meta.UpdatedAt = meta.CreatedAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, work_dir, model, total_calls, total_input, total_output, total_cache_read, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.WorkDir, meta.Model,
		meta.TotalCalls, meta.TotalInputTokens, meta.TotalOutputTokens, meta.TotalCacheReadTokens,
		meta.CreatedAt, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const sessionColumns = `id, work_dir, model, total_calls, total_input, total_output, total_cache_read, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionMeta, error) {
	var meta SessionMeta
	err := row.Scan(&meta.ID, &meta.WorkDir, &meta.Model,
		&meta.TotalCalls, &meta.TotalInputTokens, &meta.TotalOutputTokens, &meta.TotalCacheReadTokens,
		&meta.CreatedAt, &meta.UpdatedAt)
	return meta, err
}

func (s *SQLiteStore) LoadSession(id string) (SessionMeta, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionMeta{}, fmt.Errorf("session id is empty")
	}
	meta, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionMeta{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return SessionMeta{}, fmt.Errorf("load session: %w", err)
	}
	return meta, nil
}

func (s *SQLiteStore) ListSessions() ([]SessionMeta, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		meta, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// --- Call Operations ---

// RecordCall inserts rec and folds its usage into the session totals.
func (s *SQLiteStore) RecordCall(rec CallRecord) error {
	if strings.TrimSpace(rec.SessionID) == "" {
		return fmt.Errorf("session id is empty")
	}
	if strings.TrimSpace(rec.Timestamp) == "" {
		rec.Timestamp = nowUTC()
	}
	toolCalls := "[]"
	if len(rec.ToolCalls) > 0 {
		if data, err := json.Marshal(rec.ToolCalls); err == nil {
			toolCalls = string(data)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		UPDATE sessions SET
			total_calls = total_calls + 1,
			total_input = total_input + ?,
			total_output = total_output + ?,
			total_cache_read = total_cache_read + ?,
			updated_at = ?
		WHERE id=?`,
		rec.InputTokens, rec.OutputTokens, rec.CacheReadTokens, rec.Timestamp, rec.SessionID)
	if err != nil {
		return fmt.Errorf("update session totals: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, rec.SessionID)
	}

	if _, err := tx.Exec(`
		INSERT INTO calls (session_id, call_id, agent, model, ts, input_tokens, output_tokens, cache_read, cache_creation,
			estimated_context, duration_ms, message_count, stop_reason, tool_calls, response_preview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.CallID, rec.Agent, rec.Model, rec.Timestamp,
		rec.InputTokens, rec.OutputTokens, rec.CacheReadTokens, rec.CacheCreationTokens,
		rec.EstimatedContextTokens, rec.DurationMS, rec.MessageCount, rec.StopReason,
		toolCalls, rec.ResponsePreview,
	); err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListCalls(sessionID string) ([]CallRecord, error) {
	rows, err := s.db.Query(`
		SELECT session_id, call_id, agent, model, ts, input_tokens, output_tokens, cache_read, cache_creation,
			estimated_context, duration_ms, message_count, stop_reason, tool_calls, response_preview
		FROM calls WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var rec CallRecord
		var toolCalls string
		if err := rows.Scan(&rec.SessionID, &rec.CallID, &rec.Agent, &rec.Model, &rec.Timestamp,
			&rec.InputTokens, &rec.OutputTokens, &rec.CacheReadTokens, &rec.CacheCreationTokens,
			&rec.EstimatedContextTokens, &rec.DurationMS, &rec.MessageCount, &rec.StopReason,
			&toolCalls, &rec.ResponsePreview); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if toolCalls != "" && toolCalls != "[]" {
			_ = json.Unmarshal([]byte(toolCalls), &rec.ToolCalls)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Helpers ---

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
