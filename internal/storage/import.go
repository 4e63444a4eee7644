package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// logDocument mirrors the JSON session log written under .buildmatic-logs.
type logDocument struct {
	SessionID string `json:"sessionId"`
	StartTime string `json:"startTime"`
	WorkDir   string `json:"workDir"`
	Model     string `json:"model"`
	Calls     []struct {
		Timestamp              string   `json:"timestamp"`
		CallID                 string   `json:"callId"`
		Agent                  string   `json:"agent"`
		Model                  string   `json:"model"`
		InputTokens            int      `json:"inputTokens"`
		OutputTokens           int      `json:"outputTokens"`
		CacheReadTokens        int      `json:"cacheReadTokens"`
		CacheCreationTokens    int      `json:"cacheCreationTokens"`
		EstimatedContextTokens int      `json:"estimatedContextTokens"`
		DurationMS             int64    `json:"durationMs"`
		MessageCount           int      `json:"messageCount"`
		StopReason             string   `json:"stopReason"`
		ToolCallsInResponse    []string `json:"toolCallsInResponse"`
		ResponsePreview        string   `json:"responsePreview"`
	} `json:"calls"`
}

// ImportSessionLogs 将 JSON 会话日志导入 SQLite；已存在的会话跳过
// ImportSessionLogs loads session-*.json documents from dir into the store,
// skipping sessions it already holds. It returns the number imported.
func ImportSessionLogs(dir string, store Store, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return 0, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "session-*.json"))
	if err != nil {
		return 0, fmt.Errorf("glob session logs: %w", err)
	}
	sort.Strings(paths)

	imported := 0
	for _, path := range paths {
		var doc logDocument
		if err := readJSON(path, &doc); err != nil {
			logger.Warn("skip session log", zap.String("path", path), zap.Error(err))
			continue
		}
		if doc.SessionID == "" {
			doc.SessionID = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		// 检查是否已存在 / Check if already imported
		if _, err := store.LoadSession(doc.SessionID); err == nil {
			continue
		}
		if err := store.CreateSession(SessionMeta{
			ID:        doc.SessionID,
			WorkDir:   doc.WorkDir,
			Model:     doc.Model,
			CreatedAt: doc.StartTime,
		}); err != nil {
			logger.Warn("import session failed", zap.String("session", doc.SessionID), zap.Error(err))
			continue
		}
		for _, c := range doc.Calls {
			if err := store.RecordCall(CallRecord{
				SessionID:              doc.SessionID,
				CallID:                 c.CallID,
				Agent:                  c.Agent,
				Model:                  c.Model,
				Timestamp:              c.Timestamp,
				InputTokens:            c.InputTokens,
				OutputTokens:           c.OutputTokens,
				CacheReadTokens:        c.CacheReadTokens,
				CacheCreationTokens:    c.CacheCreationTokens,
				EstimatedContextTokens: c.EstimatedContextTokens,
				DurationMS:             c.DurationMS,
				MessageCount:           c.MessageCount,
				StopReason:             c.StopReason,
				ToolCalls:              c.ToolCallsInResponse,
				ResponsePreview:        c.ResponsePreview,
			}); err != nil {
				logger.Warn("import call failed", zap.String("session", doc.SessionID), zap.String("call", c.CallID), zap.Error(err))
			}
		}
		imported++
	}
	return imported, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
