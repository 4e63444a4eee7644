// Package sessionlog records per-call metadata of a session in a JSON
// document that is rewritten after every completion call.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"buildmatic/internal/chat"
	"buildmatic/internal/orchestrator"
	"buildmatic/internal/storage"

	"go.uber.org/zap"
)

// DirName is the log directory created under the working directory.
const DirName = ".buildmatic-logs"

// CallLog 单次调用的记录
// CallLog is one entry of the session document
type CallLog struct {
	Timestamp              string   `json:"timestamp"`
	CallID                 string   `json:"callId"`
	Agent                  string   `json:"agent,omitempty"`
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
	SystemPromptPreview    string   `json:"systemPromptPreview"`
	LastUserMessage        string   `json:"lastUserMessage"`
	ResponsePreview        string   `json:"responsePreview"`
}

// Document 会话日志文件内容
// Document is the full session log file
type Document struct {
	SessionID            string    `json:"sessionId"`
	StartTime            string    `json:"startTime"`
	WorkDir              string    `json:"workDir"`
	Model                string    `json:"model"`
	Calls                []CallLog `json:"calls"`
	TotalInputTokens     int       `json:"totalInputTokens"`
	TotalOutputTokens    int       `json:"totalOutputTokens"`
	TotalCacheReadTokens int       `json:"totalCacheReadTokens"`
	TotalCalls           int       `json:"totalCalls"`
}

// Mirror receives a copy of every session and call, typically a SQLite store.
type Mirror interface {
	CreateSession(meta storage.SessionMeta) error
	RecordCall(rec storage.CallRecord) error
}

type Config struct {
	// Dir defaults to WorkDir/.buildmatic-logs.
	Dir     string
	WorkDir string
	Model   string
	Mirror  Mirror
	Logger  *zap.Logger
	Now     func() time.Time
}

// Logger implements orchestrator.CallObserver.
type Logger struct {
	mu     sync.Mutex
	path   string
	doc    Document
	mirror Mirror
	logger *zap.Logger
	now    func() time.Time
}

var _ orchestrator.CallObserver = (*Logger)(nil)

// New creates the log directory and writes the empty session document.
func New(cfg Config) (*Logger, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = filepath.Join(cfg.WorkDir, DirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}

	start := cfg.Now().UTC()
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(start.Format("2006-01-02T15:04:05.000Z"))
	l := &Logger{
		path: filepath.Join(dir, "session-"+stamp+".json"),
		doc: Document{
			SessionID: storage.NewSessionID(),
			StartTime: start.Format(time.RFC3339Nano),
			WorkDir:   cfg.WorkDir,
			Model:     cfg.Model,
			Calls:     []CallLog{},
		},
		mirror: cfg.Mirror,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if l.mirror != nil {
		if err := l.mirror.CreateSession(storage.SessionMeta{
			ID:        l.doc.SessionID,
			WorkDir:   l.doc.WorkDir,
			Model:     l.doc.Model,
			CreatedAt: l.doc.StartTime,
		}); err != nil {
			l.logger.Warn("session mirror disabled", zap.Error(err))
			l.mirror = nil
		}
	}
	if err := l.save(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) Path() string { return l.path }

func (l *Logger) SessionID() string { return l.doc.SessionID }

// ObserveCall appends one call and rewrites the document.
func (l *Logger) ObserveCall(c orchestrator.Call) {
	entry := l.entry(c)

	l.mu.Lock()
	entry.CallID = fmt.Sprintf("call-%d", len(l.doc.Calls)+1)
	l.doc.Calls = append(l.doc.Calls, entry)
	l.doc.TotalCalls++
	l.doc.TotalInputTokens += entry.InputTokens
	l.doc.TotalOutputTokens += entry.OutputTokens
	l.doc.TotalCacheReadTokens += entry.CacheReadTokens
	err := l.saveLocked()
	sessionID := l.doc.SessionID
	mirror := l.mirror
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("write session log", zap.String("path", l.path), zap.Error(err))
	}
	if mirror == nil {
		return
	}
	if err := mirror.RecordCall(storage.CallRecord{
		SessionID:              sessionID,
		CallID:                 entry.CallID,
		Agent:                  entry.Agent,
		Model:                  entry.Model,
		Timestamp:              entry.Timestamp,
		InputTokens:            entry.InputTokens,
		OutputTokens:           entry.OutputTokens,
		CacheReadTokens:        entry.CacheReadTokens,
		CacheCreationTokens:    entry.CacheCreationTokens,
		EstimatedContextTokens: entry.EstimatedContextTokens,
		DurationMS:             entry.DurationMS,
		MessageCount:           entry.MessageCount,
		StopReason:             entry.StopReason,
		ToolCalls:              entry.ToolCallsInResponse,
		ResponsePreview:        entry.ResponsePreview,
	}); err != nil {
		l.logger.Warn("mirror call", zap.String("call", entry.CallID), zap.Error(err))
	}
}

func (l *Logger) entry(c orchestrator.Call) CallLog {
	resp := c.Response
	toolCalls := []string{}
	responsePreview := "[no text]"
	foundText := false
	for _, b := range resp.Content {
		switch b.Type {
		case chat.BlockToolUse:
			name := b.Name
			if name == "" {
				name = "unknown"
			}
			toolCalls = append(toolCalls, name)
		case chat.BlockText:
			if !foundText {
				foundText = true
				responsePreview = head(b.Text, 200)
			}
		}
	}
	stop := resp.StopReason
	if stop == "" {
		stop = "unknown"
	}
	systemPreview := ""
	if len(c.System) > 0 {
		systemPreview = head(c.System[0].Text, 100)
	}
	return CallLog{
		Timestamp:              l.now().UTC().Format(time.RFC3339Nano),
		Agent:                  c.Agent,
		Model:                  c.Model,
		InputTokens:            resp.Usage.InputTokens,
		OutputTokens:           resp.Usage.OutputTokens,
		CacheReadTokens:        resp.Usage.CacheReadTokens,
		CacheCreationTokens:    resp.Usage.CacheWriteTokens,
		EstimatedContextTokens: c.EstimatedTokens,
		DurationMS:             c.Duration.Milliseconds(),
		MessageCount:           len(c.Messages),
		StopReason:             stop,
		ToolCallsInResponse:    toolCalls,
		SystemPromptPreview:    systemPreview,
		LastUserMessage:        lastUserPreview(c.Messages),
		ResponsePreview:        responsePreview,
	}
}

func lastUserPreview(messages []chat.Message) string {
	if len(messages) == 0 {
		return ""
	}
	last := messages[len(messages)-1]
	if len(last.Content) == 0 {
		return ""
	}
	first := last.Content[0]
	switch first.Type {
	case chat.BlockToolResult:
		return "[tool_result] " + head(first.Content, 100)
	case chat.BlockText:
		return head(first.Text, 200)
	}
	return ""
}

// Document returns a copy of the current document.
func (l *Logger) Document() Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc := l.doc
	doc.Calls = append([]CallLog(nil), l.doc.Calls...)
	return doc
}

// Summary returns one line with the session totals.
func (l *Logger) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("Calls: %d, Input: %d, Output: %d, Cache: %d",
		l.doc.TotalCalls, l.doc.TotalInputTokens, l.doc.TotalOutputTokens, l.doc.TotalCacheReadTokens)
}

func (l *Logger) save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

// saveLocked rewrites the whole document through a temp file.
func (l *Logger) saveLocked() error {
	data, err := json.MarshalIndent(l.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session log: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session log: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace session log: %w", err)
	}
	return nil
}

func head(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
