package storage

// SessionMeta 会话元数据与累计用量
// SessionMeta holds session metadata and running totals
type SessionMeta struct {
	ID                   string `json:"id"`
	WorkDir              string `json:"work_dir"`
	Model                string `json:"model"`
	CreatedAt            string `json:"created_at"`
	UpdatedAt            string `json:"updated_at"`
	TotalCalls           int    `json:"total_calls"`
	TotalInputTokens     int    `json:"total_input_tokens"`
	TotalOutputTokens    int    `json:"total_output_tokens"`
	TotalCacheReadTokens int    `json:"total_cache_read_tokens"`
}

// CallRecord 一次补全调用的元数据
// CallRecord is the metadata of one completion call
type CallRecord struct {
	SessionID              string   `json:"session_id"`
	CallID                 string   `json:"call_id"`
	Agent                  string   `json:"agent,omitempty"`
	Model                  string   `json:"model"`
	Timestamp              string   `json:"timestamp"`
	InputTokens            int      `json:"input_tokens"`
	OutputTokens           int      `json:"output_tokens"`
	CacheReadTokens        int      `json:"cache_read_tokens"`
	CacheCreationTokens    int      `json:"cache_creation_tokens"`
	EstimatedContextTokens int      `json:"estimated_context_tokens"`
	DurationMS             int64    `json:"duration_ms"`
	MessageCount           int      `json:"message_count"`
	StopReason             string   `json:"stop_reason"`
	ToolCalls              []string `json:"tool_calls"`
	ResponsePreview        string   `json:"response_preview"`
}
