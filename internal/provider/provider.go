package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buildmatic/internal/chat"
)

// Stop reasons, normalised across backends.
const (
	StopToolUse   = "tool_use"
	StopEndTurn   = "end_turn"
	StopMaxTokens = "max_tokens"
)

// SystemSegment 系统提示的一段，可标记为可缓存
// SystemSegment is one piece of the system prompt, optionally cacheable
type SystemSegment struct {
	Text      string
	Cacheable bool
}

// Request 封装一次补全请求
// Request wraps a single completion call
type Request struct {
	Model     string
	System    []SystemSegment
	Messages  []chat.Message
	Tools     []chat.ToolSpec
	MaxTokens int
}

// Usage token 用量统计
// Usage reports token consumption, including prompt-cache counters
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_input_tokens"`
	CacheWriteTokens int `json:"cache_creation_input_tokens"`
}

// Response 完整响应
// Response is the complete answer of one call
type Response struct {
	StopReason string
	Content    []chat.Block
	Usage      Usage
}

// Message returns the response as an assistant message.
func (r Response) Message() chat.Message {
	return chat.Message{Role: chat.RoleAssistant, Content: append([]chat.Block(nil), r.Content...)}
}

// WantsTools reports whether the service asked for tool execution.
func (r Response) WantsTools() bool {
	return r.StopReason == StopToolUse
}

// Provider 补全服务接口
// Provider is the completion service contract
type Provider interface {
	// Complete 发送一次请求并返回完整响应
	// Complete sends one request and returns the full response
	Complete(ctx context.Context, req Request) (Response, error)

	// Name 返回 provider 名称
	// Name returns the provider name
	Name() string
}

// withRetry retries fn with exponential backoff; context errors are final.
func withRetry(ctx context.Context, maxRetries int, fn func() (Response, error)) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(150*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Response{}, err
		}
	}
	return Response{}, fmt.Errorf("completion failed after %d retries: %w", maxRetries, lastErr)
}
