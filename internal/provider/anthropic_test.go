package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"buildmatic/internal/chat"
)

func TestBuildAnthropicParams_CacheableSystemAndBlocks(t *testing.T) {
	req := Request{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 8000,
		System: []SystemSegment{
			{Text: "You are a coding agent.", Cacheable: true},
			{Text: "  "},
		},
		Messages: []chat.Message{
			chat.UserText("list files"),
			{Role: chat.RoleAssistant, Content: []chat.Block{
				chat.TextBlock(""),
				chat.ToolUseBlock("t1", "bash", json.RawMessage(`{"command":"ls"}`)),
			}},
			{Role: chat.RoleUser, Content: []chat.Block{chat.ToolResultBlock("t1", "a.txt")}},
		},
		Tools: []chat.ToolSpec{{
			Name:        "bash",
			Description: "Run a shell command",
			InputSchema: chat.ObjectSchema(map[string]any{"command": map[string]any{"type": "string"}}, "command"),
		}},
	}
	params := buildAnthropicParams(req)
	if len(params.System) != 1 {
		t.Fatalf("system blocks = %d, want 1", len(params.System))
	}
	if len(params.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(params.Messages))
	}

	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	for _, want := range []string{
		`"cache_control":{"type":"ephemeral"}`,
		`"tool_use_id":"t1"`,
		`"name":"bash"`,
		`"required":["command"]`,
		`"description":"Run a shell command"`,
		`"max_tokens":8000`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("request body missing %s:\n%s", want, body)
		}
	}
	if strings.Contains(body, `"text":""`) {
		t.Fatalf("empty text block sent:\n%s", body)
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [
				{"type": "text", "text": "Checking."},
				{"type": "tool_use", "id": "toolu_1", "name": "bash", "input": {"command": "ls"}}
			],
			"stop_reason": "tool_use",
			"stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5, "cache_read_input_tokens": 3, "cache_creation_input_tokens": 2}
		}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(AnthropicConfig{BaseURL: srv.URL, APIKey: "test", MaxRetries: 0})
	resp, err := p.Complete(context.Background(), Request{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 100,
		Messages:  []chat.Message{chat.UserText("hi")},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(gotBody, `"hi"`) {
		t.Fatalf("request body = %s", gotBody)
	}
	if !resp.WantsTools() {
		t.Fatalf("stop reason = %q", resp.StopReason)
	}
	if len(resp.Content) != 2 || resp.Content[0].Text != "Checking." {
		t.Fatalf("content = %+v", resp.Content)
	}
	use := resp.Content[1]
	if use.Type != chat.BlockToolUse || use.ID != "toolu_1" || use.Name != "bash" {
		t.Fatalf("tool use = %+v", use)
	}
	var input map[string]string
	if err := json.Unmarshal(use.Input, &input); err != nil || input["command"] != "ls" {
		t.Fatalf("tool input = %s (%v)", use.Input, err)
	}
	want := Usage{InputTokens: 10, OutputTokens: 5, CacheReadTokens: 3, CacheWriteTokens: 2}
	if resp.Usage != want {
		t.Fatalf("usage = %+v, want %+v", resp.Usage, want)
	}
}

func TestAnthropicProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(AnthropicConfig{BaseURL: srv.URL, APIKey: "test", MaxRetries: 0})
	_, err := p.Complete(context.Background(), Request{Model: "m", MaxTokens: 10, Messages: []chat.Message{chat.UserText("hi")}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "anthropic messages") {
		t.Fatalf("error = %v", err)
	}
}
