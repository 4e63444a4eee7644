package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"buildmatic/internal/chat"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// AnthropicProvider 通过官方 SDK 访问 Messages API
// AnthropicProvider talks to the Messages API through the official SDK
type AnthropicProvider struct {
	client anthropic.Client
}

// AnthropicConfig Anthropic provider 配置
// AnthropicConfig is the Anthropic provider configuration
type AnthropicConfig struct {
	BaseURL    string
	APIKey     string
	TimeoutMS  int
	MaxRetries int
}

func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.TimeoutMS > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.TimeoutMS)*time.Millisecond))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := p.client.Messages.New(ctx, buildAnthropicParams(req))
	if err != nil {
		return Response{}, fmt.Errorf("anthropic messages: %w", err)
	}
	return parseAnthropicMessage(resp)
}

func buildAnthropicParams(req Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  anthropicMessages(req.Messages),
	}
	for _, seg := range req.System {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		block := anthropic.TextBlockParam{Text: seg.Text}
		if seg.Cacheable {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = append(params.System, block)
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
	}
	return params
}

func anthropicMessages(messages []chat.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case chat.BlockText:
				// the API rejects empty text blocks
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case chat.BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case chat.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, false))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == chat.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func anthropicTools(specs []chat.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: spec.InputSchema["properties"],
		}
		if req, ok := spec.InputSchema["required"].([]string); ok {
			schema.Required = req
		}
		tool := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		out = append(out, tool)
	}
	return out
}

func parseAnthropicMessage(msg *anthropic.Message) (Response, error) {
	if msg == nil {
		return Response{}, fmt.Errorf("anthropic messages: empty response")
	}
	out := Response{
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:      int(msg.Usage.InputTokens),
			OutputTokens:     int(msg.Usage.OutputTokens),
			CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(msg.Usage.CacheCreationInputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content = append(out.Content, chat.TextBlock(block.AsText().Text))
		case "tool_use":
			tu := block.AsToolUse()
			input, err := json.Marshal(tu.Input)
			if err != nil {
				return Response{}, fmt.Errorf("anthropic messages: tool input for %s: %w", tu.Name, err)
			}
			out.Content = append(out.Content, chat.ToolUseBlock(tu.ID, tu.Name, input))
		}
	}
	return out, nil
}
