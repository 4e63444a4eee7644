package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"buildmatic/internal/chat"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider 使用 go-openai SDK 访问 OpenAI 兼容服务
// OpenAIProvider serves OpenAI-compatible endpoints through go-openai
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// OpenAIConfig SDK provider 配置
// OpenAIConfig is the SDK provider configuration
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	TimeoutMS  int
	MaxRetries int
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		config.BaseURL = base
	}
	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	config.HTTPClient = httpClient
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(config), cfg: cfg}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	sdkReq := buildOpenAIRequest(req)
	return withRetry(ctx, p.cfg.MaxRetries, func() (Response, error) {
		resp, err := p.client.CreateChatCompletion(ctx, sdkReq)
		if err != nil {
			return Response{}, fmt.Errorf("openai chat completion: %w", err)
		}
		return parseOpenAIResponse(resp)
	})
}

func buildOpenAIRequest(req Request) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if system := joinSystem(req.System); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, convertMessages(req.Messages)...)

	sdkReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if len(req.Tools) > 0 {
		sdkReq.Tools = convertTools(req.Tools)
		sdkReq.ToolChoice = "auto"
	}
	if req.MaxTokens > 0 {
		sdkReq.MaxTokens = req.MaxTokens
	}
	return sdkReq
}

func parseOpenAIResponse(resp openai.ChatCompletionResponse) (Response, error) {
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai chat completion: empty choices")
	}
	choice := resp.Choices[0]
	var blocks []chat.Block
	if text := choice.Message.Content; text != "" {
		blocks = append(blocks, chat.TextBlock(text))
	}
	for i, tc := range choice.Message.ToolCalls {
		id := strings.TrimSpace(tc.ID)
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		blocks = append(blocks, chat.ToolUseBlock(id, strings.TrimSpace(tc.Function.Name), argumentsJSON(tc.Function.Arguments)))
	}

	out := Response{
		StopReason: normaliseFinishReason(choice.FinishReason),
		Content:    blocks,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if resp.Usage.PromptTokensDetails != nil {
		out.Usage.CacheReadTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}
	// some compatible servers report "stop" alongside tool calls
	if len(choice.Message.ToolCalls) > 0 {
		out.StopReason = StopToolUse
	}
	return out, nil
}

func normaliseFinishReason(r openai.FinishReason) string {
	switch r {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return StopToolUse
	case openai.FinishReasonLength:
		return StopMaxTokens
	case openai.FinishReasonStop, "":
		return StopEndTurn
	default:
		return string(r)
	}
}

func argumentsJSON(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": args})
	return wrapped
}

func joinSystem(segments []SystemSegment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s.Text) != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// --- Message / Tool Conversion ---

// convertMessages maps block messages onto the chat-completions shape:
// tool results become "tool" role messages that precede any user text.
func convertMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleAssistant:
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.AllText(),
			}
			for _, b := range m.ToolUses() {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   b.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.Name,
						Arguments: string(b.Input),
					},
				})
			}
			out = append(out, msg)
		default:
			var text []string
			for _, b := range m.Content {
				switch b.Type {
				case chat.BlockToolResult:
					out = append(out, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    b.Content,
						ToolCallID: b.ToolUseID,
					})
				case chat.BlockText:
					text = append(text, b.Text)
				}
			}
			if len(text) > 0 {
				out = append(out, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleUser,
					Content: strings.Join(text, "\n"),
				})
			}
		}
	}
	return out
}

func convertTools(tools []chat.ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}
