package contextmgr

import (
	"strings"
	"sync"

	"buildmatic/internal/chat"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer 估算上下文 token 数，tiktoken 不可用时回退到启发式
// Tokenizer estimates context size with tiktoken, falling back to a heuristic
type Tokenizer struct {
	encoder      *tiktoken.Tiktoken
	encodingName string
	fallback     bool
	mu           sync.RWMutex
}

var (
	defaultTokenizer     *Tokenizer
	defaultTokenizerOnce sync.Once
)

// DefaultTokenizer 返回全局默认的 tokenizer 实例
// DefaultTokenizer returns the shared cl100k_base tokenizer
func DefaultTokenizer() *Tokenizer {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer = NewTokenizer("cl100k_base")
	})
	return defaultTokenizer
}

// NewTokenizer 创建 tokenizer，离线环境可能没有 BPE 缓存
// NewTokenizer creates a tokenizer; offline environments may lack the BPE cache
func NewTokenizer(encodingName string) *Tokenizer {
	t := &Tokenizer{encodingName: encodingName}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		t.fallback = true
		return t
	}
	t.encoder = enc
	return t
}

func NewTokenizerForModel(model string) *Tokenizer {
	return NewTokenizer(modelToEncoding(model))
}

// Count 计算消息列表的总 token 数
// Count returns the estimated token count of a message list
func (t *Tokenizer) Count(messages []chat.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.countMessage(msg)
	}
	return total
}

// CountText counts tokens for a single string.
func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicTokenCount(text)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.encoder.Encode(text, nil, nil))
}

func (t *Tokenizer) IsPrecise() bool {
	return !t.fallback
}

func (t *Tokenizer) EncodingName() string {
	return t.encodingName
}

func (t *Tokenizer) countMessage(msg chat.Message) int {
	// ~4 tokens of framing per message
	tokens := 4 + t.CountText(string(msg.Role))
	for _, b := range msg.Content {
		switch b.Type {
		case chat.BlockText:
			tokens += t.CountText(b.Text)
		case chat.BlockToolUse:
			tokens += t.CountText(b.Name) + t.CountText(string(b.Input)) + 8
		case chat.BlockToolResult:
			tokens += t.CountText(b.Content) + 4
		}
	}
	return tokens
}

// EstimateTokens counts messages with the default tokenizer.
func EstimateTokens(messages []chat.Message) int {
	return DefaultTokenizer().Count(messages)
}

// heuristicTokenCount: CJK ~1.5 tokens per rune, everything else ~4 runes per token
func heuristicTokenCount(text string) int {
	if text == "" {
		return 0
	}
	cjkCount := 0
	otherCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		} else {
			otherCount++
		}
	}
	estimate := int(float64(cjkCount)*1.5 + float64(otherCount)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}

// modelToEncoding 根据模型名推断编码
// modelToEncoding maps a model name to a tiktoken encoding
func modelToEncoding(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "chatgpt-4o"):
		return "o200k_base"
	default:
		// claude, gpt-4, gpt-3.5 and unknown models share cl100k_base as an approximation
		return "cl100k_base"
	}
}

// NewHeuristicTokenizer returns a tokenizer that never loads BPE data.
func NewHeuristicTokenizer() *Tokenizer {
	return &Tokenizer{encodingName: "heuristic", fallback: true}
}
