package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"buildmatic/internal/chat"
	"buildmatic/internal/provider"
)

type scriptedStep struct {
	resp provider.Response
	err  error
}

// scriptedProvider replays canned responses in order and records requests.
type scriptedProvider struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []provider.Request
}

func (p *scriptedProvider) Complete(_ context.Context, req provider.Request) (provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.steps) == 0 {
		return provider.Response{}, errors.New("no scripted response")
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	return step.resp, step.err
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Requests() []provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.Request(nil), p.requests...)
}

func script(steps ...scriptedStep) *scriptedProvider {
	return &scriptedProvider{steps: steps}
}

func answer(text string) scriptedStep {
	return scriptedStep{resp: provider.Response{
		StopReason: provider.StopEndTurn,
		Content:    []chat.Block{chat.TextBlock(text)},
		Usage:      provider.Usage{InputTokens: 10, OutputTokens: 2},
	}}
}

func toolCall(id, name string, input any) scriptedStep {
	raw, _ := json.Marshal(input)
	return scriptedStep{resp: provider.Response{
		StopReason: provider.StopToolUse,
		Content:    []chat.Block{chat.ToolUseBlock(id, name, raw)},
		Usage:      provider.Usage{InputTokens: 20, OutputTokens: 5, CacheReadTokens: 7, CacheWriteTokens: 3},
	}}
}

func failure(err error) scriptedStep {
	return scriptedStep{err: err}
}

func specNames(specs []chat.ToolSpec) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Name)
	}
	return out
}
