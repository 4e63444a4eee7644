package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buildmatic/internal/chat"
	"buildmatic/internal/contextmgr"
	"buildmatic/internal/event"
	"buildmatic/internal/provider"
	"buildmatic/internal/tools"

	"go.uber.org/zap"
)

// ErrTurnLimit is returned when a run exhausts its turn budget.
var ErrTurnLimit = errors.New("turn limit reached")

const (
	DefaultKeepLast      = 12
	DefaultToolOutputCap = 4000
	DefaultMaxTurns      = 50
	DefaultMaxTokens     = 8000
)

// Call 描述一次补全调用，供观察者记录
// Call describes one completion call for observers
type Call struct {
	Agent           string // empty for the top-level conversation
	Turn            int
	Model           string
	System          []provider.SystemSegment
	Messages        []chat.Message
	Response        provider.Response
	Duration        time.Duration
	EstimatedTokens int
}

// CallObserver is notified after every successful completion call.
type CallObserver interface {
	ObserveCall(Call)
}

type DriverOptions struct {
	System        []provider.SystemSegment
	Model         string
	MaxTokens     int
	KeepLast      int
	ToolOutputCap int
	MaxTurns      int
	ReportUsage   bool
	Agent         string
	Sink          event.Sink
	Observer      CallObserver
	Tokenizer     *contextmgr.Tokenizer
	Logger        *zap.Logger
}

// Driver runs the completion/tool loop for one conversation.
type Driver struct {
	provider provider.Provider
	registry *tools.Registry
	opts     DriverOptions
	sink     event.Sink
	logger   *zap.Logger
}

func NewDriver(p provider.Provider, registry *tools.Registry, opts DriverOptions) *Driver {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.KeepLast <= 0 {
		opts.KeepLast = DefaultKeepLast
	}
	if opts.ToolOutputCap <= 0 {
		opts.ToolOutputCap = DefaultToolOutputCap
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	d := &Driver{
		provider: p,
		registry: registry,
		opts:     opts,
		sink:     opts.Sink,
		logger:   opts.Logger,
	}
	if d.sink == nil {
		d.sink = event.Discard
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// Run drives the conversation until the service stops asking for tools.
// The returned history is the input plus every message appended on the
// way, also when Run fails. Exactly one terminal event is emitted.
func (d *Driver) Run(ctx context.Context, history []chat.Message) ([]chat.Message, error) {
	messages := append([]chat.Message(nil), history...)
	if d.provider == nil {
		err := errors.New("provider unavailable")
		d.sink.Emit(event.Error(err.Error()))
		return messages, err
	}

	specs := d.registry.Specs()
	for turn := 1; turn <= d.opts.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return messages, d.abort(err)
		}

		view := contextmgr.Summarize(messages, d.opts.KeepLast)
		req := provider.Request{
			Model:     d.opts.Model,
			System:    d.opts.System,
			Messages:  view,
			Tools:     specs,
			MaxTokens: d.opts.MaxTokens,
		}
		start := time.Now()
		resp, err := d.provider.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return messages, d.abort(ctx.Err())
			}
			d.sink.Emit(event.Error(err.Error()))
			return messages, fmt.Errorf("completion call: %w", err)
		}
		d.observe(turn, req, resp, time.Since(start))

		if d.opts.ReportUsage {
			u := resp.Usage
			d.sink.Emit(event.Text(fmt.Sprintf("[tokens: in=%d, out=%d, cache_read=%d, cache_created=%d]",
				u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheWriteTokens)))
		}
		for _, b := range resp.Content {
			if b.Type == chat.BlockText && b.Text != "" {
				d.sink.Emit(event.Text(b.Text))
			}
		}

		assistant := resp.Message()
		uses := assistant.ToolUses()
		if !resp.WantsTools() || len(uses) == 0 {
			messages = append(messages, assistant)
			d.sink.Emit(event.Done(assistant.AllText()))
			return messages, nil
		}

		results := make([]chat.Block, 0, len(uses))
		for _, use := range uses {
			d.sink.Emit(event.ToolStart(use.Name, use.Input))
			outcome := d.registry.Dispatch(ctx, use.Name, use.Input)
			d.logger.Debug("tool dispatched",
				zap.String("agent", d.opts.Agent),
				zap.String("tool", use.Name),
				zap.Bool("failed", outcome.Failed),
				zap.Int("output_len", len(outcome.Output)),
			)
			if outcome.Fatal != nil {
				if ctx.Err() != nil {
					return messages, d.abort(ctx.Err())
				}
				d.sink.Emit(event.Error(outcome.Fatal.Error()))
				return messages, fmt.Errorf("tool %s: %w", use.Name, outcome.Fatal)
			}
			output := outcome.Output
			if id, ok := tools.ParseID(use.Name); !ok || id.Truncatable() {
				output = contextmgr.SmartTruncate(output, d.opts.ToolOutputCap)
			}
			d.sink.Emit(event.ToolResult(use.Name, output))
			results = append(results, chat.ToolResultBlock(use.ID, output))
		}

		messages = append(messages, compactAssistant(assistant), chat.Message{Role: chat.RoleUser, Content: results})
	}

	d.sink.Emit(event.Aborted(fmt.Sprintf("%s (%d turns)", ErrTurnLimit, d.opts.MaxTurns)))
	return messages, ErrTurnLimit
}

func (d *Driver) abort(err error) error {
	d.sink.Emit(event.Aborted(err.Error()))
	return err
}

func (d *Driver) observe(turn int, req provider.Request, resp provider.Response, elapsed time.Duration) {
	estimated := 0
	if d.opts.Tokenizer != nil {
		estimated = d.opts.Tokenizer.Count(req.Messages)
	}
	d.logger.Debug("completion call",
		zap.String("agent", d.opts.Agent),
		zap.Int("turn", turn),
		zap.String("model", req.Model),
		zap.String("stop_reason", resp.StopReason),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Int("cache_read_tokens", resp.Usage.CacheReadTokens),
		zap.Int("estimated_context_tokens", estimated),
		zap.Duration("duration", elapsed),
	)
	if d.opts.Observer == nil {
		return
	}
	d.opts.Observer.ObserveCall(Call{
		Agent:           d.opts.Agent,
		Turn:            turn,
		Model:           req.Model,
		System:          req.System,
		Messages:        req.Messages,
		Response:        resp,
		Duration:        elapsed,
		EstimatedTokens: estimated,
	})
}

// compactAssistant shrinks oversized tool inputs before the message is
// stored. The tools already ran with the full input.
func compactAssistant(msg chat.Message) chat.Message {
	out := chat.Message{Role: msg.Role, Content: make([]chat.Block, len(msg.Content))}
	for i, b := range msg.Content {
		if b.Type == chat.BlockToolUse {
			b.Input = contextmgr.CompactToolInput(b.Input)
		}
		out.Content[i] = b
	}
	return out
}
