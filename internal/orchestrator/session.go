package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"buildmatic/internal/agent"
	"buildmatic/internal/chat"
	"buildmatic/internal/contextmgr"
	"buildmatic/internal/event"
	"buildmatic/internal/provider"
	"buildmatic/internal/security"
	"buildmatic/internal/skills"
	"buildmatic/internal/todo"
	"buildmatic/internal/tools"

	"go.uber.org/zap"
)

const (
	DefaultSubagentMaxTokens = 4000
	noSubagentText           = "(subagent returned no text)"
)

type Options struct {
	Workspace *security.Workspace
	Skills    *skills.Loader
	// Todos is shared by the session's driver and every subagent it spawns.
	Todos *todo.Tracker

	Model             string
	FastModel         string
	MaxTokens         int
	SubagentMaxTokens int
	KeepLast          int
	ToolOutputCap     int
	MaxTurns          int
	SubagentMaxTurns  int
	EnableCaching     bool

	CommandTimeout time.Duration
	OutputLimit    int

	Observer  CallObserver
	Tokenizer *contextmgr.Tokenizer
	Logger    *zap.Logger
}

// Session 顶层会话：持有待办列表、技能与工作区，并负责派生子代理
// Session owns the todo list, skills and workspace of one top-level
// conversation and spawns its subagents.
type Session struct {
	provider provider.Provider
	opts     Options
	base     *tools.Registry
	system   string
	logger   *zap.Logger
}

func NewSession(p provider.Provider, opts Options) (*Session, error) {
	if p == nil {
		return nil, errors.New("provider is required")
	}
	if opts.Workspace == nil {
		return nil, errors.New("workspace is required")
	}
	if opts.Skills == nil {
		opts.Skills = skills.Empty()
	}
	if opts.Todos == nil {
		opts.Todos = todo.NewTracker()
	}
	if opts.FastModel == "" {
		opts.FastModel = opts.Model
	}
	if opts.SubagentMaxTokens <= 0 {
		opts.SubagentMaxTokens = DefaultSubagentMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		provider: p,
		opts:     opts,
		base:     baseRegistry(opts),
		system:   SystemPrompt(opts.Workspace.Root(), opts.Skills.Descriptions()),
		logger:   logger,
	}, nil
}

// baseRegistry builds the tools every agent may be granted. TodoWrite is
// bound to opts.Todos.
func baseRegistry(opts Options) *tools.Registry {
	return tools.NewRegistry(
		tools.NewBashTool(opts.Workspace.Root(), opts.CommandTimeout, opts.OutputLimit),
		tools.NewReadTool(opts.Workspace, opts.OutputLimit),
		tools.NewWriteTool(opts.Workspace),
		tools.NewEditTool(opts.Workspace),
		tools.NewTodoWriteTool(opts.Todos),
	)
}

// Fork returns a session that shares everything with s except the todo
// list, which starts empty. Use one fork per independent conversation.
func (s *Session) Fork() *Session {
	opts := s.opts
	opts.Todos = todo.NewTracker()
	return &Session{
		provider: s.provider,
		opts:     opts,
		base:     baseRegistry(opts),
		system:   s.system,
		logger:   s.logger,
	}
}

func (s *Session) Model() string { return s.opts.Model }

func (s *Session) Todos() *todo.Tracker { return s.opts.Todos }

func (s *Session) Skills() *skills.Loader { return s.opts.Skills }

func (s *Session) WorkDir() string { return s.opts.Workspace.Root() }

// SystemPrompt returns the top-level instructions sent on every call.
func (s *Session) SystemPrompt() string { return s.system }

// Registry returns the full top-level tool set, with Task routed to the
// spawner and announcements going to sink.
func (s *Session) Registry(sink event.Sink) *tools.Registry {
	if sink == nil {
		sink = event.Discard
	}
	runner := func(ctx context.Context, description, prompt, agentType string) (string, error) {
		return s.spawn(ctx, sink, description, prompt, agentType)
	}
	all := []tools.Tool{
		tools.NewSkillTool(s.opts.Skills),
		tools.NewTaskTool(runner, agent.Options()),
	}
	for _, id := range s.base.IDs() {
		t, _ := s.base.Get(id)
		all = append(all, t)
	}
	return tools.NewRegistry(all...)
}

// Run continues history with the top-level driver.
func (s *Session) Run(ctx context.Context, history []chat.Message, sink event.Sink) ([]chat.Message, error) {
	d := NewDriver(s.provider, s.Registry(sink), DriverOptions{
		System:        []provider.SystemSegment{{Text: s.system, Cacheable: s.opts.EnableCaching}},
		Model:         s.opts.Model,
		MaxTokens:     s.opts.MaxTokens,
		KeepLast:      s.opts.KeepLast,
		ToolOutputCap: s.opts.ToolOutputCap,
		MaxTurns:      s.opts.MaxTurns,
		ReportUsage:   true,
		Sink:          sink,
		Observer:      s.opts.Observer,
		Tokenizer:     s.opts.Tokenizer,
		Logger:        s.logger,
	})
	return d.Run(ctx, history)
}

// RunPrompt appends prompt as a user turn and runs it.
func (s *Session) RunPrompt(ctx context.Context, history []chat.Message, prompt string, sink event.Sink) ([]chat.Message, error) {
	next := append(append([]chat.Message(nil), history...), chat.UserText(prompt))
	return s.Run(ctx, next, sink)
}

func (s *Session) modelFor(tier agent.Tier) string {
	if tier == agent.TierFast {
		return s.opts.FastModel
	}
	return s.opts.Model
}

// spawn runs a nested conversation and returns only its final text. The
// parent blocks until it finishes. Completion failures are fatal to the
// parent; a nested turn limit is reported as an ordinary tool error.
func (s *Session) spawn(ctx context.Context, sink event.Sink, description, prompt, agentType string) (string, error) {
	typ, err := agent.ParseType(agentType)
	if err != nil {
		return "", err
	}
	profile, _ := agent.Lookup(typ)
	model := s.modelFor(profile.Tier)

	sink.Emit(event.Text(fmt.Sprintf("[%s:%s] %s", typ, profile.Tier, description)))
	s.logger.Info("subagent started",
		zap.String("type", string(typ)),
		zap.String("model", model),
		zap.String("description", description),
	)

	d := NewDriver(s.provider, s.base.Subset(profile.Tools.Allows), DriverOptions{
		System:        []provider.SystemSegment{{Text: SubagentPrompt(profile, s.WorkDir())}},
		Model:         model,
		MaxTokens:     s.opts.SubagentMaxTokens,
		KeepLast:      s.opts.KeepLast,
		ToolOutputCap: s.opts.ToolOutputCap,
		MaxTurns:      s.opts.SubagentMaxTurns,
		Agent:         string(typ),
		Sink:          event.Discard,
		Observer:      s.opts.Observer,
		Tokenizer:     s.opts.Tokenizer,
		Logger:        s.logger.With(zap.String("subagent", string(typ))),
	})
	history, err := d.Run(ctx, []chat.Message{chat.UserText(prompt)})
	if err != nil {
		if errors.Is(err, ErrTurnLimit) {
			return "", fmt.Errorf("%s subagent: %w", typ, err)
		}
		return "", &tools.FatalError{Err: fmt.Errorf("%s subagent: %w", typ, err)}
	}

	final := history[len(history)-1]
	if text := strings.TrimSpace(final.Text()); final.Role == chat.RoleAssistant && text != "" {
		return final.Text(), nil
	}
	return noSubagentText, nil
}
