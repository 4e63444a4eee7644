package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"buildmatic/internal/config"
	"buildmatic/internal/contextmgr"
	"buildmatic/internal/orchestrator"
	"buildmatic/internal/provider"
	"buildmatic/internal/security"
	"buildmatic/internal/sessionlog"
	"buildmatic/internal/skills"
	"buildmatic/internal/storage"

	"go.uber.org/zap"
)

// Options 构建时可注入的依赖，测试用
// Options carries dependencies that tests inject instead of building them
// from config.
type Options struct {
	Logger *zap.Logger
	// Provider replaces the completion client built from cfg.Provider.
	Provider provider.Provider
	// Tokenizer replaces the tiktoken estimator for cfg.Provider.Model.
	Tokenizer *contextmgr.Tokenizer
}

// BuildResult 与 UI 无关的构建结果，供 main 构造 REPL/TUI/server
// BuildResult is UI-agnostic; main uses it to construct the REPL, TUI or server
type BuildResult struct {
	Session       *orchestrator.Session
	SessionLog    *sessionlog.Logger
	Store         *storage.SQLiteStore // nil unless storage.db_path is set
	WorkspaceRoot string
	Model         string
	SkillNames    []string
}

// Close releases the SQLite mirror when one is open.
func (r *BuildResult) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Build 按顺序初始化：工作区 -> 技能 -> provider -> 会话日志 -> Session
// Build initializes workspace, skills, provider, session log and session in
// that order. Callers must Close the result.
func Build(cfg config.Config, workspaceRoot string, opts Options) (*BuildResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	root, err := resolveWorkspaceRoot(cfg, workspaceRoot)
	if err != nil {
		return nil, err
	}
	ws, err := security.NewWorkspace(root)
	if err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}

	loader, err := skills.Load(resolveSkillsDir(ws.Root(), cfg.Runtime.SkillsDir), logger)
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}

	client := opts.Provider
	if client == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		client, err = newProvider(cfg.Provider)
		if err != nil {
			return nil, err
		}
	}

	store, err := openMirror(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	var mirror sessionlog.Mirror
	if store != nil {
		mirror = store
	}
	callLog, err := sessionlog.New(sessionlog.Config{
		Dir:     cfg.Storage.LogDir,
		WorkDir: ws.Root(),
		Model:   cfg.Provider.Model,
		Mirror:  mirror,
		Logger:  logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init session log: %w", err), closeStore(store))
	}

	tokenizer := opts.Tokenizer
	if tokenizer == nil {
		tokenizer = contextmgr.NewTokenizerForModel(cfg.Provider.Model)
	}

	session, err := orchestrator.NewSession(client, orchestrator.Options{
		Workspace:         ws,
		Skills:            loader,
		Model:             cfg.Provider.Model,
		FastModel:         cfg.Provider.ModelFast,
		MaxTokens:         cfg.Runtime.MaxTokens,
		SubagentMaxTokens: cfg.Runtime.SubagentMaxTokens,
		KeepLast:          cfg.Runtime.MaxContextMessages,
		ToolOutputCap:     cfg.Runtime.MaxToolOutput,
		MaxTurns:          cfg.Runtime.MaxTurns,
		SubagentMaxTurns:  cfg.Runtime.SubagentMaxTurns,
		EnableCaching:     cfg.Runtime.EnableCaching,
		CommandTimeout:    time.Duration(cfg.Safety.CommandTimeoutMS) * time.Millisecond,
		OutputLimit:       cfg.Safety.OutputLimit,
		Observer:          callLog,
		Tokenizer:         tokenizer,
		Logger:            logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init session: %w", err), closeStore(store))
	}

	logger.Info("session ready",
		zap.String("session_id", callLog.SessionID()),
		zap.String("workdir", ws.Root()),
		zap.String("provider", client.Name()),
		zap.String("model", cfg.Provider.Model),
		zap.Strings("skills", loader.Names()),
		zap.String("log", callLog.Path()),
	)

	return &BuildResult{
		Session:       session,
		SessionLog:    callLog,
		Store:         store,
		WorkspaceRoot: ws.Root(),
		Model:         cfg.Provider.Model,
		SkillNames:    loader.Names(),
	}, nil
}
