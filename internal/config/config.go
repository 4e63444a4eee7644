package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// ErrMissingAPIKey is returned by Validate when the selected provider has no key.
var ErrMissingAPIKey = errors.New("missing API key")

type ProviderConfig struct {
	Kind       string `json:"kind" yaml:"kind"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	APIKey     string `json:"api_key,omitempty" yaml:"api_key"`
	Model      string `json:"model" yaml:"model"`
	ModelFast  string `json:"model_fast" yaml:"model_fast"`
	TimeoutMS  int    `json:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
}

type RuntimeConfig struct {
	WorkspaceRoot      string `json:"workspace_root" yaml:"workspace_root"`
	SkillsDir          string `json:"skills_dir" yaml:"skills_dir"`
	MaxContextMessages int    `json:"max_context_messages" yaml:"max_context_messages"`
	MaxToolOutput      int    `json:"max_tool_output" yaml:"max_tool_output"`
	MaxTurns           int    `json:"max_turns" yaml:"max_turns"`
	SubagentMaxTurns   int    `json:"subagent_max_turns" yaml:"subagent_max_turns"`
	MaxTokens          int    `json:"max_tokens" yaml:"max_tokens"`
	SubagentMaxTokens  int    `json:"subagent_max_tokens" yaml:"subagent_max_tokens"`
	EnableCaching      bool   `json:"enable_caching" yaml:"enable_caching"`
}

type SafetyConfig struct {
	CommandTimeoutMS int `json:"command_timeout_ms" yaml:"command_timeout_ms"`
	OutputLimit      int `json:"output_limit" yaml:"output_limit"`
}

type StorageConfig struct {
	// LogDir 为空时使用 <workspace>/.buildmatic-logs
	// LogDir defaults to <workspace>/.buildmatic-logs
	LogDir string `json:"log_dir" yaml:"log_dir"`
	// DBPath 为空时不启用 SQLite 镜像
	// DBPath enables the SQLite call mirror when set
	DBPath string `json:"db_path" yaml:"db_path"`
}

type ServerConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	JWTSecret string `json:"jwt_secret,omitempty" yaml:"jwt_secret"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

type Config struct {
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Runtime  RuntimeConfig  `json:"runtime" yaml:"runtime"`
	Safety   SafetyConfig   `json:"safety" yaml:"safety"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

type fileRuntimeConfig struct {
	WorkspaceRoot      string `json:"workspace_root" yaml:"workspace_root"`
	SkillsDir          string `json:"skills_dir" yaml:"skills_dir"`
	MaxContextMessages int    `json:"max_context_messages" yaml:"max_context_messages"`
	MaxToolOutput      int    `json:"max_tool_output" yaml:"max_tool_output"`
	MaxTurns           int    `json:"max_turns" yaml:"max_turns"`
	SubagentMaxTurns   int    `json:"subagent_max_turns" yaml:"subagent_max_turns"`
	MaxTokens          int    `json:"max_tokens" yaml:"max_tokens"`
	SubagentMaxTokens  int    `json:"subagent_max_tokens" yaml:"subagent_max_tokens"`
	EnableCaching      *bool  `json:"enable_caching" yaml:"enable_caching"`
}

type fileLoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development *bool  `json:"development" yaml:"development"`
}

type fileConfig struct {
	Provider *ProviderConfig    `json:"provider" yaml:"provider"`
	Runtime  *fileRuntimeConfig `json:"runtime" yaml:"runtime"`
	Safety   *SafetyConfig      `json:"safety" yaml:"safety"`
	Storage  *StorageConfig     `json:"storage" yaml:"storage"`
	Server   *ServerConfig      `json:"server" yaml:"server"`
	Logging  *fileLoggingConfig `json:"logging" yaml:"logging"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Kind:       ProviderAnthropic,
			Model:      "claude-sonnet-4-20250514",
			ModelFast:  "claude-3-5-haiku-20241022",
			TimeoutMS:  120000,
			MaxRetries: 2,
		},
		Runtime: RuntimeConfig{
			SkillsDir:          "skills",
			MaxContextMessages: 20,
			MaxToolOutput:      5000,
			MaxTurns:           50,
			SubagentMaxTurns:   30,
			MaxTokens:          8000,
			SubagentMaxTokens:  4000,
			EnableCaching:      true,
		},
		Safety: SafetyConfig{
			CommandTimeoutMS: 60000,
			OutputLimit:      50000,
		},
		Server: ServerConfig{
			Addr: ":3000",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load 按 全局 -> 项目 -> 显式路径 的顺序合并配置，最后应用环境变量
// Load merges global, project and explicit config files in that order, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}
	if err := mergeFromFile(&cfg, findProjectConfigPath()); err != nil {
		return Config{}, err
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("BUILDMATIC_CONFIG")); envPath != "" && resolvedPath == "" {
		resolvedPath = envPath
	}
	if resolvedPath != "" {
		if _, err := os.Stat(mustExpand(resolvedPath)); err != nil {
			return Config{}, fmt.Errorf("config %q: %w", resolvedPath, err)
		}
		if err := mergeFromFile(&cfg, resolvedPath); err != nil {
			return Config{}, err
		}
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

// Validate checks what cannot be defaulted.
func (c Config) Validate() error {
	switch c.Provider.Kind {
	case ProviderAnthropic:
		if strings.TrimSpace(c.Provider.APIKey) == "" {
			return fmt.Errorf("%w: set ANTHROPIC_API_KEY or provider.api_key", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if strings.TrimSpace(c.Provider.APIKey) == "" && strings.TrimSpace(c.Provider.BaseURL) == "" {
			return fmt.Errorf("%w: set OPENAI_API_KEY, provider.api_key or provider.base_url", ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("provider.max_retries must not be negative")
	}
	return nil
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".buildmatic")
	return []string{
		filepath.Join(dir, "config.json"),
		filepath.Join(dir, "config.yaml"),
	}
}

func findProjectConfigPath() string {
	candidates := []string{
		"buildmatic.config.json",
		"buildmatic.config.yaml",
		"buildmatic.config.yml",
		".buildmatic/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	var fileCfg fileConfig
	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(stripJSONComments(data), &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Runtime != nil {
		cfg.Runtime = mergeRuntime(cfg.Runtime, *fc.Runtime)
	}
	if fc.Safety != nil {
		if fc.Safety.CommandTimeoutMS > 0 {
			cfg.Safety.CommandTimeoutMS = fc.Safety.CommandTimeoutMS
		}
		if fc.Safety.OutputLimit > 0 {
			cfg.Safety.OutputLimit = fc.Safety.OutputLimit
		}
	}
	if fc.Storage != nil {
		if v := strings.TrimSpace(fc.Storage.LogDir); v != "" {
			cfg.Storage.LogDir = v
		}
		if v := strings.TrimSpace(fc.Storage.DBPath); v != "" {
			cfg.Storage.DBPath = v
		}
	}
	if fc.Server != nil {
		if v := strings.TrimSpace(fc.Server.Addr); v != "" {
			cfg.Server.Addr = v
		}
		if v := strings.TrimSpace(fc.Server.JWTSecret); v != "" {
			cfg.Server.JWTSecret = v
		}
	}
	if fc.Logging != nil {
		if v := strings.TrimSpace(fc.Logging.Level); v != "" {
			cfg.Logging.Level = v
		}
		if fc.Logging.Development != nil {
			cfg.Logging.Development = *fc.Logging.Development
		}
	}
}

func mergeProvider(base ProviderConfig, override ProviderConfig) ProviderConfig {
	if v := strings.TrimSpace(override.Kind); v != "" {
		base.Kind = v
	}
	if v := strings.TrimSpace(override.BaseURL); v != "" {
		base.BaseURL = v
	}
	if v := strings.TrimSpace(override.APIKey); v != "" {
		base.APIKey = v
	}
	if v := strings.TrimSpace(override.Model); v != "" {
		base.Model = v
	}
	if v := strings.TrimSpace(override.ModelFast); v != "" {
		base.ModelFast = v
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	return base
}

func mergeRuntime(base RuntimeConfig, override fileRuntimeConfig) RuntimeConfig {
	if v := strings.TrimSpace(override.WorkspaceRoot); v != "" {
		base.WorkspaceRoot = v
	}
	if v := strings.TrimSpace(override.SkillsDir); v != "" {
		base.SkillsDir = v
	}
	if override.MaxContextMessages > 0 {
		base.MaxContextMessages = override.MaxContextMessages
	}
	if override.MaxToolOutput > 0 {
		base.MaxToolOutput = override.MaxToolOutput
	}
	if override.MaxTurns > 0 {
		base.MaxTurns = override.MaxTurns
	}
	if override.SubagentMaxTurns > 0 {
		base.SubagentMaxTurns = override.SubagentMaxTurns
	}
	if override.MaxTokens > 0 {
		base.MaxTokens = override.MaxTokens
	}
	if override.SubagentMaxTokens > 0 {
		base.SubagentMaxTokens = override.SubagentMaxTokens
	}
	if override.EnableCaching != nil {
		base.EnableCaching = *override.EnableCaching
	}
	return base
}

func normalize(cfg *Config) error {
	def := Default()
	cfg.Provider.Kind = strings.ToLower(strings.TrimSpace(cfg.Provider.Kind))
	if cfg.Provider.Kind == "" {
		cfg.Provider.Kind = def.Provider.Kind
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = def.Provider.Model
	}
	if cfg.Provider.ModelFast == "" {
		cfg.Provider.ModelFast = cfg.Provider.Model
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}

	positive := []struct {
		v   *int
		def int
	}{
		{&cfg.Runtime.MaxContextMessages, def.Runtime.MaxContextMessages},
		{&cfg.Runtime.MaxToolOutput, def.Runtime.MaxToolOutput},
		{&cfg.Runtime.MaxTurns, def.Runtime.MaxTurns},
		{&cfg.Runtime.SubagentMaxTurns, def.Runtime.SubagentMaxTurns},
		{&cfg.Runtime.MaxTokens, def.Runtime.MaxTokens},
		{&cfg.Runtime.SubagentMaxTokens, def.Runtime.SubagentMaxTokens},
		{&cfg.Safety.CommandTimeoutMS, def.Safety.CommandTimeoutMS},
		{&cfg.Safety.OutputLimit, def.Safety.OutputLimit},
	}
	for _, p := range positive {
		if *p.v <= 0 {
			*p.v = p.def
		}
	}
	if strings.TrimSpace(cfg.Runtime.SkillsDir) == "" {
		cfg.Runtime.SkillsDir = def.Runtime.SkillsDir
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = def.Logging.Level
	}

	cfg.Runtime.WorkspaceRoot = strings.TrimSpace(cfg.Runtime.WorkspaceRoot)
	if cfg.Runtime.WorkspaceRoot != "" {
		root, err := expandPath(cfg.Runtime.WorkspaceRoot)
		if err != nil {
			return err
		}
		cfg.Runtime.WorkspaceRoot = root
	}
	if cfg.Storage.DBPath != "" {
		dbPath, err := expandPath(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		cfg.Storage.DBPath = dbPath
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("BUILDMATIC_PROVIDER")); v != "" {
		cfg.Provider.Kind = strings.ToLower(v)
	}
	switch cfg.Provider.Kind {
	case ProviderOpenAI:
		if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
			cfg.Provider.APIKey = v
		}
		if v := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); v != "" {
			cfg.Provider.BaseURL = v
		}
	default:
		if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
			cfg.Provider.APIKey = v
		}
		if v := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); v != "" {
			cfg.Provider.BaseURL = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("MODEL_NAME")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("MODEL_NAME_FAST")); v != "" {
		cfg.Provider.ModelFast = v
	}
	if v := strings.TrimSpace(os.Getenv("BUILDMATIC_WORKSPACE_ROOT")); v != "" {
		cfg.Runtime.WorkspaceRoot = v
	}
	for _, e := range []struct {
		name string
		dst  *int
	}{
		{"MAX_CONTEXT_MESSAGES", &cfg.Runtime.MaxContextMessages},
		{"MAX_TOOL_OUTPUT", &cfg.Runtime.MaxToolOutput},
	} {
		v := strings.TrimSpace(os.Getenv(e.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", e.name, v)
		}
		*e.dst = n
	}
	if v, ok := os.LookupEnv("ENABLE_CACHING"); ok {
		cfg.Runtime.EnableCaching = strings.TrimSpace(v) != "false"
	}
	if v := strings.TrimSpace(os.Getenv("BUILDMATIC_JWT_SECRET")); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("BUILDMATIC_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, normalize(&cfg)
}

func mustExpand(path string) string {
	p, err := expandPath(path)
	if err != nil {
		return path
	}
	return p
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
