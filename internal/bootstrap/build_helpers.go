package bootstrap

import (
	"fmt"
	"path/filepath"
	"strings"

	"buildmatic/internal/config"
	"buildmatic/internal/provider"
	"buildmatic/internal/storage"
)

func resolveWorkspaceRoot(cfg config.Config, workspaceRoot string) (string, error) {
	root := strings.TrimSpace(workspaceRoot)
	if root == "" {
		root = strings.TrimSpace(cfg.Runtime.WorkspaceRoot)
	}
	if root == "" {
		return "", fmt.Errorf("workspace root is empty")
	}
	return root, nil
}

// resolveSkillsDir anchors a relative skills dir at the workspace root.
func resolveSkillsDir(root, dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

func newProvider(cfg config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Kind {
	case config.ProviderAnthropic:
		return provider.NewAnthropicProvider(provider.AnthropicConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			TimeoutMS:  cfg.TimeoutMS,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case config.ProviderOpenAI:
		return provider.NewOpenAIProvider(provider.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			TimeoutMS:  cfg.TimeoutMS,
			MaxRetries: cfg.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

func openMirror(dbPath string) (*storage.SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, nil
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.SQLiteStore) error {
	if store == nil {
		return nil
	}
	return store.Close()
}
