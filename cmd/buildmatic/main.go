// Command buildmatic is the CLI front end of the agent engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"buildmatic/internal/bootstrap"
	"buildmatic/internal/config"
	"buildmatic/internal/event"
	"buildmatic/internal/logging"
	"buildmatic/internal/repl"
	"buildmatic/internal/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli holds the state shared by every subcommand.
type cli struct {
	configPath string
	workdir    string
	verbose    bool
	command    string
	plain      bool

	cfg    config.Config
	logger *zap.Logger

	// build is replaced in tests.
	build func(cfg config.Config, workdir string, opts bootstrap.Options) (*bootstrap.BuildResult, error)
}

func main() {
	if err := newRootCmd(&cli{build: bootstrap.Build}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {

	rootCmd := &cobra.Command{
		Use:   "buildmatic [prompt...]",
		Short: "buildmatic - tool-using coding agent",
		Long: `buildmatic drives a completion service in a tool loop: it runs shell
commands, edits files, tracks a todo list, loads skills and delegates
work to subagents.

Run without arguments to start the interactive interface.`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd, args)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(c.command)
			if prompt == "" {
				prompt = strings.TrimSpace(strings.Join(args, " "))
			}
			if prompt != "" {
				return c.runOnce(cmd, prompt)
			}
			return c.runInteractive(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to config file (JSON, JSONC or YAML)")
	rootCmd.PersistentFlags().StringVarP(&c.workdir, "workdir", "w", "", "Workspace root (default: config or current directory)")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Flags().StringVarP(&c.command, "command", "c", "", "Run one prompt and exit")
	rootCmd.Flags().BoolVar(&c.plain, "plain", false, "Use the line-based REPL instead of the TUI")

	rootCmd.AddCommand(
		c.newServeCmd(),
		c.newLogsCmd(),
		c.newInitCmd(),
		c.newTokenCmd(),
	)
	return rootCmd
}

// setup loads the configuration and builds the logger.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg

	level := cfg.Logging.Level
	if c.verbose {
		level = "debug"
	}
	interactive := cmd.Root() == cmd && c.command == "" && len(args) == 0
	if interactive && !c.verbose {
		// the interactive front ends own the terminal
		c.logger = logging.Quiet()
		return nil
	}
	logger, err := logging.New(level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// session builds the conversation for the selected workspace. Without
// --workdir or runtime.workspace_root the current directory is used.
func (c *cli) session() (*bootstrap.BuildResult, error) {
	root := strings.TrimSpace(c.workdir)
	if root == "" && c.cfg.Runtime.WorkspaceRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve cwd: %w", err)
		}
		root = wd
	}
	return c.build(c.cfg, root, bootstrap.Options{Logger: c.logger})
}

// runOnce executes a single prompt and prints its events.
func (c *cli) runOnce(cmd *cobra.Command, prompt string) error {
	res, err := c.session()
	if err != nil {
		return err
	}
	defer res.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "> Running: %s\n\n", prompt)
	_, err = res.Session.RunPrompt(ctx, nil, prompt, event.NewPrinter(out))
	if err != nil {
		c.logger.Debug("one-shot run failed", zap.Error(err))
		return err
	}
	return nil
}

func (c *cli) runInteractive(cmd *cobra.Command) error {
	res, err := c.session()
	if err != nil {
		return err
	}
	defer res.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.plain {
		return repl.Run(ctx, res, historyPath(), c.logger)
	}
	err = tui.Run(ctx, res.Session, tui.Info{
		Workspace: res.WorkspaceRoot,
		Model:     res.Model,
		Skills:    res.SkillNames,
		SessionID: res.SessionLog.SessionID(),
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), res.SessionLog.Summary())
	}
	return err
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, config.ProjectDirName, "repl.history")
}
