package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"buildmatic/internal/sessionlog"
	"buildmatic/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *cli) newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect recorded session logs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import [dir]",
			Short: "Import session-*.json logs into the SQLite store",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := c.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				dir := c.logDir()
				if len(args) == 1 {
					dir = args[0]
				}
				n, err := storage.ImportSessionLogs(dir, store, c.logger)
				if err != nil {
					return err
				}
				c.logger.Info("session logs imported", zap.String("dir", dir), zap.Int("sessions", n))
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d session(s) from %s\n", n, dir)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List sessions recorded in the SQLite store",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := c.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				sessions, err := store.ListSessions()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions recorded.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tMODEL\tCALLS\tINPUT\tOUTPUT\tCACHE READ")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
						s.ID, s.CreatedAt, s.Model, s.TotalCalls,
						s.TotalInputTokens, s.TotalOutputTokens, s.TotalCacheReadTokens)
				}
				return tw.Flush()
			},
		},
	)
	return cmd
}

func (c *cli) openStore() (*storage.SQLiteStore, error) {
	path := strings.TrimSpace(c.cfg.Storage.DBPath)
	if path == "" {
		return nil, fmt.Errorf("storage.db_path is not set")
	}
	return storage.NewSQLiteStore(path)
}

func (c *cli) logDir() string {
	if dir := strings.TrimSpace(c.cfg.Storage.LogDir); dir != "" {
		return dir
	}
	root := strings.TrimSpace(c.workdir)
	if root == "" {
		root = c.cfg.Runtime.WorkspaceRoot
	}
	return filepath.Join(root, sessionlog.DirName)
}
