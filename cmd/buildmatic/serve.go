package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"buildmatic/internal/orchestrator"
	"buildmatic/internal/server"

	"github.com/spf13/cobra"
)

func (c *cli) newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (SSE, sync and websocket chat)",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.session()
			if err != nil {
				return err
			}
			defer res.Close()

			addr := c.cfg.Server.Addr
			if cmd.Flags().Changed("port") {
				addr = ":" + strconv.Itoa(port)
			}
			if strings.TrimSpace(addr) == "" {
				addr = ":3000"
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(apiRunner{res.Session}, server.Config{
				JWTSecret: c.cfg.Server.JWTSecret,
				Logger:    c.logger,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "buildmatic API listening on %s\n", addr)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to listen on (overrides server.addr)")
	return cmd
}

// apiRunner gives every API conversation a forked session with its own
// todo list. The REPL and TUI keep the long-lived session instead.
type apiRunner struct {
	*orchestrator.Session
}

func (r apiRunner) Conversation() server.Conversation { return r.Fork() }
