package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"buildmatic/internal/bootstrap"
	"buildmatic/internal/chat"
	"buildmatic/internal/event"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const promptText = "> "

var (
	errInterrupt = errors.New("interrupt")

	bannerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Loop 持有 REPL 状态：会话、输入与对话历史
// Loop holds REPL state: the session, the input source and the conversation
// history carried from turn to turn.
type Loop struct {
	res     *bootstrap.BuildResult
	in      LineInput
	out     io.Writer
	logger  *zap.Logger
	history []chat.Message

	// tty enables raw-mode turn control on stdinFd.
	tty     bool
	stdinFd int
}

func NewLoop(res *bootstrap.BuildResult, in LineInput, out io.Writer, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{res: res, in: in, out: out, logger: logger}
}

// Run starts an interactive REPL on the process terminal.
func Run(ctx context.Context, res *bootstrap.BuildResult, historyPath string, logger *zap.Logger) error {
	in, err := NewLineInput(historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "line editor unavailable, fallback to basic input: %v\n", err)
	}
	defer in.Close()

	loop := NewLoop(res, in, os.Stdout, logger)
	fd := int(os.Stdin.Fd())
	loop.tty = term.IsTerminal(fd)
	loop.stdinFd = fd
	return loop.Run(ctx)
}

// History returns the conversation so far.
func (l *Loop) History() []chat.Message { return l.history }

func (l *Loop) Run(ctx context.Context) error {
	if l.res == nil || l.res.Session == nil {
		return fmt.Errorf("session is nil")
	}
	l.printBanner()

	for {
		line, err := l.in.ReadLine(promptText)
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				continue
			case errors.Is(err, io.EOF):
				fmt.Fprintln(l.out, "\nGoodbye!")
				return nil
			default:
				return fmt.Errorf("read input: %w", err)
			}
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "exit", "quit", "q":
			fmt.Fprintln(l.out, "Goodbye!")
			return nil
		}
		if strings.HasPrefix(input, "/") {
			if exit := l.handleCommand(input); exit {
				return nil
			}
			continue
		}

		if err := l.runTurn(ctx, input); err != nil {
			if errors.Is(err, errInterrupt) {
				fmt.Fprintln(l.out, "\nGoodbye!")
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// runTurn runs one prompt. Failures are reported by the printer through
// the terminal event; only loop-level problems are returned.
func (l *Loop) runTurn(ctx context.Context, input string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := l.out
	var ctrl *turnController
	if l.tty {
		c, err := newTurnController(l.stdinFd, cancel)
		if err != nil {
			l.logger.Warn("turn control unavailable", zap.Error(err))
		} else {
			ctrl = c
			out = &crlfWriter{w: l.out}
		}
	}

	history, err := l.res.Session.RunPrompt(turnCtx, l.history, input, event.NewPrinter(out))
	l.history = history
	if err != nil {
		l.logger.Debug("turn ended with error", zap.Error(err))
	}
	fmt.Fprintln(out)

	if ctrl != nil {
		if err := ctrl.Close(); err != nil {
			return err
		}
		if ctrl.Interrupted() {
			return errInterrupt
		}
		if ctrl.CancelledByESC() {
			fmt.Fprintln(l.out, dimStyle.Render("(cancelled)"))
		}
	}
	return nil
}

func (l *Loop) printBanner() {
	skills := "(none)"
	if len(l.res.SkillNames) > 0 {
		skills = strings.Join(l.res.SkillNames, ", ")
	}
	fmt.Fprintln(l.out, bannerStyle.Render("buildmatic"))
	fmt.Fprintf(l.out, "Working directory: %s\n", l.res.WorkspaceRoot)
	fmt.Fprintf(l.out, "Skills: %s\n", skills)
	fmt.Fprintf(l.out, "Model: %s\n", l.res.Model)
	fmt.Fprintln(l.out, dimStyle.Render("Type /help for commands, exit to quit."))
	fmt.Fprintln(l.out)
}
