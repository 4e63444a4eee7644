package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"buildmatic/internal/chat"
	"buildmatic/internal/security"
)

const (
	DefaultCommandTimeout = 60 * time.Second
	DefaultOutputLimit    = 50000

	// captureLimit bounds what is buffered from a single stream before the
	// rune cap is applied.
	captureLimit = 10 << 20
)

type BashTool struct {
	workspaceRoot string
	timeout       time.Duration
	outputLimit   int
}

func NewBashTool(workspaceRoot string, timeout time.Duration, outputLimit int) *BashTool {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if outputLimit <= 0 {
		outputLimit = DefaultOutputLimit
	}
	return &BashTool{
		workspaceRoot: workspaceRoot,
		timeout:       timeout,
		outputLimit:   outputLimit,
	}
}

func (t *BashTool) ID() ID { return Bash }

func (t *BashTool) Spec() chat.ToolSpec {
	return chat.ToolSpec{
		Name:        Bash.String(),
		Description: "Run a shell command. Use for: ls, find, grep, git, npm, python, etc.",
		InputSchema: chat.ObjectSchema(map[string]any{
			"command": map[string]any{"type": "string", "description": "The shell command to execute"},
		}, "command"),
	}
}

func (t *BashTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := decodeArgs("bash", args, &in); err != nil {
		return "", err
	}
	if err := requireField("command", in.Command); err != nil {
		return "", err
	}
	if err := security.CheckCommand(in.Command); err != nil {
		return "", err
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", in.Command)
	cmd.Dir = t.workspaceRoot
	cmd.WaitDelay = time.Second

	stdout := newCappedBuffer(captureLimit)
	stderr := newCappedBuffer(captureLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("command timed out (%dms)", t.timeout.Milliseconds())
	}

	output := strings.TrimSpace(stdout.String() + stderr.String())
	output, _ = truncateRunes(output, t.outputLimit)

	if runErr != nil {
		var ee *exec.ExitError
		if !errors.As(runErr, &ee) {
			return "", fmt.Errorf("run command: %w", runErr)
		}
		if output == "" {
			return "", fmt.Errorf("exit status %d", ee.ExitCode())
		}
		return "", fmt.Errorf("exit status %d\n%s", ee.ExitCode(), output)
	}
	if output == "" {
		return "(no output)", nil
	}
	return output, nil
}

type cappedBuffer struct {
	max       int
	buf       bytes.Buffer
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	if max <= 0 {
		max = 1 << 20
	}
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 || b.truncated {
		return len(p), nil
	}
	remain := b.max - b.buf.Len()
	if len(p) > remain {
		_, _ = b.buf.Write(p[:remain])
		b.truncated = true
		return len(p), nil
	}
	_, err := b.buf.Write(p)
	return len(p), err
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
