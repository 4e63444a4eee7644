package repl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// turnController watches the terminal while a turn runs: Esc cancels the
// turn, Ctrl+C cancels it and asks the loop to exit. The terminal stays in
// raw mode until Close.
type turnController struct {
	stdinFd int
	cancel  context.CancelFunc
	oldTerm *term.State

	stopCh chan struct{}
	doneCh chan struct{}

	cancelledByESC atomic.Bool
	interrupted    atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func newTurnController(stdinFd int, cancel context.CancelFunc) (*turnController, error) {
	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return nil, fmt.Errorf("enable runtime raw mode: %w", err)
	}
	c := &turnController{
		stdinFd: stdinFd,
		cancel:  cancel,
		oldTerm: oldState,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go c.loop()
	return c, nil
}

func (c *turnController) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
		if c.oldTerm != nil {
			c.closeErr = term.Restore(c.stdinFd, c.oldTerm)
		}
	})
	return c.closeErr
}

func (c *turnController) CancelledByESC() bool {
	if c == nil {
		return false
	}
	return c.cancelledByESC.Load()
}

func (c *turnController) Interrupted() bool {
	if c == nil {
		return false
	}
	return c.interrupted.Load()
}

func (c *turnController) loop() {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		b, ok := c.readByteWithTimeout(80 * time.Millisecond)
		if !ok {
			continue
		}
		c.handleKey(b)
	}
}

func (c *turnController) readByteWithTimeout(timeout time.Duration) (byte, bool) {
	ms := int(timeout / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(c.stdinFd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil || n <= 0 {
		return 0, false
	}
	if fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
		return 0, false
	}
	var one [1]byte
	nr, err := unix.Read(c.stdinFd, one[:])
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return 0, false
		}
		return 0, false
	}
	return one[0], nr == 1
}

func (c *turnController) handleKey(b byte) {
	switch b {
	case 0x03: // Ctrl+C
		c.interrupted.Store(true)
		if c.cancel != nil {
			c.cancel()
		}
	case 0x1b: // Esc
		c.cancelledByESC.Store(true)
		if c.cancel != nil {
			c.cancel()
		}
	}
}

// crlfWriter restores "\r\n" line endings for output printed while the
// terminal is in raw mode.
type crlfWriter struct {
	mu     sync.Mutex
	w      io.Writer
	lastCR bool
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	buf.Grow(len(p) + bytes.Count(p, []byte{'\n'}))
	prevCR := c.lastCR
	for _, b := range p {
		if b == '\n' && !prevCR {
			buf.WriteByte('\r')
		}
		buf.WriteByte(b)
		prevCR = b == '\r'
	}
	c.lastCR = prevCR
	if _, err := c.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}
