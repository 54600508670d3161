// Package toolexec runs external diagnostic tools with a bounded timeout.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	component = "toolexec"

	// DefaultMaxOutputBytes caps captured stdout; smartctl and netstat stay far below it.
	DefaultMaxOutputBytes = 4 << 20
	maxStderrBytes        = 2048
	waitDelay             = 2 * time.Second
)

var (
	execLookPath = exec.LookPath
	timeNow      = time.Now
)

// Command is a tool name plus its fixed argument set.
type Command struct {
	Name string
	Args []string
}

// NewCommand builds a Command.
func NewCommand(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the raw output of one successful invocation.
type Result struct {
	Stdout   []byte
	Duration time.Duration
}

// Invoker runs one command and reaps it. Failures are *errors.CollectError
// values of type tool_not_found, tool_timeout or tool_nonzero_exit; for a
// non-zero exit the captured stdout is also attached to the error.
type Invoker interface {
	Invoke(ctx context.Context, cmd Command, timeout time.Duration) (Result, error)
}

// ExecInvoker spawns real processes.
type ExecInvoker struct {
	MaxOutputBytes int
}

// NewExecInvoker returns an invoker with the default output cap.
func NewExecInvoker() *ExecInvoker {
	return &ExecInvoker{MaxOutputBytes: DefaultMaxOutputBytes}
}

// Invoke runs cmd, killing its whole process group if timeout elapses or ctx
// is cancelled.
func (e *ExecInvoker) Invoke(ctx context.Context, cmd Command, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		return Result{}, pdcerrors.NewCollectError(pdcerrors.ErrorTypeInternal, "invoke", cmd.Name,
			fmt.Errorf("%w: timeout must be positive, got %s", pdcerrors.ErrInvalidInput, timeout))
	}

	path, err := execLookPath(cmd.Name)
	if err != nil {
		return Result{}, NotFound(cmd, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxBytes := e.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}
	stdout := &cappedBuffer{max: maxBytes}
	stderr := &cappedBuffer{max: maxStderrBytes}

	proc := exec.CommandContext(runCtx, path, cmd.Args...)
	proc.Stdout = stdout
	proc.Stderr = stderr
	proc.WaitDelay = waitDelay
	configureProcessGroup(proc)

	start := timeNow()
	runErr := proc.Run()
	elapsed := timeNow().Sub(start)

	if stdout.truncated {
		log.Warn().
			Str("component", component).
			Str("action", "output_truncated").
			Str("command", cmd.String()).
			Int("max_bytes", maxBytes).
			Msg("Tool output exceeded capture limit and was truncated")
	}

	if runErr != nil {
		// Parent cancellation is not the tool's fault; report it as such.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, pdcerrors.NewCollectError(pdcerrors.ErrorTypeInternal, "invoke", cmd.Name, ctxErr)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Result{}, Timeout(cmd, timeout)
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			log.Debug().
				Str("component", component).
				Str("action", "invoke_nonzero_exit").
				Str("command", cmd.String()).
				Int("exit_code", exitErr.ExitCode()).
				Str("stderr", strings.TrimSpace(stderr.String())).
				Msg("Tool exited with non-zero status")
			return Result{}, NonZeroExit(cmd, exitErr.ExitCode(), stdout.Bytes(), stderrError(runErr, stderr))
		}
		return Result{}, NotFound(cmd, runErr)
	}

	log.Debug().
		Str("component", component).
		Str("action", "invoke_complete").
		Str("command", cmd.String()).
		Dur("duration", elapsed).
		Int("bytes", stdout.Len()).
		Msg("Tool invocation completed")

	return Result{Stdout: stdout.Bytes(), Duration: elapsed}, nil
}

func stderrError(runErr error, stderr *cappedBuffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return runErr
	}
	return fmt.Errorf("%w: %s", runErr, msg)
}

// NotFound builds the error for a tool that is not installed or not runnable.
func NotFound(cmd Command, err error) error {
	return pdcerrors.NewCollectError(pdcerrors.ErrorTypeToolNotFound, "invoke", cmd.Name, err)
}

// Timeout builds the error for a tool that was killed after timeout.
func Timeout(cmd Command, timeout time.Duration) error {
	return pdcerrors.NewCollectError(pdcerrors.ErrorTypeToolTimeout, "invoke", cmd.Name,
		fmt.Errorf("no exit within %s", timeout))
}

// NonZeroExit builds the error for a tool that ran but reported failure.
// output is whatever the tool printed before exiting.
func NonZeroExit(cmd Command, code int, output []byte, err error) error {
	if err == nil {
		err = fmt.Errorf("exit status %d", code)
	}
	return pdcerrors.NewCollectError(pdcerrors.ErrorTypeToolNonZeroExit, "invoke", cmd.Name, err).
		WithExit(code, output)
}

// cappedBuffer keeps the first max bytes and drops the rest so a chatty
// tool cannot block on a full pipe.
type cappedBuffer struct {
	bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - b.Len()
	if remaining <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > remaining {
		b.Buffer.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.Buffer.Write(p)
}
