// Package toolexec runs the external scanning binaries and reports how each
// invocation ended: completed, exited nonzero, missing from PATH or cut off
// by a deadline.
package toolexec

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
	"strings"
	"time"

	"github.com/anstrom/portstrom/internal/errors"
)

// maxStderrTail caps how much of a tool's stderr is kept for diagnostics.
const maxStderrTail = 2048

// Command is a single external tool invocation.
type Command struct {
	// Name is the binary name or path.
	Name string
	// Args are passed verbatim, without shell interpretation.
	Args []string
	// Timeout bounds the invocation. Zero means no limit.
	Timeout time.Duration
}

// String renders the command line for logging.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds the captured output of an invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Lines splits stdout into lines without trailing carriage returns.
func (r *Result) Lines() []string {
	if r == nil || r.Stdout == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(r.Stdout, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

// StderrTail returns the last part of stderr, trimmed.
func (r *Result) StderrTail() string {
	if r == nil {
		return ""
	}
	s := strings.TrimSpace(r.Stderr)
	if len(s) > maxStderrTail {
		s = s[len(s)-maxStderrTail:]
	}
	return s
}

//go:generate mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks

// Runner executes external commands. Implementations must return a non-nil
// Result whenever the process was started, even when err is non-nil, so
// callers can inspect partial output.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes cmd and blocks until it exits. Errors are *errors.ToolError
// with code TOOL_NOT_FOUND, TOOL_FAILED, TIMEOUT or CANCELED.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if _, err := exec.LookPath(cmd.Name); err != nil {
		return nil, errors.ErrToolNotFound(cmd.Name, err)
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	runErr := c.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		result.ExitCode = c.ProcessState.ExitCode()
	}

	if runErr == nil {
		return result, nil
	}

	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return result, errors.NewToolError(errors.CodeTimeout, cmd.Name, runErr)
	case stderrors.Is(ctx.Err(), context.Canceled):
		return result, errors.NewToolError(errors.CodeCanceled, cmd.Name, runErr)
	}

	var exitErr *exec.ExitError
	if stderrors.As(runErr, &exitErr) {
		return result, errors.ErrToolFailed(cmd.Name, exitErr.ExitCode(), result.StderrTail())
	}
	if stderrors.Is(runErr, exec.ErrNotFound) {
		return nil, errors.ErrToolNotFound(cmd.Name, runErr)
	}
	return result, errors.NewToolError(errors.CodeToolFailed, cmd.Name, runErr)
}
