// Package shell executes configured command strings through a shell with a
// hard timeout and captured output. Checks, recovery actions, and restart
// hooks all go through the same Runner so they can be faked in tests.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds command execution when the caller does not
// provide its own deadline.
const DefaultTimeout = 60 * time.Second

// Result captures the outcome of a single command execution.
type Result struct {
	// Command is the command string as executed
	Command string
	// Stdout is the captured standard output, trimmed
	Stdout string
	// Stderr is the captured standard error, trimmed
	Stderr string
	// ExitCode is the process exit code; -1 when the process did not run
	// or was killed before exiting
	ExitCode int
	// Duration is how long the command ran
	Duration time.Duration
	// TimedOut indicates the command was killed by its deadline
	TimedOut bool
	// Err is set when the command could not be started at all
	Err error
}

// Success reports whether the command ran to completion with exit code zero.
func (r Result) Success() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// Output returns stderr if present, falling back to stdout. Restart and
// recovery events use it as the one-line diagnostic for operators.
func (r Result) Output() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner executes a command string and reports its outcome.
type Runner interface {
	// Run executes command through a shell, honoring the context deadline.
	// A deadline expiry is reported via Result.TimedOut, not as an error.
	Run(ctx context.Context, command string) Result
}

// ShellRunner runs commands via /bin/sh -c.
type ShellRunner struct{}

// NewRunner returns a Runner backed by the system shell.
func NewRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run executes the command under /bin/sh with output capture.
func (s *ShellRunner) Run(ctx context.Context, command string) Result {
	res := Result{Command: command, ExitCode: -1}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = strings.TrimSpace(stdout.String())
	res.Stderr = strings.TrimSpace(stderr.String())

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		return res
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res
		}
		// Command could not be started (shell missing, fork failure).
		res.Err = err
		return res
	}

	res.ExitCode = 0
	return res
}

// RunWithTimeout is a convenience wrapper that applies timeout on top of ctx.
// A zero or negative timeout falls back to DefaultTimeout.
func RunWithTimeout(ctx context.Context, r Runner, command string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.Run(runCtx, command)
}
