package procexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const (
	// DefaultWaitDelay bounds how long Run waits for output pipes after the child is killed.
	DefaultWaitDelay = 2 * time.Second

	maxCapture = 8 << 10
)

// Command describes one child process invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// Result is the outcome of a child process that was started.
type Result struct {
	ExitCode int
	Duration time.Duration
	TimedOut bool
	Stdout   string
	Stderr   string
}

func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner starts a child process and waits for it to finish or time out.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

// ExecRunner runs commands as real OS processes.
//
// The child is placed in its own process group where the platform supports it, and the
// whole group is killed when the timeout expires or ctx is cancelled. Run always waits for
// the child, so no process outlives the call.
type ExecRunner struct {
	WaitDelay time.Duration
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: DefaultWaitDelay}
}

// Run returns an error only when the process could not be started or ctx was cancelled.
// A non-zero exit or a timeout is reported through Result.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Name == "" {
		return Result{ExitCode: -1}, errors.New("empty command")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = r.WaitDelay

	stdout := newTailBuffer(maxCapture)
	stderr := newTailBuffer(maxCapture)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	configureProcess(cmd)

	start := time.Now()
	err := cmd.Run()

	result := Result{
		Duration: time.Since(start),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if err == nil {
		return result, nil
	}

	result.ExitCode = -1

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			result.TimedOut = true
			return result, nil
		}
		return result, fmt.Errorf("run %s: %w", c.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return result, fmt.Errorf("run %s: %w", c.Name, err)
}
