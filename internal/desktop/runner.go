package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner runs one external program and returns its stdout.
type Runner interface {
	Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// CommandError describes a failed external program.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Timeout  time.Duration // non-zero when the call hit its deadline
	Err      error
}

func (e *CommandError) Error() string {
	switch {
	case e.Timeout > 0:
		return fmt.Sprintf("%s: timed out after %s", e.Command, e.Timeout)
	case e.Stderr != "":
		return fmt.Sprintf("%s: %s", e.Command, e.Stderr)
	default:
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
}

func (e *CommandError) Unwrap() error { return e.Err }

// pipeWaitDelay bounds how long Run keeps reading output after the program
// exits or is killed. Background children that inherit stdout would
// otherwise hold Run open until they exit.
const pipeWaitDelay = time.Second

// ExecRunner runs programs with os/exec. Env entries are appended to the
// current process environment. On cancellation the program's whole process
// group is killed.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	setProcGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd.Process.Pid) }
	cmd.WaitDelay = pipeWaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		// Exited cleanly but left a background child holding the pipes.
		err = nil
	}
	if err == nil {
		return stdout.Bytes(), nil
	}

	cerr := &CommandError{
		Command:  commandLine(name, args),
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cerr.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		cerr.Timeout = time.Since(start).Round(time.Second)
		if cerr.Timeout <= 0 {
			cerr.Timeout = time.Second
		}
	}
	return stdout.Bytes(), cerr
}

func commandLine(name string, args []string) string {
	const maxArg = 60
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if len(a) > maxArg {
			a = a[:maxArg] + "..."
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
