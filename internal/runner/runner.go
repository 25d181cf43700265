// Package runner is the process-execution layer shared by every external
// tool wrapper (git, dotnet, gh, docker).
//
// Collaborators never call os/exec directly. They describe the invocation
// as a Command and hand it to a Runner, which lets tests substitute Fake
// and lets the CLI log every command line in one place.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Command describes a single external process invocation.
type Command struct {
	// Name is the executable looked up on PATH (e.g., "git").
	Name string

	// Args are passed to the executable verbatim; no shell is involved.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string
}

// String renders the command line the way a user would type it.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes commands. Implementations must block until the process
// exits and return a non-nil error for a non-zero exit status.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Exec runs commands as real child processes.
type Exec struct {
	logger *slog.Logger
}

// NewExec creates an Exec runner. A nil logger falls back to slog.Default().
func NewExec(logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{logger: logger}
}

// Run executes cmd and waits for it to finish.
//
// Stdout and stderr are captured separately. On a non-zero exit the
// returned error includes the trimmed stderr so callers can surface the
// tool's own diagnostic without re-reading Result.
func (e *Exec) Run(ctx context.Context, cmd Command) (Result, error) {
	e.logger.Info("running command", slog.String("command", cmd.String()))
	if cmd.Dir != "" {
		e.logger.Debug("working directory", slog.String("dir", cmd.Dir))
	}

	// #nosec G204 -- commands are assembled internally from fixed tool names
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	if res.Stdout != "" {
		e.logger.Debug("command output", slog.String("stdout", strings.TrimSpace(res.Stdout)))
	}

	if err != nil {
		stderrStr := strings.TrimSpace(res.Stderr)
		if stderrStr != "" {
			e.logger.Debug("command error output", slog.String("stderr", stderrStr))
		}
		return res, &Error{Command: cmd, ExitCode: res.ExitCode, Stderr: stderrStr, Err: err}
	}
	return res, nil
}

// Error reports a command that could not be started or exited non-zero.
type Error struct {
	Command  Command
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed", e.Command)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the executable is not on PATH.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
