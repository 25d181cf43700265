package runner

import (
	"context"
	"strings"
	"sync"
)

// Fake is an in-memory Runner for tests. It records every command and
// answers from Handler, or with an empty successful Result when Handler
// is nil.
type Fake struct {
	// Handler, when set, decides the outcome of each command.
	Handler func(cmd Command) (Result, error)

	mu    sync.Mutex
	calls []Command
	fail  map[string]error
}

// NewFake creates an empty Fake runner.
func NewFake() *Fake {
	return &Fake{fail: make(map[string]error)}
}

// FailOn makes every command whose rendered command line starts with
// prefix return err. FailOn takes precedence over Handler.
func (f *Fake) FailOn(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[string]error)
	}
	f.fail[prefix] = err
}

// Run records cmd and returns the scripted outcome.
func (f *Fake) Run(_ context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	line := cmd.String()
	var failErr error
	for prefix, err := range f.fail {
		if strings.HasPrefix(line, prefix) {
			failErr = err
			break
		}
	}
	handler := f.Handler
	f.mu.Unlock()

	if failErr != nil {
		return Result{ExitCode: 1}, &Error{Command: cmd, ExitCode: 1, Err: failErr}
	}
	if handler != nil {
		return handler(cmd)
	}
	return Result{}, nil
}

// Calls returns a copy of every recorded command in execution order.
func (f *Fake) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CommandLines returns the rendered command line of every recorded call.
func (f *Fake) CommandLines() []string {
	calls := f.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.String())
	}
	return lines
}

// CallsTo returns the recorded commands whose executable is name.
func (f *Fake) CallsTo(name string) []Command {
	var out []Command
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
