package runner

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Call records one invocation seen by Fake
type Call struct {
	Program string
	Args    []string
	Dir     string
	Stdin   string
}

// String renders the call the same way CommandLine does
func (c Call) String() string {
	return CommandLine(c.Program, c.Args)
}

type response struct {
	prefix string
	result Result
	err    error
}

// Fake is a scripted Runner for tests. Responses are matched against the
// rendered command line by prefix; the most recently registered match wins.
// Unmatched commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	Calls     []Call
	responses []response

	// Hook, when set, runs for every call before responses are consulted
	Hook func(Call)
}

// NewFake creates an empty fake runner
func NewFake() *Fake {
	return &Fake{}
}

// On registers output and exit code for commands starting with prefix
func (f *Fake) On(prefix, stdout string, exitCode int) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{
		prefix: prefix,
		result: Result{Stdout: stdout, ExitCode: exitCode},
	})
	return f
}

// OnError registers an error that is returned before the command would run
func (f *Fake) OnError(prefix string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{
		prefix: prefix,
		result: Result{ExitCode: -1},
		err:    err,
	})
	return f
}

// Run implements Runner
func (f *Fake) Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	call := Call{Program: program, Args: append([]string(nil), args...), Dir: options.WorkingDir}
	if options.Stdin != nil {
		data, _ := io.ReadAll(options.Stdin)
		call.Stdin = string(data)
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	hook := f.Hook
	var matched *response
	line := call.String()
	for i := len(f.responses) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.responses[i].prefix) {
			matched = &f.responses[i]
			break
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err := ctx.Err(); err != nil {
		return &Result{ExitCode: -1}, err
	}
	if matched == nil {
		return &Result{}, nil
	}

	result := matched.result
	if matched.err != nil {
		return &result, matched.err
	}
	if result.ExitCode != 0 {
		return &result, &ExitError{Command: line, ExitCode: result.ExitCode, Output: result.Stdout}
	}
	return &result, nil
}

// Commands returns the rendered command lines in call order
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, c.String())
	}
	return out
}
