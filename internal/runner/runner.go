// Package runner executes external programs. Every package manager, service
// manager, database client and hook invocation goes through a Runner so the
// provisioning steps can be exercised against a scripted fake.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Result holds the captured output of a finished command
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout followed by stderr
func (r *Result) Combined() string {
	if r == nil {
		return ""
	}
	return r.Stdout + r.Stderr
}

// Runner executes a program and waits for it to finish
type Runner interface {
	Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error)
}

// Options configures a single execution
type Options struct {
	WorkingDir string
	Env        map[string]string
	Stdin      io.Reader

	// Stream copies the command output to the console while capturing it
	Stream bool
}

// Option is a function that modifies Options
type Option func(*Options)

// WithWorkingDir runs the command inside dir
func WithWorkingDir(dir string) Option {
	return func(o *Options) { o.WorkingDir = dir }
}

// WithEnv appends a variable to the inherited environment
func WithEnv(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithStdin feeds r to the command's standard input
func WithStdin(r io.Reader) Option {
	return func(o *Options) { o.Stdin = r }
}

// WithStreaming mirrors the command output to stdout/stderr
func WithStreaming() Option {
	return func(o *Options) { o.Stream = true }
}

// ExitError is returned when a command ran but exited non-zero
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, out)
}

// ExitCode extracts the exit code from an error returned by a Runner.
// It returns -1 when the command never ran.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}
	return -1
}

// Local runs commands on the local host
type Local struct{}

// NewLocal creates a local runner
func NewLocal() *Local {
	return &Local{}
}

// Run implements Runner
func (l *Local) Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	cmd := exec.CommandContext(ctx, program, args...)
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}
	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range options.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if options.Stdin != nil {
		cmd.Stdin = options.Stdin
	}

	var stdout, stderr bytes.Buffer
	if options.Stream {
		cmd.Stdout = io.MultiWriter(&stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	line := CommandLine(program, args)
	logrus.Debugf("Running: %s", line)

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, &ExitError{Command: line, ExitCode: result.ExitCode, Output: result.Combined()}
		}
		result.ExitCode = -1
		return result, fmt.Errorf("failed to run %s: %w", line, err)
	}

	return result, nil
}

// CommandLine renders a program and its arguments for logs
func CommandLine(program string, args []string) string {
	if len(args) == 0 {
		return program
	}
	return program + " " + strings.Join(args, " ")
}

// Split parses a configured command string into a program and arguments
// using shell quoting rules.
func Split(cmdline string) (string, []string, error) {
	parts, err := shlex.Split(cmdline)
	if err != nil {
		return "", nil, fmt.Errorf("invalid command %q: %w", cmdline, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty command")
	}
	return parts[0], parts[1:], nil
}
