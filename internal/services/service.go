// Package services queries and controls system services through the
// `service` wrapper, which works under both SysV/upstart and systemd.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ralt/vvvprov/internal/runner"
	"github.com/sirupsen/logrus"
)

// Status is the observed state of a service
type Status int

const (
	NotInstalled Status = iota
	Stopped
	Running
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case NotInstalled:
		return "not installed"
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Actions accepted by Apply
const (
	ActionStart   = "start"
	ActionRestart = "restart"
	ActionReload  = "reload"
)

// ErrNotInstalled is returned by Ensure when the service does not exist
var ErrNotInstalled = errors.New("service not installed")

var notInstalledMarkers = []string{
	"unrecognized service",
	"could not be found",
	"not-found",
	"no such file or directory",
}

var stoppedMarkers = []string{
	"stop/waiting",
	"inactive",
	"is not running",
	"not running",
	"(dead)",
	"stopped",
}

// ClassifyStatus maps the output and exit code of `service <name> status`
// to a Status. Only the headline and the systemd Loaded:/Active: lines are
// read; systemd appends journal lines that may mention any state. LSB
// reserves exit code 4 for unknown services and 3 for services that are
// not running.
func ClassifyStatus(output string, exitCode int) Status {
	out := strings.ToLower(strings.Join(statusLines(output), "\n"))

	for _, marker := range notInstalledMarkers {
		if strings.Contains(out, marker) {
			return NotInstalled
		}
	}
	if exitCode == 4 {
		return NotInstalled
	}

	for _, marker := range stoppedMarkers {
		if strings.Contains(out, marker) {
			return Stopped
		}
	}
	if exitCode != 0 {
		return Stopped
	}

	return Running
}

// statusLines returns the first non-empty line and every Loaded:/Active:
// line of a status report
func statusLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len(lines) == 0 || strings.HasPrefix(trimmed, "Loaded:") || strings.HasPrefix(trimmed, "Active:") {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// Manager controls services on the host
type Manager struct {
	Runner runner.Runner
}

// NewManager creates a service manager
func NewManager(r runner.Runner) *Manager {
	return &Manager{Runner: r}
}

// Status queries the service manager. A status command that exits non-zero
// is expected for stopped and unknown services and is not an error.
func (m *Manager) Status(ctx context.Context, name string) (Status, error) {
	res, err := m.Runner.Run(ctx, "service", []string{name, "status"})
	code := runner.ExitCode(err)
	if code < 0 {
		return NotInstalled, fmt.Errorf("failed to query %s: %w", name, err)
	}

	status := ClassifyStatus(res.Combined(), code)
	logrus.Debugf("Service %s is %s", name, status)
	return status, nil
}

// Apply runs a service action (start, restart, reload)
func (m *Manager) Apply(ctx context.Context, name, action string) error {
	switch action {
	case "":
		action = ActionRestart
	case ActionStart, ActionRestart, ActionReload:
	default:
		return fmt.Errorf("unsupported service action %q", action)
	}

	logrus.Infof("Running service %s %s", name, action)
	_, err := m.Runner.Run(ctx, "service", []string{name, action})
	return err
}

// Ensure leaves the service running with freshly loaded configuration:
// a stopped service is started, a running one restarted. Restarting a
// stopped service is never attempted. It returns the action taken.
func (m *Manager) Ensure(ctx context.Context, name string) (string, error) {
	status, err := m.Status(ctx, name)
	if err != nil {
		return "", err
	}

	action, err := NextAction(status)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return action, m.Apply(ctx, name, action)
}

// NextAction picks the action that brings a service with the given status
// up with fresh configuration
func NextAction(status Status) (string, error) {
	switch status {
	case Stopped:
		return ActionStart, nil
	case Running:
		return ActionRestart, nil
	default:
		return "", ErrNotInstalled
	}
}
