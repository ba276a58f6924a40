// Package pkgmgr reconciles the desired package list against the host
// package database and installs the difference in one batch.
package pkgmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/ralt/vvvprov/internal/pkgfile"
	"github.com/ralt/vvvprov/internal/runner"
)

// Backend drives the host package manager
type Backend interface {
	// Name identifies the backend in logs
	Name() string

	// InstalledVersion returns the installed version of name, or false
	// when the package is not installed
	InstalledVersion(ctx context.Context, name string) (string, bool, error)

	// Refresh updates the package index
	Refresh(ctx context.Context) error

	// Install installs packages by name in a single call
	Install(ctx context.Context, names []string) error

	// InstallFiles installs local package files in a single call
	InstallFiles(ctx context.Context, paths []string) error

	// Clean removes downloaded package archives
	Clean(ctx context.Context) error

	// KeyringDir is where trusted repository keys are read from
	KeyringDir() string
}

// NewBackend returns the backend for a package manager name
func NewBackend(name string, r runner.Runner) (Backend, error) {
	switch strings.ToLower(name) {
	case "", "apt":
		return &Apt{Runner: r}, nil
	case "dnf":
		return &Dnf{Runner: r}, nil
	default:
		return nil, fmt.Errorf("unsupported package manager %q", name)
	}
}

// Apt drives dpkg/apt-get
type Apt struct {
	Runner runner.Runner
}

// Name implements Backend
func (a *Apt) Name() string { return "apt" }

// KeyringDir implements Backend
func (a *Apt) KeyringDir() string { return "/etc/apt/trusted.gpg.d" }

// InstalledVersion implements Backend by reading `dpkg -s`
func (a *Apt) InstalledVersion(ctx context.Context, name string) (string, bool, error) {
	res, err := a.Runner.Run(ctx, "dpkg", []string{"-s", name})
	if err != nil {
		if runner.ExitCode(err) > 0 {
			// dpkg exits 1 for unknown packages
			return "", false, nil
		}
		return "", false, err
	}

	pkg, err := pkgfile.ParseControl([]byte(res.Stdout))
	if err != nil {
		return "", false, fmt.Errorf("failed to parse dpkg status for %s: %w", name, err)
	}

	// Removed packages keep a status entry while their config files remain
	if status, ok := pkg.Metadata["Status"].(string); ok && !strings.HasSuffix(status, " installed") {
		return "", false, nil
	}
	if pkg.Version == "" {
		return "", false, nil
	}
	return pkg.Version, true, nil
}

// Refresh implements Backend
func (a *Apt) Refresh(ctx context.Context) error {
	return a.aptGet(ctx, "update", "-y")
}

// Install implements Backend
func (a *Apt) Install(ctx context.Context, names []string) error {
	args := append([]string{
		"install", "-y", "--fix-missing",
		"-o", "Dpkg::Options::=--force-confdef",
		"-o", "Dpkg::Options::=--force-confold",
	}, names...)
	return a.aptGet(ctx, args...)
}

// InstallFiles implements Backend. apt-get only treats an argument as a
// file when it contains a path separator.
func (a *Apt) InstallFiles(ctx context.Context, paths []string) error {
	args := []string{"install", "-y"}
	for _, p := range paths {
		if !strings.Contains(p, "/") {
			p = "./" + p
		}
		args = append(args, p)
	}
	return a.aptGet(ctx, args...)
}

// Clean implements Backend
func (a *Apt) Clean(ctx context.Context) error {
	return a.aptGet(ctx, "clean")
}

func (a *Apt) aptGet(ctx context.Context, args ...string) error {
	_, err := a.Runner.Run(ctx, "apt-get", args,
		runner.WithEnv("DEBIAN_FRONTEND", "noninteractive"),
		runner.WithStreaming())
	return err
}

// Dnf drives rpm/dnf
type Dnf struct {
	Runner runner.Runner
}

// Name implements Backend
func (d *Dnf) Name() string { return "dnf" }

// KeyringDir implements Backend
func (d *Dnf) KeyringDir() string { return "/etc/pki/rpm-gpg" }

// InstalledVersion implements Backend by querying the rpm database
func (d *Dnf) InstalledVersion(ctx context.Context, name string) (string, bool, error) {
	res, err := d.Runner.Run(ctx, "rpm", []string{"-q", "--qf", "%{VERSION}-%{RELEASE}", name})
	if err != nil {
		if runner.ExitCode(err) > 0 {
			return "", false, nil
		}
		return "", false, err
	}
	version := strings.TrimSpace(res.Stdout)
	return version, version != "", nil
}

// Refresh implements Backend
func (d *Dnf) Refresh(ctx context.Context) error {
	return d.dnf(ctx, "makecache", "-y")
}

// Install implements Backend
func (d *Dnf) Install(ctx context.Context, names []string) error {
	return d.dnf(ctx, append([]string{"install", "-y"}, names...)...)
}

// InstallFiles implements Backend
func (d *Dnf) InstallFiles(ctx context.Context, paths []string) error {
	return d.dnf(ctx, append([]string{"install", "-y"}, paths...)...)
}

// Clean implements Backend
func (d *Dnf) Clean(ctx context.Context) error {
	return d.dnf(ctx, "clean", "all")
}

func (d *Dnf) dnf(ctx context.Context, args ...string) error {
	_, err := d.Runner.Run(ctx, "dnf", args, runner.WithStreaming())
	return err
}
