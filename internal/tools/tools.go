// Package tools installs the developer tools that live outside the package
// manager: standalone binaries, unpacked web applications and git
// checkouts. Every tool needs the network; offline runs skip them all.
package tools

import (
	"context"
	"time"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/network"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/sirupsen/logrus"
)

// Installer installs the configured tools
type Installer struct {
	Runner     runner.Runner
	Downloader *network.Downloader
	Config     models.ToolsConfig
}

// NewInstaller creates an installer
func NewInstaller(r runner.Runner, d *network.Downloader, cfg models.ToolsConfig) *Installer {
	return &Installer{Runner: r, Downloader: d, Config: cfg}
}

// InstallAll installs every configured tool in order: binaries, archives,
// then checkouts. A failing tool does not stop the others.
func (i *Installer) InstallAll(ctx context.Context, online bool) []models.StepResult {
	var results []models.StepResult

	run := func(step string, fn func() (string, error)) {
		if !online {
			logrus.Warnf("Skipping %s: network unavailable", step)
			results = append(results, models.SkippedNoNetwork(step))
			return
		}
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		detail, err := fn()
		if err != nil {
			logrus.Errorf("Failed to install %s: %v", step, err)
			r := models.ToolError(step, models.NewError(models.ErrTool, step, err))
			r.Duration = time.Since(start)
			results = append(results, r)
			return
		}
		logrus.Infof("%s: %s", step, detail)
		r := models.Success(step, detail)
		r.Duration = time.Since(start)
		results = append(results, r)
	}

	for _, b := range i.Config.Binaries {
		b := b
		run("tool "+b.Name, func() (string, error) { return i.InstallBinary(ctx, b) })
	}
	for _, a := range i.Config.Archives {
		a := a
		run("tool "+a.Name, func() (string, error) { return i.InstallArchive(ctx, a) })
	}
	for _, c := range i.Config.Checkouts {
		c := c
		run("tool "+c.Name, func() (string, error) { return Checkout(ctx, c) })
	}

	return results
}
