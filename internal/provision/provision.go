// Package provision runs the provisioning steps in order and reports their
// outcome.
package provision

import (
	"context"
	"net/http"
	"time"

	"github.com/ralt/vvvprov/internal/configsync"
	"github.com/ralt/vvvprov/internal/database"
	"github.com/ralt/vvvprov/internal/keys"
	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/network"
	"github.com/ralt/vvvprov/internal/pkgmgr"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/ralt/vvvprov/internal/services"
	"github.com/ralt/vvvprov/internal/sites"
	"github.com/ralt/vvvprov/internal/tools"
	"github.com/sirupsen/logrus"
)

// Provisioner wires the manifest to the components of every step
type Provisioner struct {
	Manifest   *models.Manifest
	Runner     runner.Runner
	Client     *http.Client
	Downloader *network.Downloader
	Services   *services.Manager
	Backend    pkgmgr.Backend
}

// New creates a provisioner for m. Commands go through r and HTTP requests
// through client (http.DefaultClient when nil).
func New(m *models.Manifest, r runner.Runner, client *http.Client) (*Provisioner, error) {
	backend, err := pkgmgr.NewBackend(m.PackageManager, r)
	if err != nil {
		return nil, models.NewError(models.ErrInvalidConfig, "package_manager", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Provisioner{
		Manifest:   m,
		Runner:     r,
		Client:     client,
		Downloader: network.NewDownloader(client),
		Services:   services.NewManager(r),
		Backend:    backend,
	}, nil
}

// Online probes connectivity unless the manifest forces offline mode
func (p *Provisioner) Online(ctx context.Context) bool {
	if p.Manifest.Offline {
		logrus.Info("Offline mode, skipping connectivity probe")
		return false
	}
	online := network.Probe(ctx, p.Client, p.Manifest.Probe)
	if online {
		logrus.Infof("Network connection to %s is up", p.Manifest.Probe.URL)
	} else {
		logrus.Warnf("No network connection to %s, network steps will be skipped", p.Manifest.Probe.URL)
	}
	return online
}

// Reconciler builds the package reconciler for the manifest
func (p *Provisioner) Reconciler() *pkgmgr.Reconciler {
	keyringDir := p.Manifest.KeyringDir
	if keyringDir == "" {
		keyringDir = p.Backend.KeyringDir()
	}
	return pkgmgr.NewReconciler(p.Backend, keys.NewRegistrar(p.Downloader, keyringDir), p.Manifest)
}

// Packages runs package reconciliation
func (p *Provisioner) Packages(ctx context.Context, online bool) ([]models.StepResult, error) {
	return p.Reconciler().Reconcile(ctx, online)
}

// ServiceConfig syncs configuration templates, restarting their services,
// and makes sure the webserver certificate exists
func (p *Provisioner) ServiceConfig(ctx context.Context) []models.StepResult {
	results := configsync.NewSyncer(p.Services).SyncAll(ctx, p.Manifest.Services)
	return append(results, configsync.EnsureCertificate(ctx, p.Runner, p.Manifest.TLS)...)
}

// Database starts the database service and seeds it
func (p *Provisioner) Database(ctx context.Context) []models.StepResult {
	if p.Manifest.Database.Service == "" {
		return nil
	}
	return database.NewBootstrapper(p.Services, p.Runner, p.Manifest.Database).Bootstrap(ctx)
}

// Tools installs the network-installed developer tools
func (p *Provisioner) Tools(ctx context.Context, online bool) []models.StepResult {
	return tools.NewInstaller(p.Runner, p.Downloader, p.Manifest.Tools).InstallAll(ctx, online)
}

// Sites runs site discovery
func (p *Provisioner) Sites(ctx context.Context) ([]models.StepResult, error) {
	m := p.Manifest
	d := sites.NewDiscoverer(p.Runner, p.Services, sites.Options{
		Root:            m.ProjectsRoot,
		MaxDepth:        m.ScanDepth,
		VhostDir:        m.Sites.VhostDir,
		HostsFile:       m.Sites.HostsFile,
		HostAddr:        m.Sites.HostAddr,
		HookShell:       m.Sites.HookShell,
		Webserver:       m.Sites.Webserver,
		WebserverAction: m.Sites.WebserverAction,
	})
	return d.Run(ctx)
}

// Run executes every step in order. Tool failures are collected in the
// report; configuration and filesystem errors abort the run.
func (p *Provisioner) Run(ctx context.Context) (*Report, error) {
	report := &Report{Started: time.Now()}
	defer func() { report.Elapsed = time.Since(report.Started) }()

	report.Online = p.Online(ctx)

	steps := []struct {
		name string
		fn   func() ([]models.StepResult, error)
	}{
		{"packages", func() ([]models.StepResult, error) { return p.Packages(ctx, report.Online) }},
		{"services", func() ([]models.StepResult, error) { return p.ServiceConfig(ctx), nil }},
		{"database", func() ([]models.StepResult, error) { return p.Database(ctx), nil }},
		{"tools", func() ([]models.StepResult, error) { return p.Tools(ctx, report.Online), nil }},
		{"sites", func() ([]models.StepResult, error) { return p.Sites(ctx) }},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		logrus.Infof("==> %s", step.name)
		results, err := step.fn()
		report.Add(results...)
		if err != nil {
			logrus.Errorf("Step %s failed: %v", step.name, err)
			return report, err
		}
	}

	return report, nil
}
