package provision

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ralt/vvvprov/internal/config"
	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/ralt/vvvprov/internal/sites"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	base     string
	manifest *models.Manifest
	fake     *runner.Fake
	server   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(server.Close)

	base := t.TempDir()
	mkfile := func(rel, content string) {
		path := filepath.Join(base, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	mkfile("config/nginx.conf", "worker_processes 1;")
	mkfile("www/site1/vvv-nginx.conf", "root {vvv_path_to_folder};")
	mkfile("www/site1/vvv-hosts", "site1.test\n")
	mkfile("www/site1/vvv-init.sh", "#!/bin/bash\n")
	mkfile("hosts", "127.0.0.1 localhost\n")

	m := config.Default()
	m.ConfigDir = filepath.Join(base, "config")
	m.ProjectsRoot = filepath.Join(base, "www")
	m.Probe = models.ProbeConfig{URL: server.URL, Attempts: 1, Timeout: time.Second}
	m.Packages = []string{"zip", "nginx"}
	m.Services = []models.ServiceSpec{{
		Name:  "nginx",
		Files: []models.FileSync{{Source: filepath.Join(base, "config", "nginx.conf"), Dest: filepath.Join(base, "etc", "nginx.conf")}},
	}}
	m.TLS = models.TLSConfig{}
	m.Database.InitScript = filepath.Join(base, "database", "init.sql")
	m.Database.CustomScript = filepath.Join(base, "database", "init-custom.sql")
	m.Database.BackupsDir = filepath.Join(base, "database", "backups")
	m.Tools = models.ToolsConfig{}
	m.Sites.VhostDir = filepath.Join(base, "etc", "sites")
	m.Sites.HostsFile = filepath.Join(base, "hosts")
	require.NoError(t, config.Validate(m))

	fake := runner.NewFake()
	fake.On("dpkg -s zip", "Package: zip\nStatus: install ok installed\nVersion: 3.0-11\n", 0)
	fake.On("dpkg -s nginx", "dpkg-query: package 'nginx' is not installed", 1)
	fake.On("service mysql status", "mysql stop/waiting", 3)

	return &fixture{base: base, manifest: m, fake: fake, server: server}
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	p, err := New(f.manifest, f.fake, f.server.Client())
	require.NoError(t, err)
	p.Downloader.CacheDir = t.TempDir()

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	return report
}

func (f *fixture) commands(prefix string) []string {
	var out []string
	for _, c := range f.fake.Commands() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func TestRunOnline(t *testing.T) {
	f := newFixture(t)
	report := f.run(t)

	assert.True(t, report.Online)
	assert.Empty(t, report.Failures())

	installs := f.commands("apt-get install")
	require.Len(t, installs, 1)
	assert.True(t, strings.HasSuffix(installs[0], " nginx"), installs[0])
	assert.NotContains(t, installs[0], "zip")

	// Stopped database is started, never restarted
	assert.Equal(t, []string{"service mysql start"}, f.commands("service mysql start"))
	assert.Empty(t, f.commands("service mysql restart"))

	// Config synced, webserver restarted after sync and after vhosts
	data, err := os.ReadFile(filepath.Join(f.base, "etc", "nginx.conf"))
	require.NoError(t, err)
	assert.Equal(t, "worker_processes 1;", string(data))
	assert.Len(t, f.commands("service nginx restart"), 2)

	// Hook ran inside its project
	hook := filepath.Join(f.base, "www", "site1", "vvv-init.sh")
	require.Len(t, f.commands("bash "+hook), 1)

	vhost := filepath.Join(f.manifest.Sites.VhostDir, sites.VhostName(f.manifest.ProjectsRoot, filepath.Join(f.base, "www", "site1", "vvv-nginx.conf")))
	assert.FileExists(t, vhost)

	hosts, err := os.ReadFile(f.manifest.Sites.HostsFile)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n127.0.0.1 site1.test # vvv-auto\n", string(hosts))

	// Missing seed scripts and backups are skips, not failures
	assert.Equal(t, 2, report.Count(models.StatusSkippedMissingFile))
}

func TestRunOffline(t *testing.T) {
	f := newFixture(t)
	f.manifest.Offline = true
	f.manifest.Tools.Binaries = []models.BinaryTool{{Name: "wp-cli", URL: "http://invalid", Path: filepath.Join(f.base, "wp")}}

	report := f.run(t)

	assert.False(t, report.Online)
	assert.Empty(t, f.commands("apt-get"))
	assert.Equal(t, 2, report.Count(models.StatusSkippedNoNetwork))

	// Local steps still run
	assert.FileExists(t, filepath.Join(f.base, "etc", "nginx.conf"))
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	vhostDir := f.manifest.Sites.VhostDir
	firstVhosts, err := os.ReadDir(vhostDir)
	require.NoError(t, err)
	firstHosts, err := os.ReadFile(f.manifest.Sites.HostsFile)
	require.NoError(t, err)

	f.run(t)

	secondVhosts, err := os.ReadDir(vhostDir)
	require.NoError(t, err)
	require.Len(t, secondVhosts, len(firstVhosts))
	for i := range firstVhosts {
		assert.Equal(t, firstVhosts[i].Name(), secondVhosts[i].Name())
	}
	secondHosts, err := os.ReadFile(f.manifest.Sites.HostsFile)
	require.NoError(t, err)
	assert.Equal(t, string(firstHosts), string(secondHosts))
}

func TestRunAbortsOnBadHookShell(t *testing.T) {
	f := newFixture(t)
	f.manifest.Sites.HookShell = `bash "unterminated`

	p, err := New(f.manifest, f.fake, f.server.Client())
	require.NoError(t, err)
	_, err = p.Run(context.Background())

	var perr *models.ProvisionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.ErrInvalidConfig, perr.Type)
}

func TestNewRejectsUnknownPackageManager(t *testing.T) {
	m := config.Default()
	m.PackageManager = "pacman"
	_, err := New(m, runner.NewFake(), nil)
	assert.Error(t, err)
}

func TestReportPrint(t *testing.T) {
	r := &Report{Elapsed: 90 * time.Second, Online: false}
	r.Add(
		models.Success("packages", "all packages installed"),
		models.SkippedNoNetwork("tool wp-cli"),
		models.ToolError("init /srv/www/a/vvv-init.sh", assert.AnError),
	)

	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "Provisioning complete in 1m30s")
	assert.Contains(t, out, "External network connection: down")
	assert.Contains(t, out, "1 succeeded, 1 skipped (no network), 0 skipped (missing file), 1 failed")
	assert.Contains(t, out, "failed: init /srv/www/a/vvv-init.sh")
}
