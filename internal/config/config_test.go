package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vvvprov.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultProjectsRoot, m.ProjectsRoot)
	assert.Equal(t, 5, m.ScanDepth)
	assert.Equal(t, "apt", m.PackageManager)
	assert.Equal(t, "http://google.com", m.Probe.URL)
	assert.Equal(t, 5*time.Second, m.Probe.Timeout)
	assert.Equal(t, "mysql", m.Database.Service)
	assert.Equal(t, "/etc/hosts", m.Sites.HostsFile)
	assert.NotEmpty(t, m.Packages)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeManifest(t, `
projects_root = "/home/dev/www"
package_manager = "dnf"
packages = ["git", "nginx"]

[probe]
url = "https://example.com"
timeout = "2s"
attempts = 1

[sites]
webserver_action = "reload"

[[tools.checkouts]]
name = "tool"
url = "https://example.com/tool.git"
dest = "/opt/tool"
`)

	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/home/dev/www", m.ProjectsRoot)
	assert.Equal(t, "dnf", m.PackageManager)
	assert.Equal(t, []string{"git", "nginx"}, m.Packages)
	assert.Equal(t, "https://example.com", m.Probe.URL)
	assert.Equal(t, 2*time.Second, m.Probe.Timeout)
	assert.Equal(t, 1, m.Probe.Attempts)
	assert.Equal(t, "reload", m.Sites.WebserverAction)
	require.Len(t, m.Tools.Checkouts, 1)
	assert.Equal(t, "/opt/tool", m.Tools.Checkouts[0].Dest)

	// Untouched sections keep their defaults
	assert.Equal(t, "/etc/hosts", m.Sites.HostsFile)
	assert.Equal(t, DefaultConfigDir, m.ConfigDir)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeManifest(t, "projets_root = \"/typo\"\n")

	_, err := Load(path)
	require.Error(t, err)

	var perr *models.ProvisionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.ErrInvalidConfig, perr.Type)
	assert.Contains(t, err.Error(), "projets_root")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	_, err := Load(writeManifest(t, "packages = [\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *models.Manifest)
		wantErr bool
	}{
		{"defaults", func(m *models.Manifest) {}, false},
		{"unknown package manager", func(m *models.Manifest) { m.PackageManager = "pacman" }, true},
		{"negative depth", func(m *models.Manifest) { m.ScanDepth = -1 }, true},
		{"zero depth filled", func(m *models.Manifest) { m.ScanDepth = 0 }, false},
		{"bad probe url", func(m *models.Manifest) { m.Probe.URL = "ftp://example.com" }, true},
		{"bad service action", func(m *models.Manifest) { m.Services[0].Action = "stop" }, true},
		{"key without url", func(m *models.Manifest) { m.SigningKeys = []models.SigningKey{{Name: "k"}} }, true},
		{"empty projects root", func(m *models.Manifest) { m.ProjectsRoot = "" }, true},
		{"binary without path", func(m *models.Manifest) { m.Tools.Binaries[0].Path = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Default()
			tt.mutate(m)
			err := Validate(m)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 5, m.ScanDepth)
		})
	}
}
