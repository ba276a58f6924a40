package database

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/ralt/vvvprov/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const countQuery = "mysql -u root -proot -N -B -e SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = "

func setup(t *testing.T) (*Bootstrapper, *runner.Fake, string) {
	t.Helper()
	dir := t.TempDir()

	init := filepath.Join(dir, "init.sql")
	require.NoError(t, os.WriteFile(init, []byte("CREATE USER 'wp'@'localhost';"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "backups"), 0755))

	fake := runner.NewFake()
	cfg := models.DatabaseConfig{
		Service:      "mysql",
		Client:       "mysql -u root -proot",
		InitScript:   init,
		CustomScript: filepath.Join(dir, "init-custom.sql"),
		BackupsDir:   filepath.Join(dir, "backups"),
	}
	return NewBootstrapper(services.NewManager(fake), fake, cfg), fake, dir
}

func TestBootstrapStartsStoppedService(t *testing.T) {
	b, fake, _ := setup(t)
	fake.On("service mysql status", "mysql stop/waiting", 0)

	results := b.Bootstrap(context.Background())
	require.NotEmpty(t, results)
	assert.Equal(t, "mysql start", results[0].Detail)

	cmds := fake.Commands()
	assert.Equal(t, "service mysql start", cmds[1])
	assert.NotContains(t, cmds, "service mysql restart")
}

func TestBootstrapRestartsRunningService(t *testing.T) {
	b, fake, _ := setup(t)
	fake.On("service mysql status", "mysql start/running, process 812", 0)

	b.Bootstrap(context.Background())
	assert.Equal(t, "service mysql restart", fake.Commands()[1])
}

func TestBootstrapSkipsWithoutService(t *testing.T) {
	b, fake, _ := setup(t)
	fake.On("service mysql status", "mysql: unrecognized service", 1)

	results := b.Bootstrap(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusSkippedMissingFile, results[0].Status)
	assert.Equal(t, []string{"service mysql status"}, fake.Commands())
}

func TestBootstrapAppliesScripts(t *testing.T) {
	b, fake, dir := setup(t)
	fake.On("service mysql status", "running", 0)

	results := b.Bootstrap(context.Background())
	require.GreaterOrEqual(t, len(results), 2)
	assert.Equal(t, models.StatusSuccess, results[1].Status)

	// Only the init script ran; the custom one is absent
	var scripts []string
	for _, c := range fake.Calls {
		if c.Program == "mysql" && c.Stdin != "" {
			scripts = append(scripts, c.Stdin)
		}
	}
	assert.Equal(t, []string{"CREATE USER 'wp'@'localhost';"}, scripts)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "init-custom.sql"), []byte("SELECT 1;"), 0644))
	fake.Calls = nil
	b.Bootstrap(context.Background())

	scripts = nil
	for _, c := range fake.Calls {
		if c.Program == "mysql" && c.Stdin != "" {
			scripts = append(scripts, c.Stdin)
		}
	}
	assert.Equal(t, []string{"CREATE USER 'wp'@'localhost';", "SELECT 1;"}, scripts)
}

func TestImportBackupsOnlyIntoEmptyDatabases(t *testing.T) {
	b, fake, dir := setup(t)
	backups := filepath.Join(dir, "backups")

	require.NoError(t, os.WriteFile(filepath.Join(backups, "wordpress_default.sql"), []byte("CREATE TABLE wp_posts (id int);"), 0644))

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write([]byte("CREATE TABLE wp_options (id int);"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filepath.Join(backups, "wordpress_develop.sql.gz"), gz.Bytes(), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(backups, "README.md"), []byte("not a backup"), 0644))

	fake.On(countQuery, "0\n", 0)
	fake.On(countQuery+"'wordpress_develop'", "12\n", 0)

	results := b.ImportBackups(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "imported wordpress_default.sql", results[0].Detail)
	assert.Equal(t, "already populated", results[1].Detail)

	var imports []runner.Call
	for _, c := range fake.Calls {
		if c.Stdin != "" {
			imports = append(imports, c)
		}
	}
	require.Len(t, imports, 1)
	assert.Equal(t, "mysql -u root -proot wordpress_default", imports[0].String())
	assert.Equal(t, "CREATE TABLE wp_posts (id int);", imports[0].Stdin)
}

func TestImportBackupsDecompressesGzip(t *testing.T) {
	b, fake, dir := setup(t)

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write([]byte("CREATE TABLE t (id int);"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backups", "seed.sql.gz"), gz.Bytes(), 0644))

	fake.On(countQuery, "0", 0)

	results := b.ImportBackups(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusSuccess, results[0].Status)

	last := fake.Calls[len(fake.Calls)-1]
	assert.Equal(t, "CREATE TABLE t (id int);", last.Stdin)
}

func TestImportBackupsMissingDir(t *testing.T) {
	b, _, dir := setup(t)
	b.Config.BackupsDir = filepath.Join(dir, "nope")

	results := b.ImportBackups(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusSkippedMissingFile, results[0].Status)
}

func TestBackupName(t *testing.T) {
	tests := map[string]struct {
		name string
		ok   bool
	}{
		"wordpress_default.sql":     {"wordpress_default", true},
		"wordpress_trunk.sql.gz":    {"wordpress_trunk", true},
		"/srv/database/x.sql":       {"x", true},
		".sql":                      {"", false},
		"readme.txt":                {"", false},
		"wordpress_default.sql.gz2": {"", false},
	}
	for file, want := range tests {
		name, ok := BackupName(file)
		assert.Equal(t, want.ok, ok, file)
		assert.Equal(t, want.name, name, file)
	}
}

func TestImportRejectsUnsafeName(t *testing.T) {
	b, fake, dir := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backups", "bad name'.sql"), []byte("x"), 0644))

	results := b.ImportBackups(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusToolError, results[0].Status)
	assert.Empty(t, fake.Calls)
}
