// Package database brings up the database service and seeds it: the
// initial schema/user script, an optional custom script, and a bulk import
// of backups into databases that are still empty.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/ralt/vvvprov/internal/services"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

// StatusController queries and controls services
type StatusController interface {
	Status(ctx context.Context, name string) (services.Status, error)
	Apply(ctx context.Context, name, action string) error
}

// Bootstrapper seeds the database server
type Bootstrapper struct {
	Services StatusController
	Runner   runner.Runner
	Config   models.DatabaseConfig
}

// NewBootstrapper creates a bootstrapper for cfg
func NewBootstrapper(svc StatusController, r runner.Runner, cfg models.DatabaseConfig) *Bootstrapper {
	return &Bootstrapper{Services: svc, Runner: r, Config: cfg}
}

var dbNamePattern = regexp.MustCompile(`^[A-Za-z0-9_$-]+$`)

// Bootstrap starts (or restarts) the database service and seeds it. A host
// without the database service is not an error; the step is skipped.
func (b *Bootstrapper) Bootstrap(ctx context.Context) []models.StepResult {
	const step = "database"
	name := b.Config.Service

	status, err := b.Services.Status(ctx, name)
	if err != nil {
		return []models.StepResult{models.ToolError(step, models.NewError(models.ErrDatabase, name, err))}
	}
	if status == services.NotInstalled {
		logrus.Warnf("Database service %s not installed, skipping database setup", name)
		return []models.StepResult{models.SkippedMissingFile(step, "service "+name+" not installed")}
	}

	action, err := services.NextAction(status)
	if err != nil {
		return []models.StepResult{models.ToolError(step, err)}
	}
	logrus.Infof("Database service %s is %s, running %s", name, status, action)
	if err := b.Services.Apply(ctx, name, action); err != nil {
		return []models.StepResult{models.ToolError(step, models.NewError(models.ErrDatabase, name, err))}
	}

	results := []models.StepResult{models.Success(step, name+" "+action)}

	results = append(results, b.runScript(ctx, "database init", b.Config.InitScript))
	if b.Config.CustomScript != "" {
		// The custom script is optional; absence is silent
		if ok, _ := utils.Exists(b.Config.CustomScript); ok {
			results = append(results, b.runScript(ctx, "database custom init", b.Config.CustomScript))
		} else {
			logrus.Debugf("No custom database script at %s", b.Config.CustomScript)
		}
	}

	results = append(results, b.ImportBackups(ctx)...)
	return results
}

// runScript feeds a SQL file to the database client
func (b *Bootstrapper) runScript(ctx context.Context, step, path string) models.StepResult {
	if path == "" {
		return models.SkippedMissingFile(step, "no script configured")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Warnf("SQL script %s not found", path)
			return models.SkippedMissingFile(step, path)
		}
		return models.ToolError(step, err)
	}
	defer f.Close()

	if _, err := b.client(ctx, nil, runner.WithStdin(f)); err != nil {
		return models.ToolError(step, models.NewError(models.ErrDatabase, path, err))
	}

	logrus.Infof("Applied %s", path)
	return models.Success(step, path)
}

// client runs the configured database client with extra arguments
func (b *Bootstrapper) client(ctx context.Context, args []string, opts ...runner.Option) (*runner.Result, error) {
	program, base, err := runner.Split(b.Config.Client)
	if err != nil {
		return nil, err
	}
	return b.Runner.Run(ctx, program, append(base, args...), opts...)
}

// BackupName returns the database a backup file seeds and whether the file
// is a backup at all (.sql or .sql.gz)
func BackupName(filename string) (string, bool) {
	base := filepath.Base(filename)
	for _, suffix := range []string{".sql.gz", ".sql"} {
		if strings.HasSuffix(base, suffix) {
			name := strings.TrimSuffix(base, suffix)
			return name, name != ""
		}
	}
	return "", false
}

// ImportBackups imports every backup in the backups dir into its database,
// but only while that database has no tables
func (b *Bootstrapper) ImportBackups(ctx context.Context) []models.StepResult {
	const step = "database import"
	dir := b.Config.BackupsDir
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.StepResult{models.SkippedMissingFile(step, dir)}
		}
		return []models.StepResult{models.ToolError(step, err)}
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var results []models.StepResult
	for _, file := range names {
		db, ok := BackupName(file)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		results = append(results, b.importOne(ctx, db, filepath.Join(dir, file)))
	}

	if len(results) == 0 {
		results = append(results, models.Success(step, "no backups found"))
	}
	return results
}

func (b *Bootstrapper) importOne(ctx context.Context, db, path string) models.StepResult {
	step := "database import " + db
	if !dbNamePattern.MatchString(db) {
		return models.ToolError(step, fmt.Errorf("invalid database name %q", db))
	}

	if _, err := b.client(ctx, []string{"-e", fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", db)}); err != nil {
		return models.ToolError(step, models.NewError(models.ErrDatabase, db, err))
	}

	res, err := b.client(ctx, []string{"-N", "-B", "-e",
		fmt.Sprintf("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = '%s'", db)})
	if err != nil {
		return models.ToolError(step, models.NewError(models.ErrDatabase, db, err))
	}
	tables, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return models.ToolError(step, fmt.Errorf("unexpected table count %q: %w", res.Stdout, err))
	}
	if tables > 0 {
		logrus.Infof("Skipping import of %s, database has %d tables", db, tables)
		return models.Success(step, "already populated")
	}

	f, err := os.Open(path)
	if err != nil {
		return models.ToolError(step, err)
	}
	defer f.Close()

	r, done, err := utils.Decompressor(path, f)
	if err != nil {
		return models.ToolError(step, models.NewError(models.ErrDatabase, path, err))
	}
	defer done()

	logrus.Infof("Importing %s into %s", path, db)
	if _, err := b.client(ctx, []string{db}, runner.WithStdin(r)); err != nil {
		return models.ToolError(step, models.NewError(models.ErrDatabase, db, err))
	}
	return models.Success(step, "imported "+filepath.Base(path))
}
