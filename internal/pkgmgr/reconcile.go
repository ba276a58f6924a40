package pkgmgr

import (
	"context"
	"fmt"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/pkgfile"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

// KeyRegistrar registers repository signing keys
type KeyRegistrar interface {
	Register(ctx context.Context, key models.SigningKey) (bool, error)
}

// Missing returns the desired packages absent from installed, in desired
// order and without duplicates
func Missing(desired []string, installed map[string]bool) []string {
	seen := make(map[string]bool, len(desired))
	var out []string
	for _, name := range desired {
		if name == "" || installed[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Plan is the outcome of querying the host for the desired packages
type Plan struct {
	Installed map[string]string // name -> version
	Missing   []string
	Files     []models.Package // local package files whose package is absent
}

// Empty reports whether nothing needs installing
func (p *Plan) Empty() bool {
	return len(p.Missing) == 0 && len(p.Files) == 0
}

// Reconciler installs the difference between desired and installed packages
type Reconciler struct {
	Backend     Backend
	Keys        KeyRegistrar
	Packages    []string
	PackageDir  string
	SigningKeys []models.SigningKey
	SourceLists []models.FileSync
}

// NewReconciler creates a reconciler for the manifest's package section
func NewReconciler(backend Backend, keys KeyRegistrar, m *models.Manifest) *Reconciler {
	return &Reconciler{
		Backend:     backend,
		Keys:        keys,
		Packages:    m.Packages,
		PackageDir:  m.PackageDir,
		SigningKeys: m.SigningKeys,
		SourceLists: m.SourceLists,
	}
}

// Plan queries the host package database for every desired package and
// every local package file
func (r *Reconciler) Plan(ctx context.Context) (*Plan, error) {
	plan := &Plan{Installed: make(map[string]string)}
	installed := make(map[string]bool)

	for _, name := range r.Packages {
		version, ok, err := r.Backend.InstalledVersion(ctx, name)
		if err != nil {
			return nil, models.NewError(models.ErrPackage, name, err)
		}
		if ok {
			logrus.Debugf("%s %s already installed", name, version)
			plan.Installed[name] = version
			installed[name] = true
		} else {
			logrus.Debugf("%s not installed", name)
		}
	}
	plan.Missing = Missing(r.Packages, installed)

	if r.PackageDir == "" {
		return plan, nil
	}
	exists, err := utils.Exists(r.PackageDir)
	if err != nil {
		return nil, models.NewError(models.ErrFileOp, r.PackageDir, err)
	}
	if !exists {
		logrus.Debugf("Package dir %s not found, no local packages", r.PackageDir)
		return plan, nil
	}

	local, err := pkgfile.Scan(ctx, r.PackageDir)
	if err != nil {
		return nil, models.NewError(models.ErrFileOp, r.PackageDir, err)
	}
	for _, pkg := range local {
		if _, ok := plan.Installed[pkg.Name]; ok {
			continue
		}
		version, ok, err := r.Backend.InstalledVersion(ctx, pkg.Name)
		if err != nil {
			return nil, models.NewError(models.ErrPackage, pkg.Name, err)
		}
		if ok {
			plan.Installed[pkg.Name] = version
			continue
		}
		plan.Files = append(plan.Files, pkg)
	}

	return plan, nil
}

// Reconcile installs whatever Plan finds missing. Without connectivity
// nothing is installed and the step reports a skip.
func (r *Reconciler) Reconcile(ctx context.Context, online bool) ([]models.StepResult, error) {
	const step = "packages"

	plan, err := r.Plan(ctx)
	if err != nil {
		return []models.StepResult{models.ToolError(step, err)}, nil
	}

	if plan.Empty() {
		logrus.Info("All packages already installed")
		return []models.StepResult{models.Success(step, "all packages installed")}, nil
	}

	logrus.Infof("%d packages to install: %v", len(plan.Missing)+len(plan.Files), plan.Missing)

	if !online {
		logrus.Warn("Skipping package installation, network unavailable")
		return []models.StepResult{models.SkippedNoNetwork(step)}, nil
	}

	var results []models.StepResult
	results = append(results, r.registerKeys(ctx)...)
	results = append(results, r.writeSourceLists()...)

	logrus.Infof("Refreshing %s package index", r.Backend.Name())
	if err := r.Backend.Refresh(ctx); err != nil {
		results = append(results, models.ToolError(step+": refresh", err))
		return results, ctx.Err()
	}

	if len(plan.Missing) > 0 {
		logrus.Info("Installing packages")
		if err := r.Backend.Install(ctx, plan.Missing); err != nil {
			results = append(results, models.ToolError(step+": install", err))
			return results, ctx.Err()
		}
	}

	if len(plan.Files) > 0 {
		paths := make([]string, 0, len(plan.Files))
		for _, pkg := range plan.Files {
			paths = append(paths, pkg.Filename)
		}
		logrus.Infof("Installing %d local package files", len(paths))
		if err := r.Backend.InstallFiles(ctx, paths); err != nil {
			results = append(results, models.ToolError(step+": install files", err))
			return results, ctx.Err()
		}
	}

	if err := r.Backend.Clean(ctx); err != nil {
		results = append(results, models.ToolError(step+": clean", err))
	}

	results = append(results, models.Success(step,
		fmt.Sprintf("installed %d packages", len(plan.Missing)+len(plan.Files))))
	return results, nil
}

// registerKeys adds every signing key. Failures are reported but never stop
// the installation.
func (r *Reconciler) registerKeys(ctx context.Context) []models.StepResult {
	if r.Keys == nil {
		return nil
	}

	var results []models.StepResult
	for _, key := range r.SigningKeys {
		step := "signing key " + key.Name
		changed, err := r.Keys.Register(ctx, key)
		if err != nil {
			logrus.Warnf("Failed to register signing key %s: %v", key.Name, err)
			results = append(results, models.ToolError(step, err))
			continue
		}
		detail := "unchanged"
		if changed {
			detail = "registered"
		}
		results = append(results, models.Success(step, detail))
	}
	return results
}

// writeSourceLists copies repository source lists into place before the
// index refresh
func (r *Reconciler) writeSourceLists() []models.StepResult {
	var results []models.StepResult
	for _, src := range r.SourceLists {
		step := "source list " + src.Dest
		exists, err := utils.Exists(src.Source)
		if err != nil {
			results = append(results, models.ToolError(step, err))
			continue
		}
		if !exists {
			logrus.Warnf("Source list %s not found, skipping", src.Source)
			results = append(results, models.SkippedMissingFile(step, src.Source))
			continue
		}
		if err := utils.CopyFile(src.Source, src.Dest); err != nil {
			results = append(results, models.ToolError(step, err))
			continue
		}
		results = append(results, models.Success(step, "copied"))
	}
	return results
}
