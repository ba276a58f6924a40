package pkgfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/sirupsen/logrus"
)

// Scan reads every package file directly inside dir. Files that are not
// packages are ignored; packages that fail to parse are logged and skipped.
// Results are in directory order (sorted by file name).
func Scan(ctx context.Context, dir string) ([]models.Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	var packages []models.Package
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		pkgType, err := Detect(path)
		if err != nil {
			logrus.Warnf("Failed to detect type for %s: %v", path, err)
			continue
		}
		if pkgType == TypeUnknown {
			continue
		}

		pkg, err := Parse(path, pkgType)
		if err != nil {
			logrus.Warnf("Failed to parse %s: %v", path, err)
			continue
		}

		logrus.Debugf("Found %s package %s %s in %s", pkgType, pkg.Name, pkg.Version, path)
		packages = append(packages, *pkg)
	}

	return packages, nil
}
