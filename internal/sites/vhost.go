package sites

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	// VhostPrefix marks every generated vhost config. Anything in the vhost
	// dir carrying it is owned by the provisioner.
	VhostPrefix = "vvv-auto-"

	// PathPlaceholder is replaced by the template's directory
	PathPlaceholder = "{vvv_path_to_folder}"

	fingerprintLen = 8
)

// VhostName derives the generated config name for a vhost template: the
// path relative to root with separators turned into dashes, the template
// name dropped, and a fingerprint of the full path appended so two
// templates can never share a name.
//
//	/srv/www/projects/site1/vvv-nginx.conf -> vvv-auto-projects-site1-<8 hex>.conf
func VhostName(root, path string) string {
	path = filepath.Clean(path)
	rel, err := filepath.Rel(filepath.Clean(root), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = strings.TrimLeft(path, string(filepath.Separator))
	}

	mangled := strings.ReplaceAll(rel, string(filepath.Separator), "-")
	mangled = strings.TrimSuffix(mangled, VhostFile)
	mangled = strings.TrimSuffix(mangled, "-")
	if mangled == "" {
		mangled = "root"
	}

	return fmt.Sprintf("%s%s-%s.conf", VhostPrefix, mangled, utils.PathFingerprint(path, fingerprintLen))
}

// RenderVhost substitutes the placeholder in a template with dir
func RenderVhost(template, dir string) string {
	return strings.ReplaceAll(template, PathPlaceholder, dir)
}

// Vhost is a generated config ready to be written
type Vhost struct {
	Source  string
	Dest    string
	Content string
}

// BuildVhosts renders every vhost template into its generated config
func BuildVhosts(root, vhostDir string, descs []Descriptor) ([]Vhost, error) {
	var out []Vhost
	for _, d := range Filter(descs, KindVhost) {
		data, err := os.ReadFile(d.Path)
		if err != nil {
			return nil, models.NewError(models.ErrSiteDiscovery, d.Path, err)
		}
		out = append(out, Vhost{
			Source:  d.Path,
			Dest:    filepath.Join(vhostDir, VhostName(root, d.Path)),
			Content: RenderVhost(string(data), d.Dir),
		})
	}
	return out, nil
}

// RemoveGenerated deletes every generated config from vhostDir and returns
// the removed names
func RemoveGenerated(vhostDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(vhostDir, VhostPrefix+"*"))
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			return removed, models.NewError(models.ErrFileOp, m, err)
		}
		removed = append(removed, filepath.Base(m))
	}
	return removed, nil
}

// SyncVhosts replaces the generated configs in vhostDir with freshly
// rendered ones. The old generation is always removed first, so a project
// whose template disappeared loses its config.
func SyncVhosts(root, vhostDir string, descs []Descriptor) ([]models.StepResult, error) {
	vhosts, err := BuildVhosts(root, vhostDir, descs)
	if err != nil {
		return nil, err
	}

	removed, err := RemoveGenerated(vhostDir)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Removed %d generated vhost configs", len(removed))

	if err := utils.EnsureDir(vhostDir); err != nil {
		return nil, models.NewError(models.ErrFileOp, vhostDir, err)
	}

	var results []models.StepResult
	for _, v := range vhosts {
		step := "vhost " + filepath.Base(v.Dest)
		if err := utils.WriteFile(v.Dest, []byte(v.Content), 0644); err != nil {
			results = append(results, models.ToolError(step, models.NewError(models.ErrFileOp, v.Dest, err)))
			continue
		}
		logrus.Infof("Generated %s from %s", v.Dest, v.Source)
		results = append(results, models.Success(step, v.Source))
	}

	return results, nil
}
