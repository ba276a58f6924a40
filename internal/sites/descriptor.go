// Package sites discovers per-project descriptor files under the projects
// root and materializes what they describe: init hooks are executed, vhost
// templates become generated webserver configs, and hosts lists become
// tagged host-file entries. Every derived artifact is regenerated from the
// current descriptors on each run.
package sites

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Kind identifies a descriptor file by its fixed name
type Kind int

const (
	KindUnknown Kind = iota
	KindInitHook
	KindVhost
	KindHosts
)

// Descriptor file names
const (
	InitHookFile = "vvv-init.sh"
	VhostFile    = "vvv-nginx.conf"
	HostsFile    = "vvv-hosts"
)

// DefaultScanDepth bounds how deep below the projects root descriptors are found
const DefaultScanDepth = 5

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindInitHook:
		return "init hook"
	case KindVhost:
		return "vhost template"
	case KindHosts:
		return "hosts list"
	default:
		return "unknown"
	}
}

// KindOf returns the descriptor kind for a file name
func KindOf(name string) Kind {
	switch name {
	case InitHookFile:
		return KindInitHook
	case VhostFile:
		return KindVhost
	case HostsFile:
		return KindHosts
	default:
		return KindUnknown
	}
}

// Descriptor is a descriptor file found during a scan
type Descriptor struct {
	Path string
	Dir  string
	Kind Kind
}

// Scan walks root to at most maxDepth levels and returns the descriptors of
// the requested kinds (all kinds when none are given) in walk order.
// A file directly inside root is at depth 1.
func Scan(ctx context.Context, root string, maxDepth int, kinds ...Kind) ([]Descriptor, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultScanDepth
	}
	root = filepath.Clean(root)

	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	var found []Descriptor
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable project directories are skipped, not fatal
			if path != root {
				logrus.Warnf("Skipping %s: %v", path, err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		depth := pathDepth(root, path)
		if d.IsDir() {
			if depth >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		kind := KindOf(d.Name())
		if kind == KindUnknown || (len(want) > 0 && !want[kind]) {
			return nil
		}

		logrus.Debugf("Found %s: %s", kind, path)
		found = append(found, Descriptor{Path: path, Dir: filepath.Dir(path), Kind: kind})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	return found, nil
}

func pathDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// Filter returns the descriptors of one kind, preserving order
func Filter(descs []Descriptor, kind Kind) []Descriptor {
	var out []Descriptor
	for _, d := range descs {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
