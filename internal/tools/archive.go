package tools

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

// ErrUnsupportedArchive is returned for archive formats Extract can't read
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// InstallArchive downloads and unpacks an archive into its destination
// directory when that directory does not exist yet
func (i *Installer) InstallArchive(ctx context.Context, tool models.ArchiveTool) (string, error) {
	exists, err := utils.Exists(tool.Dest)
	if err != nil {
		return "", err
	}
	if exists {
		return "already installed", nil
	}

	if err := utils.EnsureDir(i.Downloader.CacheDir); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(i.Downloader.CacheDir, tool.Name+"-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, "archive")
	if err := i.Downloader.DownloadFile(ctx, tool.URL, archive, 0644); err != nil {
		return "", err
	}

	if err := Extract(archive, tool.Dest); err != nil {
		return "", err
	}
	return "unpacked into " + tool.Dest, nil
}

// Extract unpacks the archive at path into dest. The format is sniffed from
// the content. When the archive holds a single top-level directory its
// contents become dest.
func Extract(path, dest string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to detect archive type: %w", err)
	}
	logrus.Debugf("Archive %s detected as %s", path, mtype.String())

	parent := filepath.Dir(dest)
	if err := utils.EnsureDir(parent); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dest)+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	switch {
	case mtype.Is("application/zip"):
		err = extractZip(path, staging)
	case mtype.Is("application/gzip"), mtype.Is("application/x-xz"),
		mtype.Is("application/zstd"), mtype.Is("application/x-tar"):
		err = extractCompressedTar(path, mtype, staging)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, mtype.String())
	}
	if err != nil {
		return err
	}

	root, err := contentRoot(staging)
	if err != nil {
		return err
	}
	return os.Rename(root, dest)
}

// contentRoot returns the single top-level directory of dir if there is
// exactly one entry and it is a directory, otherwise dir itself
func contentRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

// target resolves an archive entry name under dir, refusing names that
// would escape it either textually or through a symlink extracted earlier
func target(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}

	current := dir
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("archive entry %q would be written through symlink %s", name, current)
		}
	}

	return filepath.Join(dir, clean), nil
}

// checkLink refuses symlinks that are absolute or point outside dir once
// resolved against the directory holding the link
func checkLink(dir, out, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("symlink %s has absolute target %q", out, linkname)
	}
	parent, err := filepath.Rel(dir, filepath.Dir(out))
	if err != nil {
		return err
	}
	resolved := filepath.Join(parent, filepath.FromSlash(linkname))
	if !filepath.IsLocal(resolved) {
		return fmt.Errorf("symlink %s points outside destination (%q)", out, linkname)
	}
	return nil
}

func extractZip(path, dest string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		out, err := target(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(out, 0755); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(out, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractCompressedTar(path string, mtype *mimetype.MIME, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case mtype.Is("application/gzip"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gr.Close()
		r = gr
	case mtype.Is("application/x-xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return err
		}
		r = xr
	case mtype.Is("application/zstd"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		out, err := target(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(out, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(out, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkLink(dest, out, hdr.Linkname); err != nil {
				return err
			}
			if err := utils.EnsureDir(filepath.Dir(out)); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, out); err != nil {
				return err
			}
		default:
			logrus.Debugf("Skipping tar entry %s (type %c)", hdr.Name, hdr.Typeflag)
		}
	}
}

func writeEntry(path string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
