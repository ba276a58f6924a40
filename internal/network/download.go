package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

// StatusError is returned when a server answers with an unusable status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected HTTP status %d", e.URL, e.StatusCode)
}

// DefaultCacheDir is where downloads are staged before being moved into place
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "vvvprov")
}

// Downloader fetches files over HTTP with a fixed number of attempts
type Downloader struct {
	Client     *http.Client
	CacheDir   string
	Attempts   int
	RetryDelay time.Duration
}

// NewDownloader creates a downloader staging files under the XDG cache dir
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Downloader{
		Client:     client,
		CacheDir:   DefaultCacheDir(),
		Attempts:   3,
		RetryDelay: 2 * time.Second,
	}
}

// Fetch downloads url into memory
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := d.retry(ctx, url, func() error {
		body, err := d.open(ctx, url)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err = io.ReadAll(body)
		return err
	})
	return data, err
}

// DownloadFile downloads url to dest. The body is written to a staging file
// in the cache dir first so a failed transfer never leaves a truncated dest.
func (d *Downloader) DownloadFile(ctx context.Context, url, dest string, perm os.FileMode) error {
	if err := utils.EnsureDir(d.CacheDir); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	return d.retry(ctx, url, func() error {
		staged, err := os.CreateTemp(d.CacheDir, filepath.Base(dest)+".*")
		if err != nil {
			return err
		}
		stagedName := staged.Name()
		defer os.Remove(stagedName)

		body, err := d.open(ctx, url)
		if err != nil {
			staged.Close()
			return err
		}
		_, err = io.Copy(staged, body)
		body.Close()
		if cerr := staged.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if err := os.Chmod(stagedName, perm); err != nil {
			return err
		}

		if err := utils.EnsureDir(filepath.Dir(dest)); err != nil {
			return err
		}
		return moveIntoPlace(stagedName, dest, perm)
	})
}

// rename is swapped in tests to simulate a cache on another filesystem
var rename = os.Rename

// moveIntoPlace renames staged over dest. When they live on different
// filesystems the content is copied to a sibling of dest first, so dest is
// only ever replaced by a rename.
func moveIntoPlace(staged, dest string, perm os.FileMode) error {
	if err := rename(staged, dest); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := utils.CopyFile(staged, tmpName); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return rename(tmpName, dest)
}

func (d *Downloader) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

func (d *Downloader) retry(ctx context.Context, url string, fn func() error) error {
	attempts := d.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		logrus.Debugf("Downloading %s (attempt %d/%d)", url, attempt, attempts)
		if err = fn(); err == nil {
			return nil
		}

		// Client errors won't change on retry
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			break
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.RetryDelay):
		}
	}

	return fmt.Errorf("failed to download %s: %w", url, err)
}
