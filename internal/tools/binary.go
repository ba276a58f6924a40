package tools

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/ralt/vvvprov/internal/keys"
	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

var versionPattern = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.-]+)?`)

// ParseVersion extracts the first version number from a --version banner
func ParseVersion(output string) (*semver.Version, error) {
	match := versionPattern.FindString(output)
	if match == "" {
		return nil, fmt.Errorf("no version found in %q", output)
	}
	return semver.NewVersion(match)
}

// InstalledVersion runs the binary with its version arguments and parses
// the reported version
func (i *Installer) InstalledVersion(ctx context.Context, tool models.BinaryTool) (*semver.Version, error) {
	args := tool.VersionArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}
	res, err := i.Runner.Run(ctx, tool.Path, args)
	if err != nil {
		return nil, err
	}
	return ParseVersion(res.Combined())
}

// NeedsInstall reports whether the binary is missing or older than its
// minimum version. A binary whose version cannot be read is replaced.
func (i *Installer) NeedsInstall(ctx context.Context, tool models.BinaryTool) (bool, string, error) {
	exists, err := utils.Exists(tool.Path)
	if err != nil {
		return false, "", err
	}
	if !exists {
		return true, "missing", nil
	}
	if tool.MinVersion == "" {
		return false, "already installed", nil
	}

	minVersion, err := semver.NewVersion(tool.MinVersion)
	if err != nil {
		return false, "", models.NewError(models.ErrInvalidConfig, tool.Name+".min_version", err)
	}

	current, err := i.InstalledVersion(ctx, tool)
	if err != nil {
		logrus.Warnf("Could not read %s version: %v", tool.Name, err)
		return true, "unknown version", nil
	}
	if current.LessThan(minVersion) {
		return true, fmt.Sprintf("version %s older than %s", current, minVersion), nil
	}
	return false, fmt.Sprintf("version %s is current", current), nil
}

// InstallBinary downloads the binary when NeedsInstall says so
func (i *Installer) InstallBinary(ctx context.Context, tool models.BinaryTool) (string, error) {
	needed, reason, err := i.NeedsInstall(ctx, tool)
	if err != nil {
		return "", err
	}
	if !needed {
		return reason, nil
	}

	logrus.Infof("Installing %s to %s (%s)", tool.Name, tool.Path, reason)
	if tool.SignatureURL != "" {
		return i.installVerified(ctx, tool)
	}
	if err := i.Downloader.DownloadFile(ctx, tool.URL, tool.Path, 0755); err != nil {
		return "", err
	}
	return "installed " + tool.Path, nil
}

// installVerified downloads the binary and its detached signature and only
// writes the binary once the signature checks out
func (i *Installer) installVerified(ctx context.Context, tool models.BinaryTool) (string, error) {
	if tool.Keyring == "" {
		return "", models.NewError(models.ErrInvalidConfig, tool.Name, fmt.Errorf("signature_url set without keyring"))
	}
	ring, err := keys.LoadKeyRing(tool.Keyring)
	if err != nil {
		return "", fmt.Errorf("failed to load keyring %s: %w", tool.Keyring, err)
	}

	data, err := i.Downloader.Fetch(ctx, tool.URL)
	if err != nil {
		return "", err
	}
	sig, err := i.Downloader.Fetch(ctx, tool.SignatureURL)
	if err != nil {
		return "", err
	}

	signer, err := keys.VerifyDetached(ring, data, sig)
	if err != nil {
		return "", fmt.Errorf("%s: %w", tool.URL, err)
	}
	logrus.Debugf("%s signed by %X", tool.Name, signer.PrimaryKey.Fingerprint)

	if err := utils.WriteFileAtomic(tool.Path, data, 0755); err != nil {
		return "", err
	}
	return "installed verified " + tool.Path, nil
}
