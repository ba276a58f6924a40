// Package keys registers package repository signing keys as binary OpenPGP
// keyrings, the format apt and dnf read from their trusted key directories.
package keys

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/utils"
	"github.com/sirupsen/logrus"
)

// Fetcher retrieves a key over the network
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Registrar writes fetched keys into a keyring directory
type Registrar struct {
	Fetcher    Fetcher
	KeyringDir string
}

// NewRegistrar creates a registrar writing into keyringDir
func NewRegistrar(fetcher Fetcher, keyringDir string) *Registrar {
	return &Registrar{Fetcher: fetcher, KeyringDir: keyringDir}
}

// KeyringPath returns where the keyring for key is written
func (r *Registrar) KeyringPath(key models.SigningKey) string {
	return filepath.Join(r.KeyringDir, key.Name+".gpg")
}

// Register fetches key and writes its public keyring. It reports whether the
// keyring on disk changed.
func (r *Registrar) Register(ctx context.Context, key models.SigningKey) (bool, error) {
	if key.Name == "" || key.URL == "" {
		return false, fmt.Errorf("signing key needs a name and a url")
	}

	data, err := r.Fetcher.Fetch(ctx, key.URL)
	if err != nil {
		return false, err
	}

	entities, err := ReadKeyRing(data)
	if err != nil {
		return false, fmt.Errorf("key %s: %w", key.Name, err)
	}

	keyring, err := SerializePublic(entities)
	if err != nil {
		return false, fmt.Errorf("key %s: %w", key.Name, err)
	}

	path := r.KeyringPath(key)
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, keyring) {
		logrus.Debugf("Signing key %s already registered", key.Name)
		return false, nil
	}

	if err := utils.WriteFileAtomic(path, keyring, 0644); err != nil {
		return false, fmt.Errorf("failed to write keyring %s: %w", path, err)
	}

	logrus.Infof("Registered signing key %s (%s)", key.Name, strings.Join(Fingerprints(entities), ", "))
	return true, nil
}

// ReadKeyRing parses an armored or binary OpenPGP key ring
func ReadKeyRing(data []byte) (openpgp.EntityList, error) {
	// Try to parse as armored key first
	entityList, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		// Try as binary key
		entityList, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}

	if len(entityList) == 0 {
		return nil, fmt.Errorf("no keys found in key data")
	}

	return entityList, nil
}

// SerializePublic writes the public part of every entity as a binary keyring
func SerializePublic(entities openpgp.EntityList) ([]byte, error) {
	var buf bytes.Buffer
	for _, entity := range entities {
		if err := entity.Serialize(&buf); err != nil {
			return nil, fmt.Errorf("failed to serialize key: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Fingerprints returns the upper-case hex fingerprints of the primary keys
func Fingerprints(entities openpgp.EntityList) []string {
	out := make([]string, 0, len(entities))
	for _, entity := range entities {
		out = append(out, strings.ToUpper(hex.EncodeToString(entity.PrimaryKey.Fingerprint)))
	}
	return out
}
