// Package pkgfile reads metadata out of local package files (.deb and .rpm)
// so they can be reconciled against the host package database by name.
package pkgfile

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/ralt/vvvprov/internal/models"
)

// Type represents the format of a package file
type Type int

const (
	TypeUnknown Type = iota
	TypeDeb
	TypeRpm
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case TypeDeb:
		return "deb"
	case TypeRpm:
		return "rpm"
	default:
		return "unknown"
	}
}

// Magic bytes for package detection
var (
	// Debian packages start with "!<arch>\ndebian"
	debMagic = []byte("!<arch>\ndebian")

	// RPM packages start with 0xED 0xAB 0xEE 0xDB
	rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}
)

// Detect determines the package type based on magic bytes and file extension
func Detect(path string) (Type, error) {
	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	// An empty file reads zero bytes and falls back to the extension
	header := make([]byte, 64)
	n, _ := f.Read(header)
	header = header[:n]

	ext := filepath.Ext(path)

	if bytes.HasPrefix(header, debMagic) || ext == ".deb" {
		return TypeDeb, nil
	}

	if bytes.HasPrefix(header, rpmMagic) || ext == ".rpm" {
		return TypeRpm, nil
	}

	return TypeUnknown, nil
}

// Parse reads the metadata of a package file of any supported type
func Parse(path string, t Type) (*models.Package, error) {
	switch t {
	case TypeDeb:
		return ParseDeb(path)
	case TypeRpm:
		return ParseRpm(path)
	default:
		return nil, &UnsupportedError{Path: path}
	}
}

// UnsupportedError is returned for files that are not package files
type UnsupportedError struct {
	Path string
}

func (e *UnsupportedError) Error() string {
	return "unsupported package file: " + e.Path
}
