package pkgfile

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/utils"
)

// ParseDeb parses a .deb file and extracts metadata
func ParseDeb(path string) (*models.Package, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	// Extract control file from the .deb
	control, err := extractControl(path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract control: %w", err)
	}

	// Parse control file
	pkg, err := ParseControl(control)
	if err != nil {
		return nil, fmt.Errorf("failed to parse control: %w", err)
	}
	if pkg.Name == "" {
		return nil, fmt.Errorf("control file of %s has no Package field", path)
	}

	pkg.Filename = path
	pkg.Size = info.Size()

	return pkg, nil
}

// extractControl extracts the control file from a .deb package
func extractControl(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// .deb files are ar archives
	// Skip the first 8 bytes ("!<arch>\n")
	header := make([]byte, 8)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, err
	}

	// Read ar archive entries
	for {
		// Read ar header (60 bytes)
		arHeader := make([]byte, 60)
		n, err := io.ReadFull(f, arHeader)
		if err == io.EOF {
			break
		}
		if err != nil || n != 60 {
			return nil, fmt.Errorf("failed to read ar header")
		}

		// Parse filename (first 16 bytes, space-padded)
		// Also trim trailing slash that ar format may include
		filename := strings.TrimRight(strings.TrimSpace(string(arHeader[0:16])), "/")

		// Parse file size (bytes 48-58, decimal)
		sizeStr := strings.TrimSpace(string(arHeader[48:58]))
		var size int64
		fmt.Sscanf(sizeStr, "%d", &size)

		// Check if this is the control archive
		if strings.HasPrefix(filename, "control.tar") {
			data := make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, err
			}
			return extractControlFromTar(data, filename)
		}

		// Skip this file's data
		if _, err := f.Seek(size, io.SeekCurrent); err != nil {
			return nil, err
		}

		// Align to 2-byte boundary
		if size%2 != 0 {
			f.Seek(1, io.SeekCurrent)
		}
	}

	return nil, fmt.Errorf("control.tar not found in package")
}

// extractControlFromTar extracts the control file from control.tar*
func extractControlFromTar(data []byte, filename string) ([]byte, error) {
	r, done, err := utils.Decompressor(filename, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer done()

	tarReader := tar.NewReader(r)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if header.Name == "./control" || header.Name == "control" {
			return io.ReadAll(tarReader)
		}
	}

	return nil, fmt.Errorf("control file not found in control.tar")
}

// ParseControl parses a single stanza in Debian control format. It reads
// both the control file inside a .deb and the output of `dpkg -s`.
func ParseControl(data []byte) (*models.Package, error) {
	pkg := &models.Package{
		Metadata: make(map[string]interface{}),
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var currentKey string
	var currentValue strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		// Handle continuation lines (start with space)
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			currentValue.WriteString("\n")
			currentValue.WriteString(strings.TrimSpace(line))
			continue
		}

		// Save previous key-value pair
		if currentKey != "" {
			setValue(pkg, currentKey, currentValue.String())
			currentKey = ""
		}

		// A blank line ends the stanza
		if strings.TrimSpace(line) == "" {
			if pkg.Name != "" {
				break
			}
			continue
		}

		// Parse new key-value pair
		if key, value, ok := strings.Cut(line, ":"); ok {
			currentKey = strings.TrimSpace(key)
			currentValue.Reset()
			currentValue.WriteString(strings.TrimSpace(value))
		}
	}

	// Save last key-value pair
	if currentKey != "" {
		setValue(pkg, currentKey, currentValue.String())
	}

	return pkg, scanner.Err()
}

// setValue sets a field in the Package based on the control file key
func setValue(pkg *models.Package, key, value string) {
	switch key {
	case "Package":
		pkg.Name = value
	case "Version":
		pkg.Version = value
	case "Architecture":
		pkg.Architecture = value
	default:
		// Store other fields (Status, Depends, ...) in metadata
		pkg.Metadata[key] = value
	}
}
