package pkgfile

import (
	"fmt"
	"os"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/sassoftware/go-rpmutils"
)

// ParseRpm parses an RPM file and extracts metadata
func ParseRpm(path string) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// Read RPM header
	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read RPM: %w", err)
	}

	pkg := &models.Package{
		Name:         getStringTag(rpm, rpmutils.NAME),
		Version:      getStringTag(rpm, rpmutils.VERSION),
		Architecture: getStringTag(rpm, rpmutils.ARCH),
		Filename:     path,
		Size:         info.Size(),
		Metadata:     make(map[string]interface{}),
	}
	if pkg.Name == "" {
		return nil, fmt.Errorf("RPM header of %s has no name", path)
	}

	pkg.Metadata["Release"] = getStringTag(rpm, rpmutils.RELEASE)

	return pkg, nil
}

// getStringTag safely gets a string tag from RPM
func getStringTag(rpm *rpmutils.Rpm, tag int) string {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return ""
	}

	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	default:
		return fmt.Sprintf("%v", v)
	}

	return ""
}
