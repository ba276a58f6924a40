package models

// Package represents a package either installed on the host or read from a
// local package file
type Package struct {
	Name         string
	Version      string
	Architecture string

	// Filename is set for packages parsed from a local file
	Filename string
	Size     int64

	// Type-specific metadata
	Metadata map[string]interface{}
}
