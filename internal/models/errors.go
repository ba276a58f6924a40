package models

import "fmt"

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrInvalidConfig ErrorType = iota
	ErrNetwork
	ErrPackage
	ErrService
	ErrFileOp
	ErrDatabase
	ErrSiteDiscovery
	ErrTool
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrNetwork:
		return "Network"
	case ErrPackage:
		return "Package"
	case ErrService:
		return "Service"
	case ErrFileOp:
		return "FileOp"
	case ErrDatabase:
		return "Database"
	case ErrSiteDiscovery:
		return "SiteDiscovery"
	case ErrTool:
		return "Tool"
	default:
		return "Unknown"
	}
}

// ProvisionError represents an error during a provisioning step
type ProvisionError struct {
	Type    ErrorType
	Subject string
	Err     error
}

// Error implements the error interface
func (e *ProvisionError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Subject, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// NewError builds a ProvisionError
func NewError(t ErrorType, subject string, err error) *ProvisionError {
	return &ProvisionError{Type: t, Subject: subject, Err: err}
}
