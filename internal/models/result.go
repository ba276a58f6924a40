package models

import (
	"fmt"
	"time"
)

// StepStatus is the outcome category of a provisioning step
type StepStatus int

const (
	StatusSuccess StepStatus = iota
	StatusSkippedNoNetwork
	StatusSkippedMissingFile
	StatusToolError
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkippedNoNetwork:
		return "skipped (no network)"
	case StatusSkippedMissingFile:
		return "skipped (missing file)"
	case StatusToolError:
		return "tool error"
	default:
		return "unknown"
	}
}

// StepResult records what a single step (or sub-step) did. Steps never
// swallow failures of external tools: they report them here and let the
// caller decide how severe they are.
type StepResult struct {
	Step     string
	Status   StepStatus
	Detail   string
	Err      error
	Duration time.Duration
}

// OK reports whether the step succeeded or was skipped for an expected reason
func (r StepResult) OK() bool {
	return r.Status != StatusToolError
}

func (r StepResult) String() string {
	msg := fmt.Sprintf("%s: %s", r.Step, r.Status)
	if r.Detail != "" {
		msg += " - " + r.Detail
	}
	if r.Err != nil {
		msg += fmt.Sprintf(" (%v)", r.Err)
	}
	return msg
}

// Success builds a successful result
func Success(step, detail string) StepResult {
	return StepResult{Step: step, Status: StatusSuccess, Detail: detail}
}

// SkippedNoNetwork builds a result for a step skipped because the host is offline
func SkippedNoNetwork(step string) StepResult {
	return StepResult{Step: step, Status: StatusSkippedNoNetwork, Detail: "network unavailable"}
}

// SkippedMissingFile builds a result for a step skipped because an optional input is absent
func SkippedMissingFile(step, path string) StepResult {
	return StepResult{Step: step, Status: StatusSkippedMissingFile, Detail: path}
}

// ToolError builds a result for a failed external tool
func ToolError(step string, err error) StepResult {
	return StepResult{Step: step, Status: StatusToolError, Err: err}
}
