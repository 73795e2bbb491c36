// Package types defines shared enumerations and wire-level types used across
// the ETF holdings tracker.
package types

import "fmt"

// DateFormat is the canonical day-granular date format used on the wire and in logs.
const DateFormat = "2006-01-02"

// ChangeType classifies how a security's position moved between two snapshots.
type ChangeType string

const (
	// ChangeAdded marks a security present in the current snapshot but not the prior one.
	ChangeAdded ChangeType = "ADDED"
	// ChangeRemoved marks a security present in the prior snapshot but not the current one.
	ChangeRemoved ChangeType = "REMOVED"
	// ChangeIncreased marks a positive weight delta.
	ChangeIncreased ChangeType = "INCREASED"
	// ChangeDecreased marks a negative weight delta.
	ChangeDecreased ChangeType = "DECREASED"
	// ChangeSharesMoved marks an exactly-zero weight delta with a nonzero shares delta.
	ChangeSharesMoved ChangeType = "UNCHANGED_WEIGHT_SHARES_MOVED"
)

// RunStatus is the lifecycle state of a scrape run.
// The only legal transition is STARTED -> (SUCCEEDED | FAILED).
type RunStatus string

const (
	RunStarted   RunStatus = "STARTED"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// IsTerminal reports whether the status ends a run.
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// ParseRunStatus validates a run status string.
func ParseRunStatus(s string) (RunStatus, error) {
	switch RunStatus(s) {
	case RunStarted, RunSucceeded, RunFailed:
		return RunStatus(s), nil
	default:
		return "", fmt.Errorf("unknown run status: %q", s)
	}
}

// ServiceError is the structured error payload surfaced to API clients.
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
