package bundle

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBundleNotFound is returned for operations on an unknown bundle id.
var ErrBundleNotFound = errors.New("bundle not found")

// ValidationError is a malformed-input error. It never triggers rollback:
// validation happens before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CompensationFailure is one resource that could not be cleaned up.
type CompensationFailure struct {
	Kind       RefKind
	ExternalID string
	Err        error
}

// CompensationError aggregates rollback failures. It is never fatal on its
// own; it travels alongside the primary error for operator visibility.
type CompensationError struct {
	Failures []CompensationFailure
}

func (e *CompensationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s %s: %v", f.Kind, f.ExternalID, f.Err)
	}
	return "cleanup failed for: " + strings.Join(parts, "; ")
}

// ProvisionError is a mid-pipeline failure together with the outcome of the
// compensating rollback. The primary error is never substituted by
// compensation problems; they are appended.
type ProvisionError struct {
	// Step names the pipeline step that failed.
	Step string
	// Err is the primary failure.
	Err error
	// Compensated lists resource kinds that were successfully deleted
	// during rollback.
	Compensated []RefKind
	// Compensation is non-nil when one or more rollback deletions failed.
	Compensation *CompensationError
}

func (e *ProvisionError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Step, e.Err)
	if len(e.Compensated) > 0 {
		kinds := make([]string, len(e.Compensated))
		for i, k := range e.Compensated {
			kinds[i] = string(k)
		}
		msg += " (cleaned up: " + strings.Join(kinds, ", ") + ")"
	}
	if e.Compensation != nil {
		msg += " (" + e.Compensation.Error() + ")"
	}
	return msg
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}
