package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("validation failed")

	// ErrSessionNotFound is returned for unknown or already evicted sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRemoteLog marks a failed call to the remote job-log API.
	ErrRemoteLog = errors.New("remote log call failed")

	// ErrImportFormat is returned when an import payload is not an array of records.
	ErrImportFormat = errors.New("import payload is not a history array")

	// ErrItemAlreadyProcessed is returned when an item outcome was already recorded.
	ErrItemAlreadyProcessed = errors.New("item already processed")

	// ErrUnknownItem is returned for an item URL that is not part of the session selection.
	ErrUnknownItem = errors.New("item not selected in session")

	// ErrRecordNotFound is returned when a history record is absent or was evicted.
	ErrRecordNotFound = errors.New("history record not found")
)

// ValidationError describes which field of a request was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RemoteLogError wraps a failure of the remote job-log API.
type RemoteLogError struct {
	Op    string // create or update
	LogID string
	Err   error
}

func (e *RemoteLogError) Error() string {
	if e.LogID == "" {
		return fmt.Sprintf("remote log %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote log %s %s: %v", e.Op, e.LogID, e.Err)
}

func (e *RemoteLogError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrRemoteLog) succeed.
func (e *RemoteLogError) Is(target error) bool {
	return target == ErrRemoteLog
}
