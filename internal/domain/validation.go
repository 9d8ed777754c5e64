package domain

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is matched by every lookup miss
	ErrNotFound = errors.New("not found")
	// ErrInvalidPlan marks plans rejected before any mutation
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrMergeFailed marks failures during the apply phase
	ErrMergeFailed = errors.New("merge failed")
	// ErrSameRecord is returned when both sides of a merge are the same record
	ErrSameRecord = errors.New("cannot merge a record with itself")
	// ErrInvalidSelection is returned for selections naming an unknown source
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrMergeInProgress is returned when another merge already holds one of the ids
	ErrMergeInProgress = errors.New("merge already in progress")
)

// collectionNamePattern matches collection names: camelCase or snake_case identifiers
var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

// ValidateCollectionName validates a collection name
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q: must start with a letter and contain only [a-zA-Z0-9_]", name)
	}
	return nil
}

// ValidateRecordID validates a record identity
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("record id exceeds maximum length of 255 bytes")
	}
	return nil
}

// NotFoundError is returned when a record does not resolve
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s not found", e.Collection, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) match
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvalidPlanError is returned when a rewire plan fails validation
type InvalidPlanError struct {
	Collection string
	Reason     string
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid plan for collection %q: %s", e.Collection, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidPlan) match
func (e *InvalidPlanError) Is(target error) bool {
	return target == ErrInvalidPlan
}

// ApplyError wraps a failure during the write phase. Err is the original
// failure; RollbackErr is set when restoring prior state also failed.
type ApplyError struct {
	MergeID     string
	Err         error
	RollbackErr error
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("merge %s failed, nothing was changed: %v", e.MergeID, e.Err)
	if e.RollbackErr != nil {
		msg = fmt.Sprintf("merge %s failed: %v (rollback incomplete: %v)", e.MergeID, e.Err, e.RollbackErr)
	}
	return msg
}

// Unwrap exposes ErrMergeFailed and the original failure
func (e *ApplyError) Unwrap() []error {
	return []error{ErrMergeFailed, e.Err}
}
