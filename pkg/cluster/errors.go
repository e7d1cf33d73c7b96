package cluster

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/convergeproj/converge/pkg/resource"
)

// The error taxonomy the executor keys its retry decisions on:
// conflicts and transport trouble are transient and retried with
// backoff; a missing resource is not retried until the desired state
// changes.

// NotFoundError indicates the resource does not exist in the cluster.
type NotFoundError struct {
	ID resource.ID
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("resource %s not found", e.ID)
}

// IsNotFound reports whether err (or its cause) says a resource is
// missing.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(NotFoundError)
	return ok
}

// ConflictError indicates the write lost an optimistic-concurrency
// race and can be retried against fresher state.
type ConflictError struct {
	ID  resource.ID
	Err error
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict writing %s: %v", e.ID, e.Err)
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(ConflictError)
	return ok
}

// TransientError wraps transport-level trouble (timeouts, refused
// connections, API server hiccups) that is worth retrying.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	return "transient cluster error: " + e.Err.Error()
}

func (e TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	switch errors.Cause(err).(type) {
	case TransientError, ConflictError:
		return true
	}
	return false
}
