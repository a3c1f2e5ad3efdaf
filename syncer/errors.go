/*
errors.go - Centralized error taxonomy for the sync engine

PURPOSE:
  All sync error classes in one place. The gateway translates backend
  responses into these sentinels; services and the processor branch on
  them to decide success, deferral, or hard failure.

ERROR CATEGORIES:
  1. Remote outcome errors - what the backend said (duplicate, not found,
     auth, unreachable)
  2. Local errors - missing local records, storage failures
  3. Engine errors - drain coordination

CONVERGENCE RULE:
  ErrDuplicateKey on a create and ErrNotFound on an update/delete mean
  the remote already matches the intended end state. AlreadyApplied()
  encodes that rule; callers treat it as success, not failure.

SEE ALSO:
  - processor.go: uses AlreadyApplied to settle queue items
  - remote/: produces GatewayError values wrapping these sentinels
*/
package syncer

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateKey is returned when the backend rejects a create because
	// the id already exists, typically a retried create that already landed.
	ErrDuplicateKey = errors.New("duplicate key on remote")

	// ErrNotFound is returned when the backend does not know the id,
	// typically because it was already deleted remotely or never synced.
	ErrNotFound = errors.New("record not found on remote")

	// ErrAuthRequired is returned when no valid session reached the backend.
	ErrAuthRequired = errors.New("authentication required")

	// ErrUnreachable is returned on network failure or a backend-side fault.
	ErrUnreachable = errors.New("remote unreachable")

	// ErrUnauthenticated is returned when no user id is resolvable locally.
	// Fatal to the mutation that needed it.
	ErrUnauthenticated = errors.New("no authenticated user")

	// ErrNotFoundLocal is returned when an update targets an entity missing
	// from the local store. Deletes treat the same condition as already done.
	ErrNotFoundLocal = errors.New("record not found in local store")

	// ErrStorageFailure is returned when local persistence fails. Surfaced,
	// never silently swallowed.
	ErrStorageFailure = errors.New("local storage failure")

	// ErrSyncInProgress reports that a drain is already running. ProcessAll
	// returns it only through Result.AlreadyRunning; the sentinel exists for
	// callers that want an error form.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrUnknownKind is returned when a queue item names an entity kind no
	// gateway is registered for.
	ErrUnknownKind = errors.New("no gateway for entity kind")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// GatewayError wraps a taxonomy sentinel with the remote call that produced
// it. Unwrap exposes the sentinel for errors.Is.
type GatewayError struct {
	Op         Operation
	Kind       EntityKind
	EntityID   string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s %s: %v (http %d: %s)",
			e.Op, e.Kind, e.EntityID, e.Err, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.EntityID, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// StorageError wraps a local persistence failure with the operation and key
// that failed. errors.Is(err, ErrStorageFailure) matches it.
type StorageError struct {
	Op  string // "save", "load", "delete"
	Key string // collection or entity key involved
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// AlreadyApplied reports whether err means the remote already reached the
// state op intended: a duplicate key answering a create, or not-found
// answering an update or delete. Both settle the item as success.
func AlreadyApplied(op Operation, err error) bool {
	switch op {
	case OpCreate:
		return errors.Is(err, ErrDuplicateKey)
	case OpUpdate, OpDelete:
		return errors.Is(err, ErrNotFound)
	}
	return false
}

// IsDeferrable reports whether err is worth retrying later through the
// queue rather than failing the mutation outright.
func IsDeferrable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrAuthRequired)
}

// IsNotFound reports a remote not-found outcome.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDuplicateKey reports a remote unique-constraint outcome.
func IsDuplicateKey(err error) bool { return errors.Is(err, ErrDuplicateKey) }

// IsStorageFailure reports a local persistence failure.
func IsStorageFailure(err error) bool { return errors.Is(err, ErrStorageFailure) }
