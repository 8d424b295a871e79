package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrPreconditionFailed is returned when an operation is attempted on a job
	// that is not in the status the operation requires.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrEngineFailure is returned when the generation engine fails or times out.
	ErrEngineFailure = errors.New("engine failure")
	// ErrStoreFailure is returned when the artifact store can't read or write.
	ErrStoreFailure = errors.New("artifact store failure")
	// ErrLedgerUnavailable is returned when the job ledger persistence layer fails.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)
