package lib

import (
	"errors"

	"github.com/slok/infraware/internal/model"
)

var (
	// ErrNotFound is returned when a job or artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a job with the same ID already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned on invalid input, e.g. a too short prompt.
	ErrNotValid = errors.New("not valid")
	// ErrPreconditionFailed is returned when the job is not in the status the
	// operation requires, e.g. confirming a job twice.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrEngineFailure is returned when the generation engine fails.
	ErrEngineFailure = errors.New("engine failure")
	// ErrStoreFailure is returned when the artifact store can't be read or written.
	ErrStoreFailure = errors.New("artifact store failure")
	// ErrLedgerUnavailable is returned when the job ledger can't be reached.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

var errorMappings = []struct {
	internal error
	public   error
}{
	{model.ErrNotFound, ErrNotFound},
	{model.ErrAlreadyExists, ErrAlreadyExists},
	{model.ErrNotValid, ErrNotValid},
	{model.ErrPreconditionFailed, ErrPreconditionFailed},
	{model.ErrEngineFailure, ErrEngineFailure},
	{model.ErrStoreFailure, ErrStoreFailure},
	{model.ErrLedgerUnavailable, ErrLedgerUnavailable},
}

// mapError maps internal errors to the public sentinels keeping the original message.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	for _, m := range errorMappings {
		if isInternalError(err, m.internal) {
			return joinErrors(err, m.public)
		}
	}

	return err
}

func isInternalError(err, target error) bool {
	for {
		if err == target {
			return true
		}
		unwrapped := unwrapSingle(err)
		if unwrapped == nil {
			return false
		}
		err = unwrapped
	}
}

func unwrapSingle(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
