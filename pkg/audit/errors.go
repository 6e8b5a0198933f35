package audit

import "errors"

var (
	// ErrInvalidPolicy indicates a policy could not be registered
	ErrInvalidPolicy = errors.New("invalid audit policy")

	// ErrUnknownAccessor indicates a metadata accessor the entity does not support
	ErrUnknownAccessor = errors.New("unknown metadata accessor")

	// ErrRecordValidation indicates record validation failed
	ErrRecordValidation = errors.New("audit record validation failed")

	// ErrCaptureFailed marks a create or destroy record that could not be persisted.
	// The primary mutation has already succeeded when this is returned.
	ErrCaptureFailed = errors.New("audit record capture failed")

	// ErrStorageNotAvailable indicates the storage backend is unavailable
	ErrStorageNotAvailable = errors.New("storage backend is unavailable")

	// ErrStorageTimeout indicates a storage operation timed out
	ErrStorageTimeout = errors.New("storage operation timed out")

	// ErrDuplicateRecord indicates a record with the same id was already stored
	ErrDuplicateRecord = errors.New("audit record already stored")

	// ErrInvalidCursor indicates the pagination cursor does not reference a known record
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)
