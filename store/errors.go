package store

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to the failure signals surfaced by stores and caches.
const (
	TextCodeConstraintViolation   = "CONSTRAINT_VIOLATION"
	TextCodeLoadFailure           = "LOAD_FAILURE"
	TextCodeCapabilityUnsupported = "CAPABILITY_UNSUPPORTED"
	TextCodeWriteFailure          = "WRITE_FAILURE"
)

// NewConstraintViolation reports a write that conflicts with the stored state:
// create on an existing id, update or delete on an absent one.
func NewConstraintViolation(message, id string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithTextCode(TextCodeConstraintViolation).
		WithMetadata(map[string]any{"id": id})
}

// NewLoadFailure wraps a transport or decoding failure raised while loading key.
func NewLoadFailure(err error, key string) *goerrors.Error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "load failed").
		WithTextCode(TextCodeLoadFailure).
		WithMetadata(map[string]any{"key": key})
}

// NewWriteFailure wraps a transport or encoding failure raised by a write.
func NewWriteFailure(err error, op, id string) *goerrors.Error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, op+" failed").
		WithTextCode(TextCodeWriteFailure).
		WithMetadata(map[string]any{"id": id, "op": op})
}

// NewCapabilityUnsupported reports an operation the underlying store cannot serve.
func NewCapabilityUnsupported(op string) *goerrors.Error {
	return goerrors.New(op+" is not supported by this store", goerrors.CategoryOperation).
		WithTextCode(TextCodeCapabilityUnsupported).
		WithMetadata(map[string]any{"op": op})
}

// IsConstraintViolation reports whether err carries the constraint violation signal.
func IsConstraintViolation(err error) bool {
	return hasTextCode(err, TextCodeConstraintViolation)
}

// IsLoadFailure reports whether err carries the load failure signal.
func IsLoadFailure(err error) bool {
	return hasTextCode(err, TextCodeLoadFailure)
}

// IsWriteFailure reports whether err carries the write failure signal.
func IsWriteFailure(err error) bool {
	return hasTextCode(err, TextCodeWriteFailure)
}

// IsCapabilityUnsupported reports whether err carries the unsupported capability signal.
func IsCapabilityUnsupported(err error) bool {
	return hasTextCode(err, TextCodeCapabilityUnsupported)
}

func hasTextCode(err error, code string) bool {
	var e *goerrors.Error
	if !goerrors.As(err, &e) {
		return false
	}
	return e.TextCode == code
}
