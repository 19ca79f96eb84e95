package store

import (
	"log/slog"
)

// ErrorHandler decides how a backing store surfaces the outcomes of its
// operations. Returning nil from a read hook turns the outcome into absence.
type ErrorHandler interface {
	// OnNotFound is called when a read finds no record for id.
	OnNotFound(id string) error

	// OnDecodeError is called when a stored payload cannot be decoded.
	OnDecodeError(id string, err error) error

	// OnReadError is called when the backend fails while reading.
	OnReadError(op, id string, err error) error

	// OnWriteError is called when the backend fails while writing.
	OnWriteError(op, id string, err error) error

	// OnDeleteMissing is called when a delete targets an absent id.
	OnDeleteMissing(id string) error
}

// DefaultErrorHandler treats missing records as absence and every failure as a
// distinguishable error signal.
type DefaultErrorHandler struct{}

var _ ErrorHandler = DefaultErrorHandler{}

func (DefaultErrorHandler) OnNotFound(string) error { return nil }

func (DefaultErrorHandler) OnDecodeError(id string, err error) error {
	return NewLoadFailure(err, id)
}

func (DefaultErrorHandler) OnReadError(_ string, id string, err error) error {
	return NewLoadFailure(err, id)
}

func (DefaultErrorHandler) OnWriteError(op, id string, err error) error {
	return NewWriteFailure(err, op, id)
}

func (DefaultErrorHandler) OnDeleteMissing(id string) error {
	return NewConstraintViolation("id does not exist, cannot be deleted", id)
}

// LenientErrorHandler logs undecodable payloads and reports them as absent,
// so a single corrupt record does not fail bulk reads.
type LenientErrorHandler struct {
	DefaultErrorHandler
	Logger *slog.Logger
}

func (h LenientErrorHandler) OnDecodeError(id string, err error) error {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("dropping undecodable record", "id", id, "error", err)
	return nil
}
