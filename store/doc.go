// Package store defines the contracts consumed by the caching decorators.
//
// # Contracts
//
// Store is the plain CRUD capability set: Create fails if the id exists, Update
// and Delete fail if it is absent, Get reports absence with a false flag rather
// than an error, GetMany silently omits absent ids and List returns everything.
//
// ReferenceExtendedStore adds a many-to-many secondary index: CreateWithRefs
// associates an item with any number of reference ids, and GetByRefID returns the
// items currently associated with one of them.
//
// # Failure Signals
//
// Failures are *errors.Error values from github.com/goliatone/go-errors and are
// told apart by their text code:
//
//   - CONSTRAINT_VIOLATION: create on an existing id, update or delete on an absent one
//   - LOAD_FAILURE: transport or decoding failure while reading
//   - WRITE_FAILURE: transport or encoding failure while writing
//   - CAPABILITY_UNSUPPORTED: reference lookups against a store without references
//
// Use IsConstraintViolation, IsLoadFailure, IsWriteFailure and
// IsCapabilityUnsupported to classify them. Backing store adapters route their
// outcomes through an ErrorHandler so callers can adjust the policy, e.g.
// LenientErrorHandler turns undecodable payloads into absence.
package store
