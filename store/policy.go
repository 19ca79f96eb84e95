package store

import "time"

// ExpirationFunc returns how long item stays readable after a write. A
// non-positive duration keeps the item until it is deleted.
type ExpirationFunc func(item Identifiable) time.Duration

// ValidatorFunc reports whether a stored item may be served. Stores treat an
// invalid item as absent.
type ValidatorFunc func(item Identifiable) bool

// TTL returns the expiration for item, or zero when fn is nil.
func (fn ExpirationFunc) TTL(item Identifiable) time.Duration {
	if fn == nil {
		return 0
	}
	return max(fn(item), 0)
}

// Valid reports whether item passes fn. A nil validator accepts everything.
func (fn ValidatorFunc) Valid(item Identifiable) bool {
	return fn == nil || fn(item)
}
