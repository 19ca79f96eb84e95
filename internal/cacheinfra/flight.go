package cacheinfra

import "context"

// flight is one in-progress load for a key. Every concurrent caller of the
// same key shares its outcome.
type flight[V any] struct {
	done  chan struct{}
	value V
	found bool
	err   error
}

func newFlight[V any]() *flight[V] {
	return &flight[V]{done: make(chan struct{})}
}

// wait blocks until the flight lands or ctx is done. Abandoning a flight does
// not cancel it.
func (f *flight[V]) wait(ctx context.Context) (V, bool, error) {
	select {
	case <-f.done:
		return f.value, f.found, f.err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}

func (f *flight[V]) land(value V, found bool, err error) {
	f.value = value
	f.found = found
	f.err = err
	close(f.done)
}
