package testsupport

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-store-cache/store"
)

// Method names recorded by CountingStore.
const (
	MethodCreate         = "Create"
	MethodUpdate         = "Update"
	MethodDelete         = "Delete"
	MethodGet            = "Get"
	MethodGetMany        = "GetMany"
	MethodList           = "List"
	MethodCreateWithRefs = "CreateWithRefs"
	MethodGetByRefID     = "GetByRefID"
)

// CountingStore wraps a reference store, counting calls per method.
type CountingStore[T store.Identifiable] struct {
	inner store.ReferenceExtendedStore[T]
	calls *xsync.MapOf[string, *xsync.Counter]

	// Hook runs before every delegated call. A non-nil error is returned
	// without reaching the wrapped store. It can also block to hold a call
	// in flight. Set it before the store is shared.
	Hook func(method, key string) error
}

var _ store.ReferenceExtendedStore[TestData] = (*CountingStore[TestData])(nil)

// NewCountingStore wraps inner.
func NewCountingStore[T store.Identifiable](inner store.ReferenceExtendedStore[T]) *CountingStore[T] {
	return &CountingStore[T]{
		inner: inner,
		calls: xsync.NewMapOf[string, *xsync.Counter](),
	}
}

// Calls returns how many times method was invoked.
func (s *CountingStore[T]) Calls(method string) int {
	c, ok := s.calls.Load(method)
	if !ok {
		return 0
	}
	return int(c.Value())
}

// Reset zeroes every counter.
func (s *CountingStore[T]) Reset() {
	s.calls.Range(func(_ string, c *xsync.Counter) bool {
		c.Reset()
		return true
	})
}

func (s *CountingStore[T]) record(method, key string) error {
	c, _ := s.calls.LoadOrCompute(method, xsync.NewCounter)
	c.Inc()
	if s.Hook != nil {
		return s.Hook(method, key)
	}
	return nil
}

func (s *CountingStore[T]) Create(ctx context.Context, item T) error {
	if err := s.record(MethodCreate, item.GetID()); err != nil {
		return err
	}
	return s.inner.Create(ctx, item)
}

func (s *CountingStore[T]) Update(ctx context.Context, item T) error {
	if err := s.record(MethodUpdate, item.GetID()); err != nil {
		return err
	}
	return s.inner.Update(ctx, item)
}

func (s *CountingStore[T]) Delete(ctx context.Context, id string) error {
	if err := s.record(MethodDelete, id); err != nil {
		return err
	}
	return s.inner.Delete(ctx, id)
}

func (s *CountingStore[T]) Get(ctx context.Context, id string) (T, bool, error) {
	if err := s.record(MethodGet, id); err != nil {
		var zero T
		return zero, false, err
	}
	return s.inner.Get(ctx, id)
}

func (s *CountingStore[T]) GetMany(ctx context.Context, ids []string) (map[string]T, error) {
	if err := s.record(MethodGetMany, ""); err != nil {
		return nil, err
	}
	return s.inner.GetMany(ctx, ids)
}

func (s *CountingStore[T]) List(ctx context.Context) ([]T, error) {
	if err := s.record(MethodList, ""); err != nil {
		return nil, err
	}
	return s.inner.List(ctx)
}

func (s *CountingStore[T]) CreateWithRefs(ctx context.Context, item T, refIDs []string) error {
	if err := s.record(MethodCreateWithRefs, item.GetID()); err != nil {
		return err
	}
	return s.inner.CreateWithRefs(ctx, item, refIDs)
}

func (s *CountingStore[T]) GetByRefID(ctx context.Context, refID string) ([]T, error) {
	if err := s.record(MethodGetByRefID, refID); err != nil {
		return nil, err
	}
	return s.inner.GetByRefID(ctx, refID)
}
