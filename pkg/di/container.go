package di

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-store-cache/cache"
	"github.com/goliatone/go-store-cache/store"
	"github.com/goliatone/go-store-cache/store/repostore"
	"github.com/goliatone/go-store-cache/storecache"
)

// Container builds caching stores that share one cache configuration and
// logger. It keeps track of every store it builds so Close can stop their
// background work.
type Container struct {
	options cache.Options
	logger  *slog.Logger
	clock   cache.Clock

	mu      sync.Mutex
	closers []io.Closer
}

// Option customizes a Container.
type Option func(*Container)

// WithLogger sets the logger handed to every store.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock handed to every store.
func WithClock(clock cache.Clock) Option {
	return func(c *Container) { c.clock = clock }
}

// NewContainer validates options and returns a container using them.
func NewContainer(options cache.Options, opts ...Option) (*Container, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	c := &Container{options: options, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewContainerWithDefaults returns a container using cache.DefaultOptions.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(cache.DefaultOptions())
}

// Options returns the cache options used by this container.
func (c *Container) Options() cache.Options {
	return c.options
}

// Close closes every store built by the container.
func (c *Container) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for _, closer := range closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

func (c *Container) track(closer io.Closer) {
	c.mu.Lock()
	c.closers = append(c.closers, closer)
	c.mu.Unlock()
}

func (c *Container) storeOptions(name string) []storecache.Option {
	opts := []storecache.Option{storecache.WithLogger(c.logger), storecache.WithName(name)}
	if c.clock != nil {
		opts = append(opts, storecache.WithClock(c.clock))
	}
	return opts
}

// NewCachingStore wraps delegate with the container's item cache options.
// An empty name derives one from T.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachingStore[User](container, userStore, "users")
func NewCachingStore[T store.Identifiable](c *Container, delegate store.Store[T], name string) (*storecache.CachingStore[T], error) {
	s, err := storecache.NewCachingStore(delegate, c.options.Items, c.storeOptions(name)...)
	if err != nil {
		return nil, err
	}
	c.track(s)
	return s, nil
}

// NewRefCachingStore wraps delegate with the container's item and index
// cache options.
func NewRefCachingStore[T store.Identifiable](c *Container, delegate store.ReferenceExtendedStore[T], name string) (*storecache.RefCachingStore[T], error) {
	s, err := storecache.NewRefCachingStore(delegate, c.options, c.storeOptions(name)...)
	if err != nil {
		return nil, err
	}
	c.track(s)
	return s, nil
}

// NewCachedRepository puts an item cache in front of a go-repository-bun
// repository.
func NewCachedRepository[T store.Identifiable](c *Container, base repository.Repository[T], name string, opts ...repostore.Option) (*storecache.CachingStore[T], error) {
	return NewCachingStore[T](c, repostore.New(base, opts...), name)
}
