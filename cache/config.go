package cache

import (
	"time"

	"github.com/goliatone/go-store-cache/internal/cacheinfra"
)

// Driver selects the engine behind a cache.
type Driver string

const (
	DriverNative  Driver = Driver(cacheinfra.DriverNative)
	DriverSturdyc Driver = Driver(cacheinfra.DriverSturdyc)
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	MaxEntries            int
	ExpireAfterWrite      time.Duration
	RefreshAfterWrite     time.Duration
	NumShards             int
	EvictionInterval      time.Duration
	RefreshConcurrency    int
	BulkConcurrency       int
	RetainOnAbsentRefresh bool
	Driver                Driver
}

// DefaultConfig returns a Config populated with the defaults:
// 10000 entries, 30 minute expiry and 60 second refresh.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// FromSeconds builds a Config from the recognized option names
// maxEntries, expireAfterWriteSeconds and refreshAfterWriteSeconds.
// Zero values keep the defaults.
func FromSeconds(maxEntries int, expireAfterWriteSeconds, refreshAfterWriteSeconds int64) Config {
	cfg := DefaultConfig()
	if maxEntries != 0 {
		cfg.MaxEntries = maxEntries
	}
	if expireAfterWriteSeconds != 0 {
		cfg.ExpireAfterWrite = time.Duration(expireAfterWriteSeconds) * time.Second
	}
	if refreshAfterWriteSeconds != 0 {
		cfg.RefreshAfterWrite = time.Duration(refreshAfterWriteSeconds) * time.Second
	}
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// Options configures the two caches of a reference caching store.
type Options struct {
	// Items configures the id -> item cache.
	Items Config
	// Index configures the ref id -> ids cache.
	Index Config
}

// DefaultOptions returns Options with DefaultConfig for both caches.
func DefaultOptions() Options {
	return Options{Items: DefaultConfig(), Index: DefaultConfig()}
}

// Validate checks both configurations.
func (o Options) Validate() error {
	if err := o.Items.Validate(); err != nil {
		return err
	}
	return o.Index.Validate()
}

// ConsistencyWindow bounds how long the item and index caches may disagree:
// the larger of the two refresh thresholds.
func (o Options) ConsistencyWindow() time.Duration {
	return max(o.Items.RefreshAfterWrite, o.Index.RefreshAfterWrite)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		MaxEntries:            c.MaxEntries,
		ExpireAfterWrite:      c.ExpireAfterWrite,
		RefreshAfterWrite:     c.RefreshAfterWrite,
		NumShards:             c.NumShards,
		EvictionInterval:      c.EvictionInterval,
		RefreshConcurrency:    c.RefreshConcurrency,
		BulkConcurrency:       c.BulkConcurrency,
		RetainOnAbsentRefresh: c.RetainOnAbsentRefresh,
		Driver:                cacheinfra.Driver(c.Driver),
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		MaxEntries:            cfg.MaxEntries,
		ExpireAfterWrite:      cfg.ExpireAfterWrite,
		RefreshAfterWrite:     cfg.RefreshAfterWrite,
		NumShards:             cfg.NumShards,
		EvictionInterval:      cfg.EvictionInterval,
		RefreshConcurrency:    cfg.RefreshConcurrency,
		BulkConcurrency:       cfg.BulkConcurrency,
		RetainOnAbsentRefresh: cfg.RetainOnAbsentRefresh,
		Driver:                Driver(cfg.Driver),
	}
}
