package cacheinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// TextCodeInvalidConfig marks configuration validation failures.
const TextCodeInvalidConfig = "INVALID_CONFIG"

// Driver selects the engine backing a loading cache.
type Driver string

const (
	// DriverNative is the built-in sharded LRU engine with explicit flight tracking.
	DriverNative Driver = "native"
	// DriverSturdyc delegates storage and refreshes to github.com/viccon/sturdyc.
	DriverSturdyc Driver = "sturdyc"
)

// Config holds the tuning knobs of a loading cache.
type Config struct {
	// MaxEntries is the approximate ceiling on resident entries.
	// Must be greater than 0. Default: 10000
	MaxEntries int

	// ExpireAfterWrite is the hard expiry measured from the last successful
	// write of an entry. Expired entries are never served.
	// Must be greater than 0. Default: 30m
	ExpireAfterWrite time.Duration

	// RefreshAfterWrite is the age after which a read triggers an asynchronous
	// reload while the current value keeps being served. Zero disables refresh.
	// Default: 60s
	RefreshAfterWrite time.Duration

	// NumShards is rounded up to a power of two. Zero picks a value from
	// MaxEntries so every shard keeps a meaningful LRU window.
	NumShards int

	// EvictionInterval enables a janitor sweeping expired entries. Zero disables it.
	EvictionInterval time.Duration

	// RefreshConcurrency bounds concurrent background refreshes. Refreshes that
	// find no free slot are skipped until the next stale read. Default: 64
	RefreshConcurrency int

	// BulkConcurrency bounds concurrent miss loads issued by GetAll. Default: 16
	BulkConcurrency int

	// RetainOnAbsentRefresh keeps the stale value until hard expiry when a
	// refresh finds the record gone. By default the entry is evicted.
	RetainOnAbsentRefresh bool

	// Driver selects the engine. Empty means DriverNative.
	Driver Driver
}

// DefaultConfig returns a Config with the defaults used by the caching decorators.
func DefaultConfig() Config {
	return Config{
		MaxEntries:         10000,
		ExpireAfterWrite:   30 * time.Minute,
		RefreshAfterWrite:  60 * time.Second,
		RefreshConcurrency: 64,
		BulkConcurrency:    16,
		Driver:             DriverNative,
	}
}

// Validate checks the configuration and returns a validation *errors.Error
// with the INVALID_CONFIG text code listing every offending field.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.MaxEntries, validation.Required, validation.Min(1)),
		validation.Field(&c.ExpireAfterWrite, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RefreshAfterWrite, validation.Min(time.Duration(0))),
		validation.Field(&c.NumShards, validation.Min(0)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.RefreshConcurrency, validation.Min(0)),
		validation.Field(&c.BulkConcurrency, validation.Min(0)),
		validation.Field(&c.Driver, validation.In(DriverNative, DriverSturdyc)),
		validation.Field(&c.RetainOnAbsentRefresh,
			validation.When(c.Driver == DriverSturdyc, validation.Empty.Error("is not supported by the sturdyc driver"))),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid cache configuration").
			WithTextCode(TextCodeInvalidConfig)
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RefreshConcurrency == 0 {
		c.RefreshConcurrency = def.RefreshConcurrency
	}
	if c.BulkConcurrency == 0 {
		c.BulkConcurrency = def.BulkConcurrency
	}
	if c.Driver == "" {
		c.Driver = DriverNative
	}
	return c
}

// refreshEnabled reports whether entries can become stale before they expire.
func (c Config) refreshEnabled() bool {
	return c.RefreshAfterWrite > 0 && c.RefreshAfterWrite < c.ExpireAfterWrite
}

const (
	defaultShards      = 64
	minEntriesPerShard = 32
)

// shardCount returns a power of two no larger than needed to give each shard
// minEntriesPerShard entries, unless NumShards asks for more explicitly.
func (c Config) shardCount() int {
	n := c.NumShards
	floor := 1
	if n <= 0 {
		n = defaultShards
		floor = minEntriesPerShard
	}
	n = nextPowerOfTwo(n)
	for n > 1 && c.MaxEntries/n < floor {
		n >>= 1
	}
	return n
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
