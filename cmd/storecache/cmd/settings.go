package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/goliatone/go-store-cache/cache"
	"github.com/goliatone/go-store-cache/store"
	"github.com/goliatone/go-store-cache/store/bunstore"
	"github.com/goliatone/go-store-cache/store/codec"
	"github.com/goliatone/go-store-cache/store/memstore"
	"github.com/goliatone/go-store-cache/store/valkeystore"
)

// Settings is the effective CLI configuration.
type Settings struct {
	LogLevel string        `mapstructure:"log_level" json:"log_level"`
	Items    cacheSettings `mapstructure:"items" json:"items"`
	Index    cacheSettings `mapstructure:"index" json:"index"`
	Store    storeSettings `mapstructure:"store" json:"store"`
}

type cacheSettings struct {
	MaxEntries               int    `mapstructure:"max_entries" json:"max_entries"`
	ExpireAfterWriteSeconds  int64  `mapstructure:"expire_after_write_seconds" json:"expire_after_write_seconds"`
	RefreshAfterWriteSeconds int64  `mapstructure:"refresh_after_write_seconds" json:"refresh_after_write_seconds"`
	Driver                   string `mapstructure:"driver" json:"driver"`
	RetainOnAbsentRefresh    bool   `mapstructure:"retain_on_absent_refresh" json:"retain_on_absent_refresh"`
}

type storeSettings struct {
	Driver    string `mapstructure:"driver" json:"driver"`
	DSN       string `mapstructure:"dsn" json:"dsn"`
	Addr      string `mapstructure:"addr" json:"addr"`
	Namespace string `mapstructure:"namespace" json:"namespace"`
	Codec     string `mapstructure:"codec" json:"codec"`
}

func setDefaults(v *viper.Viper) {
	defaults := cache.DefaultConfig()
	for _, prefix := range []string{"items", "index"} {
		v.SetDefault(prefix+".max_entries", defaults.MaxEntries)
		v.SetDefault(prefix+".expire_after_write_seconds", int64(defaults.ExpireAfterWrite.Seconds()))
		v.SetDefault(prefix+".refresh_after_write_seconds", int64(defaults.RefreshAfterWrite.Seconds()))
		v.SetDefault(prefix+".driver", string(defaults.Driver))
		v.SetDefault(prefix+".retain_on_absent_refresh", false)
	}

	v.SetDefault("log_level", "info")
	v.SetDefault("store.driver", bunstore.DriverSQLite)
	v.SetDefault("store.dsn", "file::memory:?cache=shared")
	v.SetDefault("store.addr", "localhost:6379")
	v.SetDefault("store.namespace", "storecache")
	v.SetDefault("store.codec", "msgpack")
}

func loadSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode configuration: %w", err)
	}
	return s, nil
}

func (c cacheSettings) config() cache.Config {
	cfg := cache.FromSeconds(c.MaxEntries, c.ExpireAfterWriteSeconds, c.RefreshAfterWriteSeconds)
	if c.Driver != "" {
		cfg.Driver = cache.Driver(c.Driver)
	}
	cfg.RetainOnAbsentRefresh = c.RetainOnAbsentRefresh
	return cfg
}

// Options returns the validated cache options.
func (s Settings) Options() (cache.Options, error) {
	opts := cache.Options{Items: s.Items.config(), Index: s.Index.config()}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// openStore builds the backing store named by s. The returned function
// releases its resources, the codec included.
func openStore[T store.Identifiable](ctx context.Context, s storeSettings) (store.ReferenceExtendedStore[T], func() error, error) {
	payloads, ok := codec.ByName(s.Codec)
	if !ok {
		return nil, nil, fmt.Errorf("unknown codec %q", s.Codec)
	}

	switch strings.ToLower(s.Driver) {
	case "memory":
		return memstore.New[T](), releaser(payloads, nil), nil

	case bunstore.DriverSQLite, "sqlite", bunstore.DriverPostgres, "pg":
		db, err := bunstore.Open(strings.ToLower(s.Driver), s.DSN)
		if err != nil {
			releaser(payloads, nil)()
			return nil, nil, err
		}
		if err := bunstore.EnsureSchema(ctx, db); err != nil {
			releaser(payloads, db.Close)()
			return nil, nil, err
		}
		st := bunstore.New[T](db, bunstore.WithNamespace(s.Namespace), bunstore.WithCodec(payloads))
		return st, releaser(payloads, db.Close), nil

	case "valkey", "redis":
		client, err := valkeystore.Dial(ctx, s.Addr)
		if err != nil {
			releaser(payloads, nil)()
			return nil, nil, err
		}
		st := valkeystore.New[T](client, valkeystore.WithNamespace(s.Namespace), valkeystore.WithCodec(payloads))
		return st, releaser(payloads, func() error { client.Close(); return nil }), nil
	}

	releaser(payloads, nil)()
	return nil, nil, fmt.Errorf("unsupported store driver %q", s.Driver)
}

// releaser runs release, when set, and then closes payloads if it holds
// resources.
func releaser(payloads codec.Codec, release func() error) func() error {
	return func() error {
		var err error
		if release != nil {
			err = release()
		}
		if c, ok := payloads.(interface{ Close() }); ok {
			c.Close()
		}
		return err
	}
}
