package cacheinfra

import (
	"log/slog"
	"time"
)

// Clock supplies the current time to the cache.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option customizes the collaborators of a loading cache.
type Option func(*options)

type options struct {
	name    string
	logger  *slog.Logger
	metrics Metrics
	clock   Clock
}

func defaultOptions() options {
	return options{
		name:    "cache",
		logger:  slog.Default(),
		metrics: NoopMetrics{},
		clock:   systemClock{},
	}
}

// WithName labels log records and errors produced by the cache.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger used for refresh failures and lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
// The sturdyc driver keeps its own clock and ignores this option.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}
