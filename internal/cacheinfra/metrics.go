package cacheinfra

// Metrics receives the lifecycle events of a loading cache.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// Hit is called when a read is served from a resident entry.
	Hit()

	// Miss is called when a read finds no usable entry and has to load.
	Miss()

	// Load is called after a miss load finishes, with found reporting presence.
	Load(found bool)

	// LoadFailure is called when a miss load fails.
	LoadFailure()

	// Refresh is called when a background refresh is started.
	Refresh()

	// RefreshFailure is called when a background refresh fails.
	RefreshFailure()

	// Eviction is called when an entry is dropped to honor MaxEntries.
	Eviction()

	// Expire is called when an entry is dropped because it passed ExpireAfterWrite.
	Expire()
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit()            {}
func (NoopMetrics) Miss()           {}
func (NoopMetrics) Load(bool)       {}
func (NoopMetrics) LoadFailure()    {}
func (NoopMetrics) Refresh()        {}
func (NoopMetrics) RefreshFailure() {}
func (NoopMetrics) Eviction()       {}
func (NoopMetrics) Expire()         {}
