package cache

import "sync/atomic"

// Stats counts cache events. The zero value is ready to use and safe for
// concurrent use.
type Stats struct {
	hits            atomic.Int64
	misses          atomic.Int64
	loads           atomic.Int64
	absentLoads     atomic.Int64
	loadFailures    atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64
	evictions       atomic.Int64
	expirations     atomic.Int64
}

// StatsSnapshot is a point in time copy of Stats.
type StatsSnapshot struct {
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	Loads           int64 `json:"loads"`
	AbsentLoads     int64 `json:"absent_loads"`
	LoadFailures    int64 `json:"load_failures"`
	Refreshes       int64 `json:"refreshes"`
	RefreshFailures int64 `json:"refresh_failures"`
	Evictions       int64 `json:"evictions"`
	Expirations     int64 `json:"expirations"`
}

// HitRatio returns hits over lookups, or 0 before the first lookup.
func (s StatsSnapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:            s.hits.Load(),
		Misses:          s.misses.Load(),
		Loads:           s.loads.Load(),
		AbsentLoads:     s.absentLoads.Load(),
		LoadFailures:    s.loadFailures.Load(),
		Refreshes:       s.refreshes.Load(),
		RefreshFailures: s.refreshFailures.Load(),
		Evictions:       s.evictions.Load(),
		Expirations:     s.expirations.Load(),
	}
}

func (s *Stats) Hit()  { s.hits.Add(1) }
func (s *Stats) Miss() { s.misses.Add(1) }

func (s *Stats) Load(found bool) {
	s.loads.Add(1)
	if !found {
		s.absentLoads.Add(1)
	}
}

func (s *Stats) LoadFailure()    { s.loadFailures.Add(1) }
func (s *Stats) Refresh()        { s.refreshes.Add(1) }
func (s *Stats) RefreshFailure() { s.refreshFailures.Add(1) }
func (s *Stats) Eviction()       { s.evictions.Add(1) }
func (s *Stats) Expire()         { s.expirations.Add(1) }
