package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-store-cache/pkg/testsupport"
	"github.com/goliatone/go-store-cache/store"
)

// testMetrics counts engine events.
type testMetrics struct {
	hits, misses, loads, loadFailures atomic.Int64
	refreshes, refreshFailures        atomic.Int64
	evictions, expirations            atomic.Int64
}

func (m *testMetrics) Hit()            { m.hits.Add(1) }
func (m *testMetrics) Miss()           { m.misses.Add(1) }
func (m *testMetrics) Load(bool)       { m.loads.Add(1) }
func (m *testMetrics) LoadFailure()    { m.loadFailures.Add(1) }
func (m *testMetrics) Refresh()        { m.refreshes.Add(1) }
func (m *testMetrics) RefreshFailure() { m.refreshFailures.Add(1) }
func (m *testMetrics) Eviction()       { m.evictions.Add(1) }
func (m *testMetrics) Expire()         { m.expirations.Add(1) }

// source is a mutable backing map with a call counter.
type source struct {
	mu    sync.Mutex
	data  map[string]string
	err   error
	calls atomic.Int32
}

func newSource(kv ...string) *source {
	s := &source{data: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		s.data[kv[i]] = kv[i+1]
	}
	return s
}

func (s *source) set(key, value string) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

func (s *source) remove(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

func (s *source) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *source) load(ctx context.Context, key string) (string, bool, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, cfg Config, src *source) (*LoadingCache[string], *testsupport.Clock, *testMetrics) {
	t.Helper()

	clock := testsupport.NewClock(epoch)
	metrics := &testMetrics{}
	c, err := NewLoadingCache(cfg, src.load, WithClock(clock), WithMetrics(metrics), WithName("test"))
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, clock, metrics
}

func TestLoadingCache_MissLoadsOnce(t *testing.T) {
	ctx := context.Background()
	src := newSource("a", "1")
	c, _, metrics := newTestCache(t, DefaultConfig(), src)

	for i := 0; i < 3; i++ {
		v, ok, err := c.Get(ctx, "a")
		if err != nil || !ok || v != "1" {
			t.Fatalf("expected (1, true, nil), got (%q, %v, %v)", v, ok, err)
		}
	}

	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected 1 load, got %d", got)
	}
	if got := metrics.hits.Load(); got != 2 {
		t.Errorf("expected 2 hits, got %d", got)
	}
}

func TestLoadingCache_AbsenceIsNotCached(t *testing.T) {
	ctx := context.Background()
	src := newSource()
	c, _, _ := newTestCache(t, DefaultConfig(), src)

	for i := 0; i < 3; i++ {
		_, ok, err := c.Get(ctx, "missing")
		if err != nil || ok {
			t.Fatalf("expected absence, got ok=%v err=%v", ok, err)
		}
	}

	if got := src.calls.Load(); got != 3 {
		t.Errorf("expected every get to reach the source, got %d loads", got)
	}
	if c.Len() != 0 {
		t.Errorf("expected no entries, got %d", c.Len())
	}
}

func TestLoadingCache_SingleFlight(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	loader := func(ctx context.Context, key string) (string, bool, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		return "v-" + key, true, nil
	}

	c, err := NewLoadingCache(DefaultConfig(), loader)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	const callers = 50
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := c.Get(ctx, "k")
			if err != nil || !ok {
				t.Errorf("unexpected result ok=%v err=%v", ok, err)
				return
			}
			results <- v
		}()
	}

	<-entered
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for v := range results {
		if v != "v-k" {
			t.Errorf("expected v-k, got %q", v)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 loader call, got %d", got)
	}
}

func TestLoadingCache_WaiterCanAbandon(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	loader := func(ctx context.Context, key string) (string, bool, error) {
		close(entered)
		<-release
		return "v", true, nil
	}

	c, err := NewLoadingCache(DefaultConfig(), loader)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = c.Get(context.Background(), "k")
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	close(release)
	<-done

	v, ok, err := c.Get(context.Background(), "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("expected the abandoned flight to land, got (%q, %v, %v)", v, ok, err)
	}
}

func TestLoadingCache_CancelledLeaderDoesNotFailWaiters(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	loader := func(ctx context.Context, key string) (string, bool, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		select {
		case <-release:
			return "v", true, nil
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	c, err := NewLoadingCache(DefaultConfig(), loader)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := c.Get(leaderCtx, "k")
		leaderErr <- err
	}()
	<-entered

	type result struct {
		v   string
		ok  bool
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		v, ok, err := c.Get(context.Background(), "k")
		waiter <- result{v, ok, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancelled caller to get context.Canceled, got %v", err)
	}

	close(release)
	got := <-waiter
	if got.err != nil || !got.ok || got.v != "v" {
		t.Errorf("expected waiter to get (v, true, nil), got (%q, %v, %v)", got.v, got.ok, got.err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 loader call, got %d", n)
	}
}

func TestLoadingCache_RefreshAfterWrite(t *testing.T) {
	ctx := context.Background()
	src := newSource("a", "v1")
	cfg := DefaultConfig()
	cfg.RefreshAfterWrite = time.Minute
	c, clock, metrics := newTestCache(t, cfg, src)

	if v, _, _ := c.Get(ctx, "a"); v != "v1" {
		t.Fatalf("expected v1, got %q", v)
	}
	src.set("a", "v2")

	clock.Advance(30 * time.Second)
	if v, _, _ := c.Get(ctx, "a"); v != "v1" {
		t.Errorf("expected stale v1 within refresh threshold, got %q", v)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected no reload within threshold, got %d loads", got)
	}

	clock.Advance(31 * time.Second)
	if v, _, _ := c.Get(ctx, "a"); v != "v1" {
		t.Errorf("expected stale v1 served while refreshing, got %q", v)
	}

	testsupport.Eventually(t, time.Second, func() bool {
		v, _, _ := c.Get(ctx, "a")
		return v == "v2"
	}, "refresh never replaced the value")

	if got := src.calls.Load(); got != 2 {
		t.Errorf("expected exactly 2 loads, got %d", got)
	}
	if got := metrics.refreshes.Load(); got != 1 {
		t.Errorf("expected 1 refresh, got %d", got)
	}
}

func TestLoadingCache_ExpireAfterWrite(t *testing.T) {
	ctx := context.Background()
	src := newSource("a", "v1")
	c, clock, metrics := newTestCache(t, DefaultConfig(), src)

	_, _, _ = c.Get(ctx, "a")
	src.set("a", "v2")

	clock.Advance(31 * time.Minute)
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be hidden, got len %d", c.Len())
	}

	v, ok, err := c.Get(ctx, "a")
	if err != nil || !ok || v != "v2" {
		t.Errorf("expected synchronous reload to v2, got (%q, %v, %v)", v, ok, err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("expected 2 loads, got %d", got)
	}
	if got := metrics.expirations.Load(); got != 1 {
		t.Errorf("expected 1 expiration, got %d", got)
	}
}

func TestLoadingCache_RefreshFailureRetainsValue(t *testing.T) {
	ctx := context.Background()
	src := newSource("a", "v1")
	c, clock, metrics := newTestCache(t, DefaultConfig(), src)

	_, _, _ = c.Get(ctx, "a")
	src.fail(errors.New("backend down"))
	clock.Advance(2 * time.Minute)

	if v, _, _ := c.Get(ctx, "a"); v != "v1" {
		t.Errorf("expected stale v1, got %q", v)
	}
	_ = c.Close()

	if got := metrics.refreshFailures.Load(); got != 1 {
		t.Errorf("expected 1 refresh failure, got %d", got)
	}
	v, ok, err := c.Get(ctx, "a")
	if err != nil || !ok || v != "v1" {
		t.Errorf("expected retained v1 after failed refresh, got (%q, %v, %v)", v, ok, err)
	}
}

func TestLoadingCache_AbsentRefresh(t *testing.T) {
	tests := []struct {
		name    string
		retain  bool
		wantLen int
	}{
		{"evicts by default", false, 0},
		{"retains when configured", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			src := newSource("a", "v1")
			cfg := DefaultConfig()
			cfg.RetainOnAbsentRefresh = tt.retain
			c, clock, _ := newTestCache(t, cfg, src)

			_, _, _ = c.Get(ctx, "a")
			src.remove("a")
			clock.Advance(2 * time.Minute)

			if v, _, _ := c.Get(ctx, "a"); v != "v1" {
				t.Errorf("expected stale v1 on the triggering read, got %q", v)
			}
			_ = c.Close()

			if got := c.Len(); got != tt.wantLen {
				t.Errorf("expected len %d, got %d", tt.wantLen, got)
			}
			if !tt.retain {
				return
			}

			rec, ok, _ := c.shardFor("a").lookup("a", clock.Now(), cfg.ExpireAfterWrite)
			if !ok || rec.value != "v1" {
				t.Fatalf("expected retained v1, got %q ok=%v", rec.value, ok)
			}
			if !rec.loadedAt.Equal(clock.Now()) {
				t.Errorf("expected loadedAt to move to %v, got %v", clock.Now(), rec.loadedAt)
			}
			if !rec.writtenAt.Equal(epoch) {
				t.Errorf("expected writtenAt to stay at %v, got %v", epoch, rec.writtenAt)
			}
		})
	}
}

func TestLoadingCache_LoadFailure(t *testing.T) {
	ctx := context.Background()
	src := newSource("a", "v1")
	src.fail(errors.New("timeout"))
	c, _, metrics := newTestCache(t, DefaultConfig(), src)

	_, ok, err := c.Get(ctx, "a")
	if ok {
		t.Error("expected no value on load failure")
	}
	if !store.IsLoadFailure(err) {
		t.Fatalf("expected load failure, got %v", err)
	}

	src.fail(nil)
	if v, ok, err := c.Get(ctx, "a"); err != nil || !ok || v != "v1" {
		t.Errorf("expected failure not to be cached, got (%q, %v, %v)", v, ok, err)
	}
	if got := metrics.loadFailures.Load(); got != 1 {
		t.Errorf("expected 1 load failure, got %d", got)
	}
}

func TestLoadingCache_LoadFailureKeepsExistingSignal(t *testing.T) {
	ctx := context.Background()
	original := store.NewLoadFailure(errors.New("decode"), "a")
	loader := func(ctx context.Context, key string) (string, bool, error) {
		return "", false, original
	}
	c, err := NewLoadingCache(DefaultConfig(), loader)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	_, _, err = c.Get(ctx, "a")
	if err != error(original) {
		t.Errorf("expected the loader's load failure to pass through, got %v", err)
	}
}

func TestLoadingCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	src := newSource("a", "1", "b", "2", "c", "3")
	cfg := DefaultConfig()
	cfg.MaxEntries = 2
	c, _, metrics := newTestCache(t, cfg, src)

	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "b")
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "c")

	keys := c.Keys()
	sort.Strings(keys)
	if fmt.Sprint(keys) != "[a c]" {
		t.Errorf("expected [a c] resident, got %v", keys)
	}
	if got := metrics.evictions.Load(); got != 1 {
		t.Errorf("expected 1 eviction, got %d", got)
	}

	_, _, _ = c.Get(ctx, "b")
	if got := src.calls.Load(); got != 4 {
		t.Errorf("expected evicted key to reload, got %d loads", got)
	}
}

func TestLoadingCache_GetAll(t *testing.T) {
	ctx := context.Background()
	src := newSource("1", "one", "3", "three")
	c, _, _ := newTestCache(t, DefaultConfig(), src)

	_, _, _ = c.Get(ctx, "3")

	got, err := c.GetAll(ctx, []string{"1", "2", "1", "3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got["1"] != "one" || got["3"] != "three" {
		t.Errorf("expected {1:one 3:three}, got %v", got)
	}
	if _, ok := got["2"]; ok {
		t.Error("expected absent key to be omitted")
	}
	// 3 was cached, 1 and 2 loaded once each
	if calls := src.calls.Load(); calls != 3 {
		t.Errorf("expected 3 loads, got %d", calls)
	}

	empty, err := c.GetAll(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty result, got %v err=%v", empty, err)
	}
}

func TestLoadingCache_GetAllFailure(t *testing.T) {
	ctx := context.Background()
	loader := func(ctx context.Context, key string) (string, bool, error) {
		if key == "bad" {
			return "", false, errors.New("broken record")
		}
		return key, true, nil
	}
	c, err := NewLoadingCache(DefaultConfig(), loader)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	got, err := c.GetAll(ctx, []string{"ok", "bad"})
	if !store.IsLoadFailure(err) {
		t.Errorf("expected load failure, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial result, got %v", got)
	}
}

func TestLoadingCache_SnapshotAndInvalidate(t *testing.T) {
	ctx := context.Background()
	src := newSource("a", "1", "b", "2", "c", "3")
	c, clock, _ := newTestCache(t, DefaultConfig(), src)

	_, _, _ = c.Get(ctx, "a")
	clock.Advance(20 * time.Minute)
	_, _, _ = c.Get(ctx, "b")
	_, _, _ = c.Get(ctx, "c")
	_ = c.Close()

	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	clock.Advance(15 * time.Minute)
	values := c.Values()
	sort.Strings(values)
	if fmt.Sprint(values) != "[2 3]" {
		t.Errorf("expected only live values [2 3], got %v", values)
	}

	c.Invalidate("b")
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "c" {
		t.Errorf("expected [c] after invalidate, got %v", keys)
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestLoadingCache_Janitor(t *testing.T) {
	ctx := context.Background()
	src := newSource("a", "1")
	cfg := DefaultConfig()
	cfg.EvictionInterval = 5 * time.Millisecond
	c, clock, metrics := newTestCache(t, cfg, src)

	_, _, _ = c.Get(ctx, "a")
	clock.Advance(time.Hour)

	testsupport.Eventually(t, time.Second, func() bool {
		return metrics.expirations.Load() == 1
	}, "janitor never swept the expired entry")
}
