package testsupport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-store-cache/store/memstore"
)

func TestItems(t *testing.T) {
	items := Items(t)
	if len(items) != 5 {
		t.Fatalf("expected 5 fixture items, got %d", len(items))
	}
	if items[1].ID != "2" || items[1].Name != "beta" {
		t.Errorf("expected item 2 beta, got %+v", items[1])
	}
	if len(items[1].Refs) != 2 {
		t.Errorf("expected item 2 to carry 2 refs, got %v", items[1].Refs)
	}

	items[0].Name = "changed"
	if Items(t)[0].Name != "alpha" {
		t.Error("expected Items to return a fresh copy")
	}
}

func TestNewTestData(t *testing.T) {
	a := NewTestData("a", "x")
	b := NewTestData("b")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.GetID() != a.ID {
		t.Errorf("expected GetID to return %q, got %q", a.ID, a.GetID())
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.json")
	if err := os.WriteFile(path, []byte(`{"id":"9","name":"nine"}`), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var got TestData
	LoadFixtureJSON(t, path, &got)
	if got.ID != "9" || got.Name != "nine" {
		t.Errorf("expected {9 nine}, got %+v", got)
	}
}

func TestClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClock(start)
	if !c.Now().Equal(start) {
		t.Errorf("expected %v, got %v", start, c.Now())
	}
	c.Advance(time.Minute)
	if got := c.Now().Sub(start); got != time.Minute {
		t.Errorf("expected clock to advance by 1m, got %v", got)
	}
}

func TestCountingStore(t *testing.T) {
	ctx := context.Background()
	s := NewCountingStore[TestData](memstore.New[TestData]())

	_ = s.Create(ctx, TestData{ID: "1"})
	_, _, _ = s.Get(ctx, "1")
	_, _, _ = s.Get(ctx, "2")
	_, _ = s.GetByRefID(ctx, "x")

	if got := s.Calls(MethodGet); got != 2 {
		t.Errorf("expected 2 Get calls, got %d", got)
	}
	if got := s.Calls(MethodCreate); got != 1 {
		t.Errorf("expected 1 Create call, got %d", got)
	}
	if got := s.Calls(MethodList); got != 0 {
		t.Errorf("expected 0 List calls, got %d", got)
	}

	boom := errors.New("boom")
	s.Hook = func(method, key string) error {
		if method == MethodGet && key == "1" {
			return boom
		}
		return nil
	}
	if _, _, err := s.Get(ctx, "1"); !errors.Is(err, boom) {
		t.Errorf("expected hook error, got %v", err)
	}

	s.Reset()
	if got := s.Calls(MethodGet); got != 0 {
		t.Errorf("expected counters reset, got %d", got)
	}
}

func TestEventually(t *testing.T) {
	var n atomic.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		n.Store(1)
	}()
	Eventually(t, time.Second, func() bool { return n.Load() == 1 }, "flag never set")
}
