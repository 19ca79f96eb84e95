package valkeystore

import (
	"context"
	"os"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/goliatone/go-store-cache/pkg/testsupport"
	"github.com/goliatone/go-store-cache/store"
	"github.com/goliatone/go-store-cache/store/codec"
)

// setupTestStore connects to VALKEY_ADDR and returns a store scoped to a
// fresh namespace. Keys are removed when the test ends.
func setupTestStore(t *testing.T, opts ...Option) (*Store[testsupport.TestData], valkey.Client) {
	t.Helper()

	addr := os.Getenv("VALKEY_ADDR")
	if addr == "" {
		t.Skip("VALKEY_ADDR not set")
	}

	ctx := context.Background()
	client, err := Dial(ctx, addr)
	if err != nil {
		t.Fatalf("failed to connect to valkey: %v", err)
	}

	namespace := "storecache-test-" + uuid.NewString()
	s := New[testsupport.TestData](client, append([]Option{WithNamespace(namespace)}, opts...)...)

	t.Cleanup(func() {
		var cursor uint64
		for {
			scan, err := client.Do(ctx, client.B().Scan().Cursor(cursor).Match(namespace+"*").Count(scanCount).Build()).AsScanEntry()
			if err != nil {
				break
			}
			if len(scan.Elements) > 0 {
				client.Do(ctx, client.B().Del().Key(scan.Elements...).Build())
			}
			cursor = scan.Cursor
			if cursor == 0 {
				break
			}
		}
		client.Close()
	})

	return s, client
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	item := testsupport.NewTestData("first")
	if err := s.Create(ctx, item); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := s.Create(ctx, item); !store.IsConstraintViolation(err) {
		t.Errorf("expected constraint violation on duplicate create, got %v", err)
	}

	item.Name = "renamed"
	if err := s.Update(ctx, item); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	got, ok, err := s.Get(ctx, item.ID)
	if err != nil || !ok {
		t.Fatalf("expected item present, got ok=%v err=%v", ok, err)
	}
	if got.Name != "renamed" {
		t.Errorf("expected name renamed, got %s", got.Name)
	}

	if err := s.Update(ctx, testsupport.NewTestData("ghost")); !store.IsConstraintViolation(err) {
		t.Errorf("expected constraint violation on update of absent id, got %v", err)
	}

	if err := s.Delete(ctx, item.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if err := s.Delete(ctx, item.ID); !store.IsConstraintViolation(err) {
		t.Errorf("expected constraint violation on delete of absent id, got %v", err)
	}
	if _, ok, err := s.Get(ctx, item.ID); ok || err != nil {
		t.Errorf("expected absence without error, got ok=%v err=%v", ok, err)
	}
}

func TestStore_BulkAndReferences(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	items := testsupport.Items(t)
	for _, item := range items {
		if err := s.CreateWithRefs(ctx, item, item.Refs); err != nil {
			t.Fatalf("failed to seed %s: %v", item.ID, err)
		}
	}

	got, err := s.GetMany(ctx, []string{"1", "2", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 items, got %d", len(got))
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != len(items) {
		t.Errorf("expected %d items, got %d", len(items), len(all))
	}

	byRef, err := s.GetByRefID(ctx, "y")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := store.IDs(byRef); len(ids) != 2 || ids[0] != "2" || ids[1] != "3" {
		t.Errorf("expected [2 3], got %v", ids)
	}

	if err := s.CreateWithRefs(ctx, items[0], []string{"w"}); !store.IsConstraintViolation(err) {
		t.Errorf("expected constraint violation, got %v", err)
	}

	if err := s.Delete(ctx, "2"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	byRef, _ = s.GetByRefID(ctx, "y")
	if ids := store.IDs(byRef); len(ids) != 1 || ids[0] != "3" {
		t.Errorf("expected deleted id skipped, got %v", ids)
	}
}

func TestStore_DecodeError(t *testing.T) {
	ctx := context.Background()
	s, client := setupTestStore(t, WithCodec(codec.JSON{}), WithErrorHandler(store.LenientErrorHandler{}))

	key := s.keys.Item("bad")
	if err := client.Do(ctx, client.B().Set().Key(key).Value("{broken").Build()).Error(); err != nil {
		t.Fatalf("failed to write corrupt value: %v", err)
	}

	if _, ok, err := s.Get(ctx, "bad"); ok || err != nil {
		t.Errorf("expected lenient handler to report absence, got ok=%v err=%v", ok, err)
	}

	strict := New[testsupport.TestData](client, WithNamespace(s.keys.Namespace()), WithCodec(codec.JSON{}))
	if _, _, err := strict.Get(ctx, "bad"); !store.IsLoadFailure(err) {
		t.Errorf("expected load failure, got %v", err)
	}
}

func TestStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s, client := setupTestStore(t, WithFailOnCreateIfExists(false), WithExpiration(func(item store.Identifiable) time.Duration {
		if item.GetID() == "forever" {
			return 0
		}
		return time.Minute
	}))

	if err := s.Create(ctx, testsupport.TestData{ID: "short", Name: "a"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := s.CreateWithRefs(ctx, testsupport.TestData{ID: "scripted", Name: "b"}, []string{"r"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := s.Create(ctx, testsupport.TestData{ID: "forever", Name: "c"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	tests := []struct {
		id      string
		expires bool
	}{
		{"short", true},
		{"scripted", true},
		{"forever", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			pttl, err := client.Do(ctx, client.B().Pttl().Key(s.keys.Item(tt.id)).Build()).AsInt64()
			if err != nil {
				t.Fatalf("unexpected pttl error: %v", err)
			}
			if tt.expires && (pttl <= 0 || pttl > time.Minute.Milliseconds()) {
				t.Errorf("expected ttl within a minute, got %dms", pttl)
			}
			if !tt.expires && pttl != -1 {
				t.Errorf("expected no ttl, got %dms", pttl)
			}
		})
	}
}

func TestStore_Validator(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t, WithValidator(func(item store.Identifiable) bool {
		return item.(testsupport.TestData).Name != ""
	}))

	if err := s.CreateWithRefs(ctx, testsupport.TestData{ID: "good", Name: "ok"}, []string{"r"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := s.CreateWithRefs(ctx, testsupport.TestData{ID: "bad"}, []string{"r"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if _, ok, err := s.Get(ctx, "bad"); ok || err != nil {
		t.Errorf("expected invalid item absent without error, got ok=%v err=%v", ok, err)
	}
	if got, _ := s.GetByRefID(ctx, "r"); len(got) != 1 || got[0].ID != "good" {
		t.Errorf("expected only good by ref, got %v", got)
	}
}

func TestStore_ReferencesDisabled(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t, WithReferencesDisabled())

	if err := s.CreateWithRefs(ctx, testsupport.TestData{ID: "plain", Name: "a"}, []string{"r"}); err != nil {
		t.Fatalf("expected create with refs to store the item, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "plain"); !ok {
		t.Error("expected item stored")
	}
	if _, err := s.GetByRefID(ctx, "r"); !store.IsCapabilityUnsupported(err) {
		t.Errorf("expected capability unsupported, got %v", err)
	}
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, "127.0.0.1:1")
	if err == nil {
		client.Close()
		t.Fatal("expected dial error")
	}
	if !goerrors.IsCategory(err, goerrors.CategoryExternal) {
		t.Errorf("expected external error, got %v", err)
	}
}
