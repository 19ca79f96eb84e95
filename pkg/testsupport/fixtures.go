package testsupport

import (
	_ "embed"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
)

//go:embed testdata/items.json
var itemsFixture []byte

// TestData is the item type shared by store and cache tests.
type TestData struct {
	ID   string   `json:"id" bun:"id"`
	Name string   `json:"name" bun:"name"`
	Refs []string `json:"refs,omitempty" bun:"-"`
}

// GetID implements store.Identifiable.
func (d TestData) GetID() string { return d.ID }

// NewTestData returns an item with a random id.
func NewTestData(name string, refs ...string) TestData {
	return TestData{ID: uuid.NewString(), Name: name, Refs: refs}
}

// Items returns the bundled fixture items. Every call returns a fresh copy.
func Items(t *testing.T) []TestData {
	t.Helper()

	var items []TestData
	if err := json.Unmarshal(itemsFixture, &items); err != nil {
		t.Fatalf("failed to unmarshal bundled items fixture: %v", err)
	}
	return items
}

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}
