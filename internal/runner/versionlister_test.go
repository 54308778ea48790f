package runner_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mmizutani/wandbox/internal/config"
	"github.com/mmizutani/wandbox/internal/runner"
)

type memCache struct {
	payload []byte
	hit     bool
	sets    int
}

func (m *memCache) Get(context.Context) ([]byte, bool) { return m.payload, m.hit }
func (m *memCache) Set(_ context.Context, payload []byte) {
	m.sets++
	m.payload = payload
	m.hit = true
}

func TestVersionListerBuildsEntryPerDisplayableCompiler(t *testing.T) {
	vl := &runner.VersionLister{
		Compilers: map[string]config.CompilerProfile{
			"gcc": {
				Name:           "gcc",
				DisplayName:    "GCC",
				VersionCommand: []string{"/bin/echo", "9.4.0"},
				Displayable:    true,
			},
			"hidden": {
				Name:           "hidden",
				VersionCommand: []string{"/bin/echo", "1.0"},
				Displayable:    false,
			},
			"no-version-command": {
				Name:        "no-version-command",
				Displayable: true,
			},
		},
		Cache: &memCache{},
	}

	payload, err := vl.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	var entries []struct {
		Name        string `json:"name"`
		DisplayName string `json:"display-name"`
		Version     string `json:"version"`
	}
	if err := json.Unmarshal(payload, &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one displayable compiler with a version command, got %d: %v", len(entries), entries)
	}
	if entries[0].Name != "gcc" || entries[0].Version != "9.4.0" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestVersionListerEmptyCatalogueMarshalsEmptyArrayNotNull(t *testing.T) {
	vl := &runner.VersionLister{Compilers: map[string]config.CompilerProfile{}, Cache: &memCache{}}

	payload, err := vl.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if string(payload) != "[]" {
		t.Errorf("payload = %q, want %q", payload, "[]")
	}
}

func TestVersionListerUsesCacheOnHitWithoutRebuilding(t *testing.T) {
	cache := &memCache{payload: []byte(`[{"name":"cached"}]`), hit: true}
	vl := &runner.VersionLister{
		Compilers: map[string]config.CompilerProfile{
			"gcc": {Name: "gcc", VersionCommand: []string{"/bin/false"}, Displayable: true},
		},
		Cache: cache,
	}

	payload, err := vl.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if string(payload) != `[{"name":"cached"}]` {
		t.Errorf("payload = %s, want cached payload unchanged", payload)
	}
}

func TestVersionListerSkipsNonZeroExitingVersionCommand(t *testing.T) {
	vl := &runner.VersionLister{
		Compilers: map[string]config.CompilerProfile{
			"broken": {Name: "broken", VersionCommand: []string{"/bin/false"}, Displayable: true},
		},
		Cache: &memCache{},
	}

	payload, err := vl.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if string(payload) != "[]" {
		t.Errorf("payload = %s, want empty array for a failing version command", payload)
	}
}
