package export

import (
	"path/filepath"
	"testing"

	"modelforge/internal/catalog"
	"modelforge/internal/logging"
	"modelforge/internal/provision"
)

func TestBindings_OnlySucceededRoles(t *testing.T) {
	outcomes := []provision.PullOutcome{
		{Role: catalog.RolePrimary, Model: "coder:7b", MemoryGB: 4.7, Success: true},
		{Role: catalog.RoleAutocomplete, Model: "tiny:1b", MemoryGB: 0.9, Success: false, FailureKind: provision.FailureNetwork},
		{Role: catalog.RoleEmbedding, Model: "embed-small", MemoryGB: 0.3, Success: true},
	}

	bindings := Bindings(outcomes)

	if len(bindings) != 2 {
		t.Fatalf("Expected 2 bindings, got %d", len(bindings))
	}
	if bindings[0].Role != catalog.RolePrimary || bindings[0].Model != "coder:7b" {
		t.Errorf("Unexpected first binding: %+v", bindings[0])
	}
	if bindings[0].MemoryGB != 4.7 {
		t.Errorf("Expected installed entry's memory cost, got %v", bindings[0].MemoryGB)
	}
	if bindings[1].Role != catalog.RoleEmbedding {
		t.Errorf("Expected embedding second, got %s", bindings[1].Role)
	}
}

func TestBindings_FallbackModelWins(t *testing.T) {
	// The exported model and cost are the installed fallback's, not the
	// originally requested entry's.
	outcomes := []provision.PullOutcome{
		{Role: catalog.RolePrimary, Requested: "coder:14b", Model: "coder:7b", MemoryGB: 4.7, Success: true, UsedFallback: true},
	}

	bindings := Bindings(outcomes)
	if len(bindings) != 1 || bindings[0].Model != "coder:7b" {
		t.Fatalf("Expected installed fallback model, got %+v", bindings)
	}
	if bindings[0].MemoryGB != 4.7 {
		t.Errorf("Expected installed fallback cost 4.7, got %v", bindings[0].MemoryGB)
	}
}

func TestBindings_Empty(t *testing.T) {
	if bindings := Bindings(nil); len(bindings) != 0 {
		t.Errorf("Expected no bindings for no outcomes, got %d", len(bindings))
	}
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "role_bindings.yaml")
	logger := logging.NewLogger(logging.LevelError)

	bindings := []RoleBinding{
		{Role: catalog.RolePrimary, Model: "coder:7b", MemoryGB: 4.7},
		{Role: catalog.RoleEmbedding, Model: "embed-small", MemoryGB: 0.3},
	}

	if err := Write(path, bindings, logger); err != nil {
		t.Fatalf("Failed to write bindings: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Failed to read bindings: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 bindings, got %d", len(loaded))
	}
	if loaded[0] != bindings[0] || loaded[1] != bindings[1] {
		t.Errorf("Roundtrip mismatch: %+v", loaded)
	}
}

func TestMerge_RetryKeepsEarlierBindings(t *testing.T) {
	existing := []RoleBinding{
		{Role: catalog.RolePrimary, Model: "coder:7b", MemoryGB: 4.7},
		{Role: catalog.RoleAutocomplete, Model: "tiny:1b", MemoryGB: 0.9},
	}
	updates := []RoleBinding{
		{Role: catalog.RoleAutocomplete, Model: "tiny:3b", MemoryGB: 1.9},
		{Role: catalog.RoleEmbedding, Model: "embed-small", MemoryGB: 0.3},
	}

	merged := Merge(existing, updates)

	if len(merged) != 3 {
		t.Fatalf("Expected 3 merged bindings, got %d", len(merged))
	}
	if merged[0].Model != "coder:7b" {
		t.Errorf("Expected earlier primary binding kept, got %s", merged[0].Model)
	}
	if merged[1].Model != "tiny:3b" {
		t.Errorf("Expected update to win for autocomplete, got %s", merged[1].Model)
	}
	if merged[2].Role != catalog.RoleEmbedding {
		t.Errorf("Expected role priority order, got %s last", merged[2].Role)
	}
}

func TestDefaultPath(t *testing.T) {
	if got := DefaultPath("/var/lib/modelforge"); got != "/var/lib/modelforge/role_bindings.yaml" {
		t.Errorf("Unexpected default path: %s", got)
	}
}
