package portfolio

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"modelforge/internal/budget"
	"modelforge/internal/catalog"
	"modelforge/internal/hardware"
	"modelforge/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError)
}

func mustCatalog(t *testing.T, yaml string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to load test catalog: %v", err)
	}
	return c
}

func allocFor(t *testing.T, totalGB float64, tier hardware.Tier) budget.Allocation {
	t.Helper()
	return budget.Allocate(hardware.Profile{TotalRAMGB: totalGB, Tier: tier})
}

func TestSelect_PrimaryFallsBackToCheaperEntry(t *testing.T) {
	// Primary sub-budget at tier C / 16 GB is 9.6 × 0.5 = 4.8 GB; the
	// 11.5 GB entry doesn't fit, the cheaper one does.
	c := mustCatalog(t, `roles:
  primary:
    - id: big-model:70b
      memory_gb: 11.5
      fallback: small-model:7b
    - id: small-model:7b
      memory_gb: 4.5
`)

	p, err := NewSelector(c, testLogger()).Select(allocFor(t, 16.0, hardware.TierC))
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	got, ok := p.Assignments[catalog.RolePrimary]
	if !ok {
		t.Fatal("Expected primary role to be filled")
	}
	if got.ID != "small-model:7b" {
		t.Errorf("Expected fallback to small-model:7b, got %s", got.ID)
	}
}

func TestSelect_NoViablePortfolio(t *testing.T) {
	c := mustCatalog(t, `roles:
  primary:
    - id: big-model:70b
      memory_gb: 40.0
`)

	_, err := NewSelector(c, testLogger()).Select(allocFor(t, 16.0, hardware.TierC))
	if !errors.Is(err, ErrNoViablePortfolio) {
		t.Errorf("Expected ErrNoViablePortfolio, got %v", err)
	}
}

func TestSelect_NonPrimaryRoleLeftUnfilled(t *testing.T) {
	c := mustCatalog(t, `roles:
  primary:
    - id: chat:7b
      memory_gb: 4.0
  extras:
    - id: vision:34b
      memory_gb: 20.0
`)

	p, err := NewSelector(c, testLogger()).Select(allocFor(t, 16.0, hardware.TierC))
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if _, ok := p.Assignments[catalog.RoleExtras]; ok {
		t.Error("Expected extras role to be left unfilled")
	}
	if _, ok := p.Assignments[catalog.RolePrimary]; !ok {
		t.Error("Expected primary role to be filled")
	}
}

func TestSelect_BudgetInvariant(t *testing.T) {
	c, err := catalog.LoadEmbedded()
	if err != nil {
		t.Fatal(err)
	}
	selector := NewSelector(c, testLogger())

	for _, ram := range []float64{16, 20, 24, 32, 48, 64, 96} {
		alloc := budget.Allocate(hardware.Profile{TotalRAMGB: ram, Tier: hardware.Classify(ram)})
		p, err := selector.Select(alloc)
		if err != nil {
			t.Fatalf("ram=%.0f: Select failed: %v", ram, err)
		}
		if p.TotalGB() > alloc.UsableGB {
			t.Errorf("ram=%.0f: portfolio cost %.2f exceeds usable %.2f", ram, p.TotalGB(), alloc.UsableGB)
		}
	}
}

func TestSelect_NoDuplicateIdentifiers(t *testing.T) {
	// On a tight budget both primary and autocomplete resolve to the
	// same cheap model; the duplicate must collapse into one slot.
	c := mustCatalog(t, `roles:
  primary:
    - id: coder:14b
      memory_gb: 9.0
      fallback: coder:3b
    - id: coder:3b
      memory_gb: 1.9
  autocomplete:
    - id: coder:3b
      memory_gb: 1.9
`)

	p, err := NewSelector(c, testLogger()).Select(allocFor(t, 16.0, hardware.TierC))
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	seen := make(map[string]catalog.Role)
	for role, e := range p.Assignments {
		if prev, dup := seen[e.ID]; dup {
			t.Errorf("Model %s assigned to both %s and %s", e.ID, prev, role)
		}
		seen[e.ID] = role
	}

	// The higher-priority slot keeps the model
	if got := p.Assignments[catalog.RolePrimary].ID; got != "coder:3b" {
		t.Errorf("Expected primary to keep coder:3b, got %s", got)
	}
	if _, ok := p.Assignments[catalog.RoleAutocomplete]; ok {
		t.Error("Expected autocomplete slot to collapse away")
	}
}

func TestSelect_FreedBudgetCreditsUpgrade(t *testing.T) {
	// Tier C / 16 GB: usable 9.6, autocomplete sub-budget 1.92, extras
	// sub-budget 0.96. Autocomplete's capable entry (2.5 GB) doesn't fit
	// its sub-budget, so autocomplete and extras both resolve to tiny:1b.
	// The collapse frees 0.9 GB of credit, enough to cover the 0.58 GB
	// overdraft of the autocomplete upgrade.
	c := mustCatalog(t, `roles:
  primary:
    - id: coder:7b
      memory_gb: 4.5
  autocomplete:
    - id: ac-big:3b
      memory_gb: 2.5
      fallback: tiny:1b
    - id: tiny:1b
      memory_gb: 0.9
  extras:
    - id: tiny:1b
      memory_gb: 0.9
`)

	alloc := allocFor(t, 16.0, hardware.TierC)
	p, err := NewSelector(c, testLogger()).Select(alloc)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	got, ok := p.Assignments[catalog.RoleAutocomplete]
	if !ok {
		t.Fatal("Expected autocomplete to stay filled")
	}
	if got.ID != "ac-big:3b" {
		t.Errorf("Expected upgrade to ac-big:3b, got %s", got.ID)
	}
	if _, ok := p.Assignments[catalog.RoleExtras]; ok {
		t.Error("Expected extras slot to stay collapsed")
	}
	if p.TotalGB() > alloc.UsableGB {
		t.Errorf("Portfolio cost %.2f exceeds usable %.2f after upgrade", p.TotalGB(), alloc.UsableGB)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	c, err := catalog.LoadEmbedded()
	if err != nil {
		t.Fatal(err)
	}
	selector := NewSelector(c, testLogger())
	alloc := allocFor(t, 32.0, hardware.TierA)

	first, err := selector.Select(alloc)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		again, err := selector.Select(alloc)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first.Assignments, again.Assignments) {
			t.Fatalf("Selection not deterministic on iteration %d:\n%v\nvs\n%v", i, first.Assignments, again.Assignments)
		}
	}
}

func TestPortfolio_RolesOrder(t *testing.T) {
	c, err := catalog.LoadEmbedded()
	if err != nil {
		t.Fatal(err)
	}

	p, err := NewSelector(c, testLogger()).Select(allocFor(t, 64.0, hardware.TierS))
	if err != nil {
		t.Fatal(err)
	}

	roles := p.Roles()
	rank := map[catalog.Role]int{}
	for i, r := range catalog.Roles() {
		rank[r] = i
	}
	for i := 1; i < len(roles); i++ {
		if rank[roles[i]] < rank[roles[i-1]] {
			t.Errorf("Roles out of priority order: %v", roles)
		}
	}
}

func ExamplePortfolio_TotalGB() {
	p := Portfolio{Assignments: map[catalog.Role]catalog.Entry{
		catalog.RolePrimary:   {Role: catalog.RolePrimary, ID: "qwen2.5-coder:7b", MemoryGB: 4.7},
		catalog.RoleEmbedding: {Role: catalog.RoleEmbedding, ID: "nomic-embed-text", MemoryGB: 0.3},
	}}
	fmt.Printf("%.1f", p.TotalGB())
	// Output: 5.0
}
