package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"modelforge/internal/catalog"
	"modelforge/internal/logging"
	"modelforge/internal/portfolio"
	"modelforge/internal/runtime"
)

const testCatalogYAML = `
roles:
  primary:
    - id: coder:14b
      memory_gb: 9.0
      fallback: coder:7b
    - id: coder:7b
      memory_gb: 4.7
      fallback: coder:3b
    - id: coder:3b
      memory_gb: 1.9
  autocomplete:
    - id: tiny:1b
      memory_gb: 0.9
  embedding:
    - id: embed-small
      memory_gb: 0.3
`

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadFromBytes([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("Failed to load test catalog: %v", err)
	}
	return cat
}

// fakeRuntime implements RuntimeClient. Pull errors are consumed per
// model in order; a successful pull adds the model to the inventory.
type fakeRuntime struct {
	installed []runtime.Model
	pullErrs  map[string][]error
	pulls     []string
	listErr   error
	onPull    func(ctx context.Context, modelID string)
}

func (f *fakeRuntime) List(_ context.Context) ([]runtime.Model, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]runtime.Model(nil), f.installed...), nil
}

func (f *fakeRuntime) Pull(ctx context.Context, modelID string) error {
	f.pulls = append(f.pulls, modelID)
	if f.onPull != nil {
		f.onPull(ctx, modelID)
	}
	if errs := f.pullErrs[modelID]; len(errs) > 0 {
		err := errs[0]
		f.pullErrs[modelID] = errs[1:]
		if err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.installed = append(f.installed, runtime.Model{Name: modelID})
	return nil
}

func testPortfolio(cat *catalog.Catalog, roles ...catalog.Role) portfolio.Portfolio {
	p := portfolio.Portfolio{Assignments: make(map[catalog.Role]catalog.Entry)}
	for _, role := range roles {
		p.Assignments[role] = cat.Entries(role)[0]
	}
	return p
}

func newTestOrchestrator(client RuntimeClient, cat *catalog.Catalog) *Orchestrator {
	opts := Options{MaxAttemptsPerRole: 3, PullTimeout: time.Minute}
	return NewOrchestrator(client, cat, opts, logging.NewLogger(logging.LevelError))
}

func TestRun_PullsAndVerifies(t *testing.T) {
	cat := testCatalog(t)
	client := &fakeRuntime{}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RolePrimary, catalog.RoleAutocomplete))

	if len(outcomes) != 2 {
		t.Fatalf("Expected 2 outcomes, got %d", len(outcomes))
	}
	for _, outcome := range outcomes {
		if !outcome.Success {
			t.Errorf("Expected success for %s, got failure %s", outcome.Role, outcome.FailureKind)
		}
		if outcome.UsedFallback {
			t.Errorf("Expected no fallback for %s", outcome.Role)
		}
	}
	if len(client.pulls) != 2 {
		t.Errorf("Expected 2 pulls, got %v", client.pulls)
	}
}

func TestRun_SkipsAlreadyInstalled(t *testing.T) {
	cat := testCatalog(t)
	client := &fakeRuntime{
		installed: []runtime.Model{{Name: "coder:14b"}},
	}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RolePrimary))

	if len(outcomes) != 1 || !outcomes[0].Success {
		t.Fatalf("Expected one successful outcome, got %+v", outcomes)
	}
	if len(client.pulls) != 0 {
		t.Errorf("Expected no pulls for an installed model, got %v", client.pulls)
	}
}

func TestRun_SkipsInstalledByBaseName(t *testing.T) {
	cat := testCatalog(t)
	// The runtime reports the canonical tag for an untagged alias.
	client := &fakeRuntime{
		installed: []runtime.Model{{Name: "embed-small:latest"}},
	}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RoleEmbedding))

	if len(outcomes) != 1 || !outcomes[0].Success {
		t.Fatalf("Expected one successful outcome, got %+v", outcomes)
	}
	if len(client.pulls) != 0 {
		t.Errorf("Expected no pulls, got %v", client.pulls)
	}
}

func TestRun_SkipsTaggedRequestInstalledBare(t *testing.T) {
	cat := testCatalog(t)
	// The runtime may report a bare name for a tagged request.
	client := &fakeRuntime{
		installed: []runtime.Model{{Name: "coder"}},
	}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RolePrimary))

	if len(outcomes) != 1 || !outcomes[0].Success {
		t.Fatalf("Expected one successful outcome, got %+v", outcomes)
	}
	if len(client.pulls) != 0 {
		t.Errorf("Expected no pulls, got %v", client.pulls)
	}
}

func TestRun_TaggedRequestDoesNotMatchOtherTag(t *testing.T) {
	cat := testCatalog(t)
	// coder:7b installed must not satisfy a request for coder:14b.
	client := &fakeRuntime{
		installed: []runtime.Model{{Name: "coder:7b"}},
	}
	o := newTestOrchestrator(client, cat)

	o.Run(context.Background(), testPortfolio(cat, catalog.RolePrimary))

	if len(client.pulls) != 1 || client.pulls[0] != "coder:14b" {
		t.Errorf("Expected a pull for coder:14b, got %v", client.pulls)
	}
}

func TestRun_FallbackOnNetworkFailure(t *testing.T) {
	cat := testCatalog(t)
	client := &fakeRuntime{
		pullErrs: map[string][]error{
			"coder:14b": {errors.New("pull failed: dial tcp: connection refused")},
		},
	}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RolePrimary))

	if len(outcomes) != 1 {
		t.Fatalf("Expected 1 outcome, got %d", len(outcomes))
	}
	outcome := outcomes[0]
	if !outcome.Success {
		t.Fatalf("Expected fallback success, got failure %s", outcome.FailureKind)
	}
	if !outcome.UsedFallback {
		t.Error("Expected used_fallback to be set")
	}
	if outcome.Requested != "coder:14b" || outcome.Model != "coder:7b" {
		t.Errorf("Expected requested coder:14b installed coder:7b, got %s / %s", outcome.Requested, outcome.Model)
	}
	if outcome.MemoryGB != 4.7 {
		t.Errorf("Expected the installed fallback's cost 4.7, got %v", outcome.MemoryGB)
	}
}

func TestRun_ChainExhaustionFails(t *testing.T) {
	cat := testCatalog(t)
	diskErr := errors.New("write: no space left on device")
	client := &fakeRuntime{
		pullErrs: map[string][]error{
			"coder:14b": {diskErr},
			"coder:7b":  {diskErr},
			"coder:3b":  {diskErr},
		},
	}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RolePrimary))

	if len(outcomes) != 1 {
		t.Fatalf("Expected 1 outcome, got %d", len(outcomes))
	}
	outcome := outcomes[0]
	if outcome.Success {
		t.Fatal("Expected failure after chain exhaustion")
	}
	if outcome.FailureKind != FailureDisk {
		t.Errorf("Expected disk failure kind, got %s", outcome.FailureKind)
	}
	if outcome.Model != "coder:3b" {
		t.Errorf("Expected last attempted model coder:3b, got %s", outcome.Model)
	}
	if len(client.pulls) != 3 {
		t.Errorf("Expected 3 pull attempts, got %v", client.pulls)
	}
}

func TestRun_MaxAttemptsBoundsFallbackWalk(t *testing.T) {
	cat := testCatalog(t)
	netErr := errors.New("connection refused")
	client := &fakeRuntime{
		pullErrs: map[string][]error{
			"coder:14b": {netErr},
			"coder:7b":  {netErr},
			"coder:3b":  {netErr},
		},
	}
	opts := Options{MaxAttemptsPerRole: 2, PullTimeout: time.Minute}
	o := NewOrchestrator(client, cat, opts, logging.NewLogger(logging.LevelError))

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RolePrimary))

	if len(client.pulls) != 2 {
		t.Errorf("Expected 2 pull attempts, got %v", client.pulls)
	}
	if outcomes[0].Success {
		t.Error("Expected failure within attempt bound")
	}
}

func TestRun_OneOutcomePerRole(t *testing.T) {
	cat := testCatalog(t)
	client := &fakeRuntime{
		pullErrs: map[string][]error{
			"coder:14b": {errors.New("connection refused")},
		},
	}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RolePrimary, catalog.RoleAutocomplete, catalog.RoleEmbedding))

	if len(outcomes) != 3 {
		t.Fatalf("Expected exactly one outcome per role, got %d", len(outcomes))
	}
	seen := make(map[catalog.Role]bool)
	for _, outcome := range outcomes {
		if seen[outcome.Role] {
			t.Errorf("Duplicate outcome for role %s", outcome.Role)
		}
		seen[outcome.Role] = true
	}
}

func TestRun_RolesInPriorityOrder(t *testing.T) {
	cat := testCatalog(t)
	client := &fakeRuntime{}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RoleEmbedding, catalog.RolePrimary, catalog.RoleAutocomplete))

	want := []catalog.Role{catalog.RolePrimary, catalog.RoleAutocomplete, catalog.RoleEmbedding}
	for i, role := range want {
		if outcomes[i].Role != role {
			t.Errorf("Outcome %d: expected role %s, got %s", i, role, outcomes[i].Role)
		}
	}
}

func TestRun_CancellationReturnsPartialOutcomes(t *testing.T) {
	cat := testCatalog(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeRuntime{}
	client.onPull = func(_ context.Context, _ string) {
		cancel()
	}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(ctx, testPortfolio(cat, catalog.RolePrimary, catalog.RoleAutocomplete, catalog.RoleEmbedding))

	// The in-flight role finishes with an outcome; the rest are skipped.
	if len(outcomes) != 1 {
		t.Fatalf("Expected 1 outcome after cancellation, got %d", len(outcomes))
	}
	if len(client.pulls) != 1 {
		t.Errorf("Expected no further pulls after cancellation, got %v", client.pulls)
	}
}

func TestRun_SnapshotListFailureStillProvisions(t *testing.T) {
	cat := testCatalog(t)
	client := &fakeRuntime{listErr: errors.New("runtime unreachable")}
	o := newTestOrchestrator(client, cat)

	outcomes := o.Run(context.Background(), testPortfolio(cat, catalog.RoleAutocomplete))

	// With the inventory unreadable, the pull happens but verification
	// cannot confirm it; the outcome is a classified failure, not a panic.
	if len(outcomes) != 1 {
		t.Fatalf("Expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Success {
		t.Error("Expected failure when inventory is unreadable")
	}
	if outcomes[0].FailureKind != FailureService {
		t.Errorf("Expected service failure kind, got %s", outcomes[0].FailureKind)
	}
}
