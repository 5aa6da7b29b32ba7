// Package provision drives the external model runtime to install a
// portfolio, verifying each pull and retrying through fallback chains.
package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modelforge/internal/catalog"
	"modelforge/internal/logging"
	"modelforge/internal/portfolio"
	"modelforge/internal/runtime"
)

// RuntimeClient is the slice of the runtime API the orchestrator needs.
type RuntimeClient interface {
	List(ctx context.Context) ([]runtime.Model, error)
	Pull(ctx context.Context, modelID string) error
}

// PullOutcome records the terminal result for one role. Exactly one is
// appended per role; immutable once recorded.
type PullOutcome struct {
	Role         catalog.Role `json:"role"`
	Requested    string       `json:"requested"`
	Model        string       `json:"model"` // last attempted identifier; the installed one on success
	MemoryGB     float64      `json:"memory_gb"`
	Success      bool         `json:"success"`
	FailureKind  FailureKind  `json:"failure_kind,omitempty"`
	UsedFallback bool         `json:"used_fallback"`
}

// Options tunes orchestration.
type Options struct {
	// MaxAttemptsPerRole bounds the fallback chain walk, initial
	// attempt included.
	MaxAttemptsPerRole int
	// PullTimeout bounds a single fetch; expiry classifies as NETWORK.
	PullTimeout time.Duration
}

// DefaultOptions returns the orchestration defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttemptsPerRole: 3,
		PullTimeout:        30 * time.Minute,
	}
}

// Orchestrator installs portfolio entries sequentially. Downloads are
// not parallelized: they compete for the same network and disk, and
// verification must attribute inventory changes to one in-flight pull.
type Orchestrator struct {
	client RuntimeClient
	cat    *catalog.Catalog
	logger *logging.Logger
	opts   Options
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(client RuntimeClient, cat *catalog.Catalog, opts Options, logger *logging.Logger) *Orchestrator {
	if opts.MaxAttemptsPerRole < 1 {
		opts.MaxAttemptsPerRole = DefaultOptions().MaxAttemptsPerRole
	}
	if opts.PullTimeout <= 0 {
		opts.PullTimeout = DefaultOptions().PullTimeout
	}
	return &Orchestrator{
		client: client,
		cat:    cat,
		logger: logger,
		opts:   opts,
	}
}

// Run installs every entry in the portfolio, one role at a time in
// priority order. Cancellation stops after the in-flight entry; the
// outcomes recorded so far are returned so progress persists.
func (o *Orchestrator) Run(ctx context.Context, p portfolio.Portfolio) []PullOutcome {
	installed := o.refreshSnapshot(ctx)

	var outcomes []PullOutcome
	for _, role := range catalog.Roles() {
		entry, ok := p.Assignments[role]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			o.logger.Warn("provision.run.cancelled", "Provisioning cancelled", map[string]interface{}{
				"remaining_role": role.String(),
			})
			break
		}
		outcomes = append(outcomes, o.provisionRole(ctx, entry, installed))
	}
	return outcomes
}

// snapshot is the request-scoped view of the runtime inventory,
// refreshed once per orchestration pass.
type snapshot map[string]struct{}

func (s snapshot) contains(id string) bool {
	if _, ok := s[id]; ok {
		return true
	}
	// A runtime may canonicalize tags in either direction: an untagged
	// alias can be reported with a tag, and a tagged request can be
	// reported bare. Base names match only when at least one side is
	// untagged; two different explicit tags never match.
	for name := range s {
		if baseName(name) != baseName(id) {
			continue
		}
		if !strings.Contains(id, ":") || !strings.Contains(name, ":") {
			return true
		}
	}
	return false
}

func baseName(id string) string {
	if i := strings.Index(id, ":"); i >= 0 {
		return id[:i]
	}
	return id
}

func (o *Orchestrator) refreshSnapshot(ctx context.Context) snapshot {
	models, err := o.client.List(ctx)
	if err != nil {
		o.logger.Warn("provision.snapshot.failed", "Could not read runtime inventory", map[string]interface{}{
			"error": err.Error(),
		})
		return snapshot{}
	}

	s := make(snapshot, len(models))
	for _, m := range models {
		s[m.Name] = struct{}{}
	}
	return s
}

// provisionRole walks one role's fallback chain to a terminal state and
// returns that role's single PullOutcome.
func (o *Orchestrator) provisionRole(ctx context.Context, entry catalog.Entry, installed snapshot) PullOutcome {
	requested := entry.ID
	current := entry
	state := StatePending
	usedFallback := false
	attempts := 0

	var lastKind FailureKind

	for {
		// Already installed: terminal success without re-fetching.
		if installed.contains(current.ID) {
			state = o.transition(current.Role, state, StateSucceeded, current.ID)
			o.logger.Info("provision.role.already_installed", "Model already installed, skipping pull", map[string]interface{}{
				"role":  current.Role.String(),
				"model": current.ID,
			})
			return PullOutcome{
				Role:         current.Role,
				Requested:    requested,
				Model:        current.ID,
				MemoryGB:     current.MemoryGB,
				Success:      true,
				UsedFallback: usedFallback,
			}
		}

		state = o.transition(current.Role, state, StatePulling, current.ID)
		attempts++

		err := o.pull(ctx, current.ID)
		if err == nil {
			state = o.transition(current.Role, state, StateVerifying, current.ID)
			err = o.verify(ctx, current.ID)
			if err == nil {
				state = o.transition(current.Role, state, StateSucceeded, current.ID)
				return PullOutcome{
					Role:         current.Role,
					Requested:    requested,
					Model:        current.ID,
					MemoryGB:     current.MemoryGB,
					Success:      true,
					UsedFallback: usedFallback,
				}
			}
		}

		lastKind = ClassifyError(err)
		o.logger.Warn("provision.role.attempt_failed", "Model install attempt failed", map[string]interface{}{
			"role":    current.Role.String(),
			"model":   current.ID,
			"kind":    lastKind.String(),
			"attempt": attempts,
			"error":   err.Error(),
		})

		fallback, hasFallback := o.cat.NextFallback(current)
		if hasFallback && attempts < o.opts.MaxAttemptsPerRole && ctx.Err() == nil {
			state = o.transition(current.Role, state, StateFallbackPending, fallback.ID)
			usedFallback = true
			current = fallback
			continue
		}

		state = o.transition(current.Role, state, StateFailed, current.ID)
		return PullOutcome{
			Role:         current.Role,
			Requested:    requested,
			Model:        current.ID,
			MemoryGB:     current.MemoryGB,
			Success:      false,
			FailureKind:  lastKind,
			UsedFallback: usedFallback,
		}
	}
}

// pull fetches one model with the per-invocation timeout applied.
func (o *Orchestrator) pull(ctx context.Context, modelID string) error {
	pullCtx, cancel := context.WithTimeout(ctx, o.opts.PullTimeout)
	defer cancel()
	return o.client.Pull(pullCtx, modelID)
}

// verify confirms the pulled model via the runtime's own inventory,
// matching exactly or by base name.
func (o *Orchestrator) verify(ctx context.Context, modelID string) error {
	models, err := o.client.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify install: %w", err)
	}

	fresh := make(snapshot, len(models))
	for _, m := range models {
		fresh[m.Name] = struct{}{}
	}
	if !fresh.contains(modelID) {
		return fmt.Errorf("model not found after pull: %s", modelID)
	}
	return nil
}

// transition moves an entry between states, enforcing the table.
func (o *Orchestrator) transition(role catalog.Role, from, to State, modelID string) State {
	if !from.CanTransition(to) {
		// Table violations are programming errors; log loudly and continue.
		o.logger.Error("provision.fsm.invalid_transition", "Illegal state transition", map[string]interface{}{
			"role": role.String(),
			"from": string(from),
			"to":   string(to),
		})
	}

	o.logger.Debug("provision.fsm.transition", "State transition", map[string]interface{}{
		"role":  role.String(),
		"model": modelID,
		"from":  string(from),
		"to":    string(to),
	})
	return to
}
