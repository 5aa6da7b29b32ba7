// Package portfolio resolves the role→model assignment for one run.
package portfolio

import (
	"errors"

	"modelforge/internal/budget"
	"modelforge/internal/catalog"
	"modelforge/internal/logging"
)

// ErrNoViablePortfolio is returned when even the cheapest primary entry
// does not fit the primary sub-budget. Callers must treat this as a
// hard stop rather than a silently partial result.
var ErrNoViablePortfolio = errors.New("no viable portfolio: cheapest primary model does not fit the budget")

// Portfolio maps each filled role to its chosen catalog entry.
// Unfilled roles are absent. No two roles carry the same canonical
// identifier; budget-forced merges collapse to the higher-priority slot.
type Portfolio struct {
	Assignments map[catalog.Role]catalog.Entry
}

// TotalGB returns the combined memory cost of all assignments.
func (p Portfolio) TotalGB() float64 {
	var total float64
	for _, role := range catalog.Roles() {
		if e, ok := p.Assignments[role]; ok {
			total += e.MemoryGB
		}
	}
	return total
}

// Roles returns the filled roles in priority order.
func (p Portfolio) Roles() []catalog.Role {
	var roles []catalog.Role
	for _, role := range catalog.Roles() {
		if _, ok := p.Assignments[role]; ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// Selector picks one model per role within an allocation.
type Selector struct {
	cat    *catalog.Catalog
	logger *logging.Logger
}

// NewSelector creates a portfolio selector.
func NewSelector(cat *catalog.Catalog, logger *logging.Logger) *Selector {
	return &Selector{cat: cat, logger: logger}
}

// Select resolves one model per role. For each role, in fixed priority
// order, it picks the most capable entry fitting the role's sub-budget,
// descending through cheaper entries when the better ones don't fit.
// Duplicate identifiers across roles collapse into the higher-priority
// slot, and the freed cost is credited back for at most one upgrade per
// remaining role, again in priority order. Deterministic for identical
// catalog and budget inputs.
func (s *Selector) Select(alloc budget.Allocation) (Portfolio, error) {
	assignments := make(map[catalog.Role]catalog.Entry)

	for _, role := range catalog.Roles() {
		entry, ok := pickForRole(s.cat.Entries(role), alloc.ForRole(role))
		if !ok {
			if role == catalog.RolePrimary {
				s.logger.Error("portfolio.select.no_viable", "No primary model fits the budget", map[string]interface{}{
					"primary_budget_gb": alloc.ForRole(role),
				})
				return Portfolio{}, ErrNoViablePortfolio
			}
			s.logger.Info("portfolio.select.role_unfilled", "No model fits role sub-budget", map[string]interface{}{
				"role":      role.String(),
				"budget_gb": alloc.ForRole(role),
			})
			continue
		}
		assignments[role] = entry
	}

	freed := collapseDuplicates(assignments, s.logger)
	if freed > 0 {
		s.applyUpgradeCredit(assignments, alloc, freed)
	}

	p := Portfolio{Assignments: assignments}
	s.logger.Info("portfolio.select.resolved", "Portfolio resolved", map[string]interface{}{
		"roles":    len(assignments),
		"total_gb": p.TotalGB(),
	})
	return p, nil
}

// pickForRole returns the most capable entry fitting the sub-budget.
// Entries are ordered most capable first, so the first fit wins.
func pickForRole(entries []catalog.Entry, subBudget float64) (catalog.Entry, bool) {
	for _, e := range entries {
		if e.MemoryGB <= subBudget {
			return e, true
		}
	}
	return catalog.Entry{}, false
}

// collapseDuplicates removes lower-priority roles whose identifier is
// already assigned to a higher-priority role and returns the freed cost.
func collapseDuplicates(assignments map[catalog.Role]catalog.Entry, logger *logging.Logger) float64 {
	seen := make(map[string]catalog.Role)
	var freed float64

	for _, role := range catalog.Roles() {
		entry, ok := assignments[role]
		if !ok {
			continue
		}
		if keeper, dup := seen[entry.ID]; dup {
			delete(assignments, role)
			freed += entry.MemoryGB
			logger.Info("portfolio.select.duplicate_collapsed", "Duplicate assignment collapsed", map[string]interface{}{
				"model":     entry.ID,
				"kept_in":   keeper.String(),
				"collapsed": role.String(),
				"freed_gb":  entry.MemoryGB,
			})
			continue
		}
		seen[entry.ID] = role
	}

	return freed
}

// applyUpgradeCredit spends freed budget on upgrades. Roles are visited
// in fixed priority order with at most one upgrade attempt each; an
// upgrade may exceed the role's sub-budget by at most the remaining
// credit. This is the documented tie-break when several roles could
// consume the credit.
func (s *Selector) applyUpgradeCredit(assignments map[catalog.Role]catalog.Entry, alloc budget.Allocation, credit float64) {
	assigned := make(map[string]bool, len(assignments))
	for _, e := range assignments {
		assigned[e.ID] = true
	}

	for _, role := range catalog.Roles() {
		current, ok := assignments[role]
		if !ok {
			continue
		}

		subBudget := alloc.ForRole(role)
		for _, candidate := range s.cat.Entries(role) {
			if candidate.MemoryGB <= current.MemoryGB {
				break // entries are ordered; nothing more capable left
			}
			if assigned[candidate.ID] {
				continue
			}

			overdraft := candidate.MemoryGB - subBudget
			if overdraft < 0 {
				overdraft = 0
			}
			if overdraft > credit {
				continue
			}

			delete(assigned, current.ID)
			assigned[candidate.ID] = true
			assignments[role] = candidate
			credit -= overdraft

			s.logger.Info("portfolio.select.upgraded", "Role upgraded with freed budget", map[string]interface{}{
				"role": role.String(),
				"from": current.ID,
				"to":   candidate.ID,
			})
			break
		}

		if credit <= 0 {
			return
		}
	}
}
