// Package budget converts a hardware profile into a usable-RAM ceiling
// and per-role sub-budgets the selector draws from.
package budget

import (
	"modelforge/internal/catalog"
	"modelforge/internal/hardware"
)

// Role share of usable RAM. The shares sum to 0.9, leaving an explicit
// 10% unallocated safety margin.
var roleShares = map[catalog.Role]float64{
	catalog.RolePrimary:      0.50,
	catalog.RoleAutocomplete: 0.20,
	catalog.RoleEmbedding:    0.10,
	catalog.RoleExtras:       0.10,
}

// Allocation is the budget derived from one hardware profile.
type Allocation struct {
	UsableGB float64
	Roles    map[catalog.Role]float64
}

// ForRole returns the sub-budget for a role.
func (a Allocation) ForRole(role catalog.Role) float64 {
	return a.Roles[role]
}

// Allocate computes usable RAM and per-role sub-budgets.
//
// Usable RAM is total RAM scaled by the tier's reservation fraction.
// On discrete-GPU hosts the model weights live in VRAM, so usable RAM
// is the maximum of the unified-memory estimate and reported VRAM.
// An unsupported tier yields a zero allocation.
func Allocate(profile hardware.Profile) Allocation {
	usable := profile.TotalRAMGB * (1 - profile.Tier.ReservationFraction())
	if usable < 0 {
		usable = 0
	}

	if profile.Supported() && profile.GPU != nil && profile.GPU.VRAMGB > usable {
		usable = profile.GPU.VRAMGB
	}

	roles := make(map[catalog.Role]float64, len(roleShares))
	for role, share := range roleShares {
		roles[role] = usable * share
	}

	return Allocation{
		UsableGB: usable,
		Roles:    roles,
	}
}
