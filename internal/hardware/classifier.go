package hardware

// Tier floors in GB. Boundaries are inclusive-lower/exclusive-upper:
// a machine at exactly a floor lands in the upper tier.
const (
	floorC = 16.0
	floorB = 24.0
	floorA = 32.0
	floorS = 64.0
)

// Classify maps total RAM to a capability tier. Total and deterministic:
// every non-negative RAM value maps to exactly one tier, and anything
// below the lowest floor is TierUnsupported.
func Classify(totalRAMGB float64) Tier {
	switch {
	case totalRAMGB >= floorS:
		return TierS
	case totalRAMGB >= floorA:
		return TierA
	case totalRAMGB >= floorB:
		return TierB
	case totalRAMGB >= floorC:
		return TierC
	default:
		return TierUnsupported
	}
}
