package hardware

import "encoding/json"

// Tier is the discrete hardware capability bucket derived from total RAM.
// Tiers are ordered: Unsupported < TierC < TierB < TierA < TierS.
type Tier int

const (
	// TierUnsupported marks machines below the lowest supported floor.
	// Callers must treat it as a hard stop, not a degraded tier.
	TierUnsupported Tier = iota
	// TierC covers 16-24 GB machines.
	TierC
	// TierB covers 24-32 GB machines.
	TierB
	// TierA covers 32-64 GB machines.
	TierA
	// TierS covers 64+ GB machines.
	TierS
)

// String returns the tier label
func (t Tier) String() string {
	switch t {
	case TierC:
		return "C"
	case TierB:
		return "B"
	case TierA:
		return "A"
	case TierS:
		return "S"
	default:
		return "unsupported"
	}
}

// MarshalJSON emits the tier label rather than its ordinal.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses a tier label.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "C":
		*t = TierC
	case "B":
		*t = TierB
	case "A":
		*t = TierA
	case "S":
		*t = TierS
	default:
		*t = TierUnsupported
	}
	return nil
}

// ReservationFraction returns the fraction of total RAM reserved for the
// OS and other workloads at this tier. Fractions are monotonically
// non-increasing as the tier increases: bigger machines give up
// proportionally less.
func (t Tier) ReservationFraction() float64 {
	switch t {
	case TierC:
		return 0.40
	case TierB:
		return 0.35
	case TierA:
		return 0.30
	case TierS:
		return 0.30
	default:
		return 1.0
	}
}

// GPUInfo describes a detected discrete GPU.
type GPUInfo struct {
	Name   string  `json:"name"`
	VRAMGB float64 `json:"vram_gb"`
}

// Profile captures the hardware facts the engine budgets against.
// Detected once per run; immutable afterward.
type Profile struct {
	TotalRAMGB float64  `json:"total_ram_gb"`
	Arch       string   `json:"arch"`
	Tier       Tier     `json:"tier"`
	GPU        *GPUInfo `json:"gpu,omitempty"`
}

// Supported reports whether the machine clears the lowest tier floor.
func (p Profile) Supported() bool {
	return p.Tier != TierUnsupported
}
