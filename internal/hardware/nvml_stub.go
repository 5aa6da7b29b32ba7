//go:build !cuda

package hardware

import "modelforge/internal/logging"

// newVRAMProbe returns a no-op probe when built without the cuda tag.
func newVRAMProbe(logger *logging.Logger) VRAMProbe {
	if logger != nil {
		logger.Debug("hardware.gpu.disabled", "GPU probing disabled (built without cuda tag)", nil)
	}
	return noopProbe{}
}

type noopProbe struct{}

func (noopProbe) Probe() (*GPUInfo, error) {
	return nil, nil
}
