//go:build cuda

package hardware

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"modelforge/internal/logging"
)

// DeviceInterface defines the interface for GPU device operations (for mocking)
type DeviceInterface interface {
	GetName() (string, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
}

// NVMLInterface defines the interface for NVML operations (for mocking)
type NVMLInterface interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (DeviceInterface, nvml.Return)
}

// deviceWrapper wraps nvml.Device to implement DeviceInterface
type deviceWrapper struct {
	device nvml.Device
}

func (w deviceWrapper) GetName() (string, nvml.Return) {
	return w.device.GetName()
}

func (w deviceWrapper) GetMemoryInfo() (nvml.Memory, nvml.Return) {
	return w.device.GetMemoryInfo()
}

// RealNVML implements NVMLInterface using the actual NVML library
type RealNVML struct{}

// NewRealNVML creates a new real NVML instance
func NewRealNVML() *RealNVML {
	return &RealNVML{}
}

// Init initializes NVML
func (r *RealNVML) Init() nvml.Return {
	return nvml.Init()
}

// Shutdown shuts down NVML
func (r *RealNVML) Shutdown() nvml.Return {
	return nvml.Shutdown()
}

// DeviceGetCount returns the number of GPU devices
func (r *RealNVML) DeviceGetCount() (int, nvml.Return) {
	return nvml.DeviceGetCount()
}

// DeviceGetHandleByIndex returns a handle to a GPU device
func (r *RealNVML) DeviceGetHandleByIndex(index int) (DeviceInterface, nvml.Return) {
	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, ret
	}
	return deviceWrapper{device: device}, ret
}

// nvmlProbe reports the VRAM of the first detected GPU via NVML.
type nvmlProbe struct {
	nvml   NVMLInterface
	logger *logging.Logger
}

func newVRAMProbe(logger *logging.Logger) VRAMProbe {
	return &nvmlProbe{nvml: NewRealNVML(), logger: logger}
}

// NewNVMLProbe creates a probe with a custom NVML interface (for testing).
func NewNVMLProbe(nvmlInterface NVMLInterface, logger *logging.Logger) VRAMProbe {
	return &nvmlProbe{nvml: nvmlInterface, logger: logger}
}

// Probe returns the first GPU's name and VRAM, or nil when no GPU is
// present. NVML init failure is reported as an error so the detector
// can log it and continue without a VRAM bonus.
func (p *nvmlProbe) Probe() (*GPUInfo, error) {
	ret := p.nvml.Init()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to initialize NVML: %v", nvml.ErrorString(ret))
	}
	defer p.nvml.Shutdown()

	count, ret := p.nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to count GPU devices: %v", nvml.ErrorString(ret))
	}
	if count == 0 {
		return nil, nil
	}

	device, ret := p.nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to get GPU handle: %v", nvml.ErrorString(ret))
	}

	name, ret := device.GetName()
	if ret != nvml.SUCCESS {
		name = "unknown"
	}

	memInfo, ret := device.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to get GPU memory info: %v", nvml.ErrorString(ret))
	}

	return &GPUInfo{
		Name:   name,
		VRAMGB: float64(memInfo.Total) / (1 << 30),
	}, nil
}
