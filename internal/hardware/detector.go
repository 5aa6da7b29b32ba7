package hardware

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"modelforge/internal/fsutil"
	"modelforge/internal/logging"
)

// VRAMProbe reports discrete-GPU memory when a supported GPU is present.
// Implementations: the NVML probe (cuda builds), a no-op stub otherwise,
// and fakes in tests.
type VRAMProbe interface {
	Probe() (*GPUInfo, error)
}

// Detector queries the host once and produces an immutable Profile.
type Detector struct {
	logger   *logging.Logger
	probe    VRAMProbe
	totalRAM func() (float64, error)
	arch     func() string
}

// NewDetector creates a detector using the real OS queries and GPU probe.
func NewDetector(logger *logging.Logger) *Detector {
	return &Detector{
		logger:   logger,
		probe:    newVRAMProbe(logger),
		totalRAM: systemTotalRAMGB,
		arch:     systemArch,
	}
}

// NewDetectorWithProbe creates a detector with a custom VRAM probe and
// RAM query (for testing).
func NewDetectorWithProbe(probe VRAMProbe, totalRAM func() (float64, error), logger *logging.Logger) *Detector {
	return &Detector{
		logger:   logger,
		probe:    probe,
		totalRAM: totalRAM,
		arch:     systemArch,
	}
}

// Detect queries total RAM, CPU architecture and optional discrete-GPU
// VRAM, and classifies the machine into a tier.
func (d *Detector) Detect() (Profile, error) {
	totalGB, err := d.totalRAM()
	if err != nil {
		return Profile{}, fmt.Errorf("failed to query total RAM: %w", err)
	}

	profile := Profile{
		TotalRAMGB: totalGB,
		Arch:       d.arch(),
		Tier:       Classify(totalGB),
	}

	if d.probe != nil {
		gpu, err := d.probe.Probe()
		if err != nil {
			// GPU detection is best-effort; a failed probe means no VRAM bonus
			d.logger.Warn("hardware.gpu.probe_failed", "GPU probe failed", map[string]interface{}{
				"error": err.Error(),
			})
		} else if gpu != nil {
			profile.GPU = gpu
		}
	}

	payload := map[string]interface{}{
		"total_ram_gb": profile.TotalRAMGB,
		"arch":         profile.Arch,
		"tier":         profile.Tier.String(),
	}
	if profile.GPU != nil {
		payload["gpu"] = profile.GPU.Name
		payload["vram_gb"] = profile.GPU.VRAMGB
	}
	d.logger.Info("hardware.profile.detected", "Hardware profile detected", payload)

	return profile, nil
}

// SaveProfile persists the profile snapshot for inspection by the
// hardware subcommand.
func (d *Detector) SaveProfile(profile Profile, path string) error {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal hardware profile: %w", err)
	}

	if err := fsutil.AtomicWriteFile(path, data, fsutil.DefaultFilePermissions, d.logger); err != nil {
		return fmt.Errorf("failed to write hardware profile: %w", err)
	}

	d.logger.Info("hardware.profile.saved", "Hardware profile saved", map[string]interface{}{
		"path": path,
	})
	return nil
}

// LoadProfile reads a previously saved profile snapshot.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read hardware profile: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("failed to unmarshal hardware profile: %w", err)
	}
	return profile, nil
}

func systemTotalRAMGB() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return float64(vm.Total) / (1 << 30), nil
}

func systemArch() string {
	if info, err := host.Info(); err == nil && info.KernelArch != "" {
		return info.KernelArch
	}
	return runtime.GOARCH
}
