package configdir

import (
	"os"
	"path/filepath"
)

const defaultConfigDir = "/etc/modelforge"

// ConfigDir resolves the configuration directory respecting overrides
func ConfigDir() string {
	if env := os.Getenv("MODELFORGE_CONFIG_DIR"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
	}
	return defaultConfigDir
}
