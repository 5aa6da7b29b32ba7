package config

// Config represents the complete modelforge configuration
type Config struct {
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Runtime      RuntimeConfig      `yaml:"runtime"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Export       ExportConfig       `yaml:"export"`
	Uninstall    UninstallConfig    `yaml:"uninstall"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ProvisioningConfig gates and tunes the provisioning engine.
// Disabled is persisted so a larger bootstrap flow can switch
// auto-provisioning off without removing the binary.
type ProvisioningConfig struct {
	Disabled           bool `yaml:"disabled"`
	MaxAttemptsPerRole int  `yaml:"max_attempts_per_role"`
}

// Enabled reports whether the provisioning engine may run.
func (p ProvisioningConfig) Enabled() bool {
	return !p.Disabled
}

// RuntimeConfig describes how to reach the model runtime.
type RuntimeConfig struct {
	Endpoint           string `yaml:"endpoint"`
	PullTimeoutSeconds int    `yaml:"pull_timeout_seconds"`
	HealthRetries      int    `yaml:"health_retries"`
}

// CatalogConfig allows overriding the embedded model catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// ExportConfig controls where role bindings for the editor
// integration are written. Empty means <state dir>/role_bindings.yaml.
type ExportConfig struct {
	Path string `yaml:"path"`
}

// UninstallConfig controls uninstall behavior.
type UninstallConfig struct {
	BackupDir string `yaml:"backup_dir"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}
