package config

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Provisioning: ProvisioningConfig{
			Disabled:           false,
			MaxAttemptsPerRole: 3,
		},
		Runtime: RuntimeConfig{
			Endpoint:           "http://localhost:11434",
			PullTimeoutSeconds: 1800, // large models over slow links
			HealthRetries:      3,
		},
		Catalog: CatalogConfig{
			Path: "", // embedded catalog
		},
		Export: ExportConfig{
			Path: "",
		},
		Uninstall: UninstallConfig{
			BackupDir: "",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}
