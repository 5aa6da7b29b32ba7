// Package export emits the provisioned role-to-model bindings for
// editor and agent integrations to consume.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"modelforge/internal/catalog"
	"modelforge/internal/fsutil"
	"modelforge/internal/logging"
	"modelforge/internal/provision"
)

const (
	// BindingsFileName is the default bindings file name in the state directory
	BindingsFileName = "role_bindings.yaml"
)

// RoleBinding is one exported role-to-model tuple. The file format is
// a plain list; what consumers do with it is their business.
type RoleBinding struct {
	Role     catalog.Role `yaml:"role"`
	Model    string       `yaml:"model"`
	MemoryGB float64      `yaml:"memory_gb"`
}

// bindingsFile is the on-disk envelope.
type bindingsFile struct {
	Bindings []RoleBinding `yaml:"bindings"`
}

// DefaultPath returns the bindings path inside a state directory.
func DefaultPath(stateDir string) string {
	return filepath.Join(stateDir, BindingsFileName)
}

// Bindings derives the exported tuples from the roles whose install
// actually succeeded. Model and memory cost both describe the entry
// the runtime installed, which after a fallback is not the one the
// portfolio originally selected. Order follows role priority.
func Bindings(outcomes []provision.PullOutcome) []RoleBinding {
	succeeded := make(map[catalog.Role]provision.PullOutcome, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Success {
			succeeded[outcome.Role] = outcome
		}
	}

	var bindings []RoleBinding
	for _, role := range catalog.Roles() {
		outcome, ok := succeeded[role]
		if !ok {
			continue
		}
		bindings = append(bindings, RoleBinding{
			Role:     role,
			Model:    outcome.Model,
			MemoryGB: outcome.MemoryGB,
		})
	}
	return bindings
}

// Merge overlays updates onto existing bindings. A retry pass only
// carries the roles it re-ran; earlier bindings must survive. Output
// order follows role priority.
func Merge(existing, updates []RoleBinding) []RoleBinding {
	byRole := make(map[catalog.Role]RoleBinding, len(existing)+len(updates))
	for _, b := range existing {
		byRole[b.Role] = b
	}
	for _, b := range updates {
		byRole[b.Role] = b
	}

	var merged []RoleBinding
	for _, role := range catalog.Roles() {
		if b, ok := byRole[role]; ok {
			merged = append(merged, b)
		}
	}
	return merged
}

// Write marshals bindings to YAML and writes them atomically.
func Write(path string, bindings []RoleBinding, logger *logging.Logger) error {
	data, err := yaml.Marshal(bindingsFile{Bindings: bindings})
	if err != nil {
		return fmt.Errorf("failed to marshal role bindings: %w", err)
	}

	if err := fsutil.EnsureStateDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	if err := fsutil.AtomicWriteFile(path, data, fsutil.DefaultFilePermissions, logger); err != nil {
		return err
	}

	logger.Info("export.bindings.written", "Role bindings exported", map[string]interface{}{
		"path":  path,
		"count": len(bindings),
	})
	return nil
}

// Read loads a bindings file, mainly for tests and the models listing.
func Read(path string) ([]RoleBinding, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read role bindings: %w", err)
	}
	var file bindingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse role bindings: %w", err)
	}
	return file.Bindings, nil
}
