// Package manifest tracks everything the provisioner installed so a
// later uninstall removes exactly that and nothing else.
package manifest

import (
	"time"

	"modelforge/internal/catalog"
)

// State describes how much the manifest can be trusted.
type State string

const (
	// StateOK means the manifest was read and parsed.
	StateOK State = "ok"
	// StateEmpty means no manifest exists; nothing was ever installed.
	StateEmpty State = "empty"
	// StateUnknown means the manifest file exists but could not be
	// parsed. Ownership of anything on disk cannot be assumed.
	StateUnknown State = "unknown"
)

// EntryKind classifies what an entry refers to.
type EntryKind string

const (
	// KindModel is a model installed through the runtime.
	KindModel EntryKind = "model"
	// KindFile is a file this tool wrote.
	KindFile EntryKind = "file"
	// KindDir is a directory this tool created.
	KindDir EntryKind = "dir"
)

// Entry records one installed artifact. Ref is the model identifier
// for models and the absolute path for files and directories.
type Entry struct {
	Kind        EntryKind    `json:"kind"`
	Ref         string       `json:"ref"`
	Role        catalog.Role `json:"role,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	RecordedAt  time.Time    `json:"recorded_at"`
}

// FailureRecord remembers a failed role so the retry entry point can
// resume without a full re-plan.
type FailureRecord struct {
	Role       catalog.Role `json:"role"`
	Model      string       `json:"model"`
	Kind       string       `json:"kind"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Manifest is the persisted installation record.
type Manifest struct {
	RunID   string          `json:"run_id"`
	Created time.Time       `json:"created"`
	Updated time.Time       `json:"updated"`
	Entries []Entry         `json:"entries"`
	Failed  []FailureRecord `json:"failed,omitempty"`

	// State is derived at load time, never persisted.
	State State `json:"-"`
}

// HasEntries reports whether anything is recorded as installed.
func (m *Manifest) HasEntries() bool {
	return m != nil && len(m.Entries) > 0
}

// ModelEntries returns the recorded model installs.
func (m *Manifest) ModelEntries() []Entry {
	var models []Entry
	for _, e := range m.Entries {
		if e.Kind == KindModel {
			models = append(models, e)
		}
	}
	return models
}
