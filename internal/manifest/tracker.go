package manifest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modelforge/internal/catalog"
	"modelforge/internal/fsutil"
	"modelforge/internal/logging"
)

const (
	// ManifestFileName is the name of the manifest file in the state directory
	ManifestFileName = "manifest.json"
)

// Tracker manages manifest persistence in the state directory.
type Tracker struct {
	stateDir string
	logger   *logging.Logger
}

// NewTracker creates a manifest tracker rooted at stateDir.
func NewTracker(stateDir string, logger *logging.Logger) *Tracker {
	return &Tracker{
		stateDir: stateDir,
		logger:   logger,
	}
}

// Path returns the full path to the manifest file.
func (t *Tracker) Path() string {
	return filepath.Join(t.stateDir, ManifestFileName)
}

// QuarantinePath is where an unparseable manifest is set aside.
func (t *Tracker) QuarantinePath() string {
	return t.Path() + ".corrupt"
}

// Load reads the manifest from disk. A missing file is not an error:
// it yields an empty manifest in StateEmpty. A file that exists but
// does not parse yields StateUnknown, so callers must not assume
// ownership of anything on disk.
func (t *Tracker) Load() (*Manifest, error) {
	data, err := os.ReadFile(t.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{
				Entries: []Entry{},
				State:   StateEmpty,
			}, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		// Set the unreadable file aside so a later Save cannot
		// silently destroy whatever it recorded.
		quarantine := t.QuarantinePath()
		if renameErr := os.Rename(t.Path(), quarantine); renameErr != nil {
			t.logger.Warn("manifest.load.corrupt", "Manifest file is unreadable", map[string]interface{}{
				"path":  t.Path(),
				"error": err.Error(),
			})
		} else {
			t.logger.Warn("manifest.load.corrupt", "Manifest file is unreadable, set aside", map[string]interface{}{
				"path":       t.Path(),
				"quarantine": quarantine,
				"error":      err.Error(),
			})
		}
		return &Manifest{
			Entries: []Entry{},
			State:   StateUnknown,
		}, nil
	}

	m.State = StateOK
	return &m, nil
}

// Save persists the manifest atomically, assigning a run identifier
// and creation time on first write.
func (t *Tracker) Save(m *Manifest) error {
	if err := fsutil.EnsureStateDirectory(t.stateDir); err != nil {
		return err
	}

	now := time.Now().UTC()
	if m.RunID == "" {
		m.RunID = newRunID(now)
		m.Created = now
	}
	m.Updated = now

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := fsutil.AtomicWriteFile(t.Path(), data, fsutil.DefaultFilePermissions, t.logger); err != nil {
		return err
	}

	t.logger.Info("manifest.saved", "Manifest saved", map[string]interface{}{
		"run_id":  m.RunID,
		"entries": len(m.Entries),
	})
	return nil
}

// RecordModel records a model install for a role. Re-recording the
// same model updates the existing entry.
func (t *Tracker) RecordModel(role catalog.Role, modelID string) error {
	m, err := t.Load()
	if err != nil {
		return err
	}

	t.upsert(m, Entry{
		Kind:       KindModel,
		Ref:        modelID,
		Role:       role,
		RecordedAt: time.Now().UTC(),
	})
	return t.Save(m)
}

// RecordFile records a file this tool wrote, fingerprinting its
// current content so uninstall can detect later modification.
func (t *Tracker) RecordFile(path string) error {
	m, err := t.Load()
	if err != nil {
		return err
	}

	fingerprint, err := fsutil.FileFingerprint(path)
	if err != nil {
		return fmt.Errorf("failed to fingerprint %s: %w", path, err)
	}

	t.upsert(m, Entry{
		Kind:        KindFile,
		Ref:         path,
		Fingerprint: fingerprint,
		RecordedAt:  time.Now().UTC(),
	})
	return t.Save(m)
}

// RecordDir records a directory this tool created.
func (t *Tracker) RecordDir(path string) error {
	m, err := t.Load()
	if err != nil {
		return err
	}

	t.upsert(m, Entry{
		Kind:       KindDir,
		Ref:        path,
		RecordedAt: time.Now().UTC(),
	})
	return t.Save(m)
}

// RecordFailure remembers a failed role for the retry entry point,
// replacing any previous failure for the same role.
func (t *Tracker) RecordFailure(role catalog.Role, modelID, kind string) error {
	m, err := t.Load()
	if err != nil {
		return err
	}

	filtered := make([]FailureRecord, 0, len(m.Failed))
	for _, f := range m.Failed {
		if f.Role != role {
			filtered = append(filtered, f)
		}
	}
	m.Failed = append(filtered, FailureRecord{
		Role:       role,
		Model:      modelID,
		Kind:       kind,
		RecordedAt: time.Now().UTC(),
	})
	return t.Save(m)
}

// ClearFailure drops the failure record for a role after a successful
// retry.
func (t *Tracker) ClearFailure(role catalog.Role) error {
	m, err := t.Load()
	if err != nil {
		return err
	}

	filtered := make([]FailureRecord, 0, len(m.Failed))
	for _, f := range m.Failed {
		if f.Role != role {
			filtered = append(filtered, f)
		}
	}
	if len(filtered) == len(m.Failed) {
		return nil
	}
	m.Failed = filtered
	return t.Save(m)
}

// Clear removes the manifest file entirely, e.g. after a completed
// uninstall.
func (t *Tracker) Clear() error {
	if err := os.Remove(t.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}

// upsert adds an entry or replaces the existing one with the same
// kind and ref.
func (t *Tracker) upsert(m *Manifest, entry Entry) {
	for i, existing := range m.Entries {
		if existing.Kind == entry.Kind && existing.Ref == entry.Ref {
			m.Entries[i] = entry
			return
		}
	}
	m.Entries = append(m.Entries, entry)
}

// newRunID builds a sortable, collision-resistant run identifier.
func newRunID(now time.Time) string {
	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return now.Format("20060102-150405")
	}
	return now.Format("20060102-150405") + "-" + hex.EncodeToString(suffix[:])
}
