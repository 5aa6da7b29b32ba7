package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"modelforge/internal/fsutil"
	"modelforge/internal/logging"
)

// Action is the planned disposition for one manifest entry.
type Action string

const (
	// ActionRemove: the artifact is still as recorded; remove it.
	ActionRemove Action = "remove"
	// ActionPrompt: the artifact changed since install; ask first.
	ActionPrompt Action = "prompt"
	// ActionSkip: the artifact is already gone.
	ActionSkip Action = "skip"
)

// Step is one planned uninstall operation.
type Step struct {
	Entry  Entry  `json:"entry"`
	Action Action `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// Planner inspects the filesystem against the manifest and decides
// what uninstall may remove outright, what needs confirmation, and
// what is already gone. It changes nothing itself.
type Planner struct {
	logger *logging.Logger
}

// NewPlanner creates an uninstall planner.
func NewPlanner(logger *logging.Logger) *Planner {
	return &Planner{logger: logger}
}

// Plan derives uninstall steps from a manifest. A manifest that is not
// in StateOK yields no steps: without a trustworthy record nothing on
// disk can be claimed.
func (p *Planner) Plan(m *Manifest) []Step {
	if m == nil || m.State != StateOK {
		return nil
	}

	var steps []Step
	for _, entry := range m.Entries {
		steps = append(steps, p.planEntry(entry))
	}
	return steps
}

func (p *Planner) planEntry(entry Entry) Step {
	switch entry.Kind {
	case KindModel:
		// Model presence is the runtime's business; removal is
		// attempted and a missing model tolerated there.
		return Step{Entry: entry, Action: ActionRemove}

	case KindFile:
		current, err := fsutil.FileFingerprint(entry.Ref)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Step{Entry: entry, Action: ActionSkip, Reason: "already absent"}
			}
			return Step{Entry: entry, Action: ActionPrompt, Reason: fmt.Sprintf("unreadable: %v", err)}
		}
		if entry.Fingerprint != "" && current != entry.Fingerprint {
			return Step{Entry: entry, Action: ActionPrompt, Reason: "modified since install"}
		}
		return Step{Entry: entry, Action: ActionRemove}

	case KindDir:
		listing, err := os.ReadDir(entry.Ref)
		if err != nil {
			if os.IsNotExist(err) {
				return Step{Entry: entry, Action: ActionSkip, Reason: "already absent"}
			}
			return Step{Entry: entry, Action: ActionPrompt, Reason: fmt.Sprintf("unreadable: %v", err)}
		}
		if len(listing) > 0 {
			return Step{Entry: entry, Action: ActionPrompt, Reason: "directory not empty"}
		}
		return Step{Entry: entry, Action: ActionRemove}
	}

	return Step{Entry: entry, Action: ActionSkip, Reason: "unknown entry kind"}
}

// ModelRemover is the slice of the runtime API the uninstaller needs.
type ModelRemover interface {
	Delete(ctx context.Context, modelID string) error
}

// Decision is the answer to a prompt step.
type Decision int

const (
	// DecisionKeep leaves the artifact in place.
	DecisionKeep Decision = iota
	// DecisionRemove removes the artifact as-is.
	DecisionRemove
	// DecisionBackupRemove backs the file up, then removes it.
	DecisionBackupRemove
)

// ConfirmFunc decides a prompt step. Non-interactive runs pass a
// function that always keeps, which leaves the artifact in place.
type ConfirmFunc func(step Step) Decision

// Result tallies one uninstall execution. Skipped artifacts were
// already absent; they count toward completion but not toward the
// removed tally.
type Result struct {
	Removed  []string `json:"removed"`
	Skipped  []string `json:"skipped"`
	Kept     []string `json:"kept"`
	Failed   []string `json:"failed"`
	Complete bool     `json:"complete"`
}

// Uninstaller executes a plan against the runtime and the filesystem.
type Uninstaller struct {
	tracker   *Tracker
	remover   ModelRemover
	backupDir string
	logger    *logging.Logger
}

// NewUninstaller creates an uninstaller. backupDir may be empty to
// disable file backups.
func NewUninstaller(tracker *Tracker, remover ModelRemover, backupDir string, logger *logging.Logger) *Uninstaller {
	return &Uninstaller{
		tracker:   tracker,
		remover:   remover,
		backupDir: backupDir,
		logger:    logger,
	}
}

// Execute runs the plan. Prompt steps are decided by confirm; kept
// steps leave the artifact. The manifest file itself is removed only
// when every step completed without failure and nothing was kept.
func (u *Uninstaller) Execute(ctx context.Context, steps []Step, confirm ConfirmFunc) Result {
	result := Result{
		Removed: []string{},
		Skipped: []string{},
		Kept:    []string{},
		Failed:  []string{},
	}

	for _, step := range steps {
		// Removal of untouched files honors the configured backup dir.
		backup := u.backupDir != ""

		switch step.Action {
		case ActionSkip:
			result.Skipped = append(result.Skipped, step.Entry.Ref)
			continue
		case ActionPrompt:
			decision := DecisionKeep
			if confirm != nil {
				decision = confirm(step)
			}
			if decision == DecisionKeep {
				u.logger.Info("uninstall.step.kept", "Artifact kept on user decision", map[string]interface{}{
					"ref":    step.Entry.Ref,
					"reason": step.Reason,
				})
				result.Kept = append(result.Kept, step.Entry.Ref)
				continue
			}
			backup = decision == DecisionBackupRemove
		}

		if err := u.removeEntry(ctx, step.Entry, backup); err != nil {
			u.logger.Error("uninstall.step.failed", "Failed to remove artifact", map[string]interface{}{
				"kind":  string(step.Entry.Kind),
				"ref":   step.Entry.Ref,
				"error": err.Error(),
			})
			result.Failed = append(result.Failed, step.Entry.Ref)
			continue
		}
		result.Removed = append(result.Removed, step.Entry.Ref)
	}

	result.Complete = len(result.Failed) == 0 && len(result.Kept) == 0
	if result.Complete {
		if err := u.tracker.Clear(); err != nil {
			u.logger.Warn("uninstall.manifest.clear_failed", "Could not remove manifest", map[string]interface{}{
				"error": err.Error(),
			})
			result.Complete = false
		}
	}
	return result
}

func (u *Uninstaller) removeEntry(ctx context.Context, entry Entry, backup bool) error {
	switch entry.Kind {
	case KindModel:
		err := u.remover.Delete(ctx, entry.Ref)
		if err != nil {
			return err
		}
		u.logger.Info("uninstall.model.removed", "Model removed", map[string]interface{}{
			"model": entry.Ref,
		})
		return nil

	case KindFile:
		if backup {
			if err := u.backupFile(entry.Ref); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
		}
		if err := os.Remove(entry.Ref); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil

	case KindDir:
		if err := os.Remove(entry.Ref); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return fmt.Errorf("unknown entry kind: %s", entry.Kind)
}

// backupFile copies a file into the backup directory before removal.
// Without a configured backup dir, backups land under the state dir.
func (u *Uninstaller) backupFile(path string) error {
	dir := u.backupDir
	if dir == "" {
		dir = filepath.Join(u.tracker.stateDir, "backups")
	}
	if err := os.MkdirAll(dir, fsutil.DefaultStatePermissions); err != nil {
		return err
	}

	src, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer fsutil.CloseWithError(src.Close, u.logger, "backup source")

	dst, err := os.OpenFile(filepath.Join(dir, filepath.Base(path)),
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fsutil.DefaultFilePermissions)
	if err != nil {
		return err
	}
	defer fsutil.CloseWithError(dst.Close, u.logger, "backup destination")

	_, err = io.Copy(dst, src)
	return err
}
