package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"modelforge/internal/logging"
)

func TestGetStateDir_Default(t *testing.T) {
	t.Setenv("MODELFORGE_STATE_DIR", "")

	got := GetStateDir("/var/lib/modelforge")
	if got != "/var/lib/modelforge" {
		t.Errorf("Expected default state dir, got %s", got)
	}
}

func TestGetStateDir_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MODELFORGE_STATE_DIR", tmpDir)

	got := GetStateDir("/var/lib/modelforge")
	if got != tmpDir {
		t.Errorf("Expected %s, got %s", tmpDir, got)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := logging.NewLogger(logging.LevelInfo)

	target := filepath.Join(tmpDir, "state.json")
	data := []byte(`{"ok": true}`)

	if err := AtomicWriteFile(target, data, 0o600, logger); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	read, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Failed to read written file: %v", err)
	}
	if string(read) != string(data) {
		t.Errorf("Expected %s, got %s", data, read)
	}

	// No leftover temp file
	if _, err := os.Stat(target + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected temp file to be gone after rename")
	}
}

func TestFileFingerprint(t *testing.T) {
	tmpDir := t.TempDir()

	path := filepath.Join(tmpDir, "bindings.yaml")
	if err := os.WriteFile(path, []byte("roles: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	fp1, err := FileFingerprint(path)
	if err != nil {
		t.Fatalf("FileFingerprint failed: %v", err)
	}
	if fp1 == "" {
		t.Fatal("Expected non-empty fingerprint")
	}

	// Stable across reads
	fp2, err := FileFingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if fp1 != fp2 {
		t.Errorf("Expected stable fingerprint, got %s and %s", fp1, fp2)
	}

	// Matches the in-memory fingerprint of the same content
	if fp1 != Fingerprint([]byte("roles: []\n")) {
		t.Error("Expected file and content fingerprints to match")
	}

	// Changes when the content changes
	if err := os.WriteFile(path, []byte("roles: [primary]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	fp3, err := FileFingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if fp3 == fp1 {
		t.Error("Expected fingerprint to change after modification")
	}
}

func TestFileFingerprint_Missing(t *testing.T) {
	if _, err := FileFingerprint(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("Expected error for missing file")
	}
}
