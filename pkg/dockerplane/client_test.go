package dockerplane

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/supporttools/compose-doctor/pkg/types"
)

func writeAgedFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("log data"), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to age %s: %v", name, err)
	}
	return path
}

func TestPruneLogs(t *testing.T) {
	dir := t.TempDir()

	old1 := writeAgedFile(t, dir, "a.log", 10*24*time.Hour)
	old2 := writeAgedFile(t, dir, "b.log", 9*24*time.Hour)
	fresh := writeAgedFile(t, dir, "c.log", 1*24*time.Hour)
	notLog := writeAgedFile(t, dir, "d.txt", 30*24*time.Hour)

	deleted, err := pruneLogs(types.CleanupConfig{LogDir: dir, MaxAgeDays: 7})
	if err != nil {
		t.Fatalf("pruneLogs() unexpected error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("pruneLogs() deleted %d files, want 2", deleted)
	}

	for _, gone := range []string{old1, old2} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Errorf("%s still exists, want deleted", filepath.Base(gone))
		}
	}
	for _, kept := range []string{fresh, notLog} {
		if _, err := os.Stat(kept); err != nil {
			t.Errorf("%s missing, want kept: %v", filepath.Base(kept), err)
		}
	}
}

// TestPruneLogsMaxFiles verifies the per-pass cap deletes oldest first.
func TestPruneLogsMaxFiles(t *testing.T) {
	dir := t.TempDir()

	oldest := writeAgedFile(t, dir, "oldest.log", 30*24*time.Hour)
	middle := writeAgedFile(t, dir, "middle.log", 20*24*time.Hour)
	newest := writeAgedFile(t, dir, "newest.log", 10*24*time.Hour)

	deleted, err := pruneLogs(types.CleanupConfig{LogDir: dir, MaxAgeDays: 7, MaxFiles: 2})
	if err != nil {
		t.Fatalf("pruneLogs() unexpected error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("pruneLogs() deleted %d files, want 2 (capped)", deleted)
	}

	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Errorf("oldest.log still exists, want deleted first")
	}
	if _, err := os.Stat(middle); !os.IsNotExist(err) {
		t.Errorf("middle.log still exists, want deleted second")
	}
	if _, err := os.Stat(newest); err != nil {
		t.Errorf("newest.log missing, want kept by the cap")
	}
}

func TestPruneLogsMissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := pruneLogs(types.CleanupConfig{LogDir: missing, MaxAgeDays: 7}); err == nil {
		t.Errorf("pruneLogs() expected error for missing directory but got none")
	}
}

func TestShortID(t *testing.T) {
	long := "0123456789abcdef0123456789abcdef"
	if got := shortID(long); got != "0123456789ab" {
		t.Errorf("shortID() = %q, want first 12 chars", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID() = %q, want unchanged short input", got)
	}
}
