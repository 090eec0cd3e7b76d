package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"predictra/internal/logging"
)

func TestCleanupOldLogsPrunesByAge(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "predictra-old.log")
	fresh := filepath.Join(dir, "predictra-new.log")
	kept := filepath.Join(dir, "predictra-excluded.log")
	for _, path := range []string{old, fresh, kept} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, kept} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	logging.CleanupOldLogs(logging.NewNop(), 7,
		logging.RetentionTarget{Dir: dir, Pattern: "predictra-*.log", Exclude: []string{kept}},
	)

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected %s pruned, stat err=%v", old, err)
	}
	for _, path := range []string{fresh, kept} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "predictra-old.log")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stale := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(path, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	logging.CleanupOldLogs(logging.NewNop(), 0,
		logging.RetentionTarget{Dir: dir, Pattern: "predictra-*.log"},
	)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("retention 0 must not prune: %v", err)
	}
}
