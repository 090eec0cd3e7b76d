package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteCSV writes sensor CSV content to a fresh temp file and returns its
// path.
func WriteCSV(t testing.TB, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "readings.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv %s: %v", path, err)
	}
	return path
}

// SampleCSV is a minimal two-column sensor export used across tests.
const SampleCSV = "temp,vibration\n20.5,0.10\n21.1,0.12\n20.9,0.11\n"
