package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"predictra/internal/services"
)

// maxHeaderBytes bounds how much of the file is read during validation.
const maxHeaderBytes = 1 << 20

// inspectCSV checks that the input looks like sensor data before a process is
// spawned for it: a header row, at least one data row, and a consistent
// delimiter. Both comma and semicolon exports are accepted.
func inspectCSV(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "supervisor", "inspect csv",
			fmt.Sprintf("open input %q", path), err)
	}
	defer file.Close()

	reader := bufio.NewReader(io.LimitReader(file, maxHeaderBytes))
	header, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, services.Wrap(services.ErrValidation, "supervisor", "inspect csv", "read header", err)
	}
	header = strings.TrimRight(header, "\r\n")
	if strings.TrimSpace(header) == "" {
		return nil, services.Wrap(services.ErrValidation, "supervisor", "inspect csv", "input file is empty", nil)
	}

	delimiter := ","
	if strings.Count(header, ";") > strings.Count(header, ",") {
		delimiter = ";"
	}

	columns := strings.Split(header, delimiter)
	for i, column := range columns {
		columns[i] = strings.TrimSpace(column)
		if columns[i] == "" {
			return nil, services.Wrap(services.ErrValidation, "supervisor", "inspect csv",
				fmt.Sprintf("header column %d is empty", i+1), nil)
		}
	}

	dataRow, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, services.Wrap(services.ErrValidation, "supervisor", "inspect csv", "read data row", err)
	}
	if strings.TrimSpace(dataRow) == "" {
		return nil, services.Wrap(services.ErrValidation, "supervisor", "inspect csv",
			"input file has a header but no data rows", nil)
	}

	return columns, nil
}

// missingColumns reports which wanted columns are absent from the header.
func missingColumns(header, wanted []string) []string {
	present := make(map[string]struct{}, len(header))
	for _, column := range header {
		present[column] = struct{}{}
	}
	var missing []string
	for _, column := range wanted {
		if _, ok := present[column]; !ok {
			missing = append(missing, column)
		}
	}
	return missing
}

// stageInput copies the caller's CSV into the scratch directory so the run
// owns a stable file for its whole lifetime, independent of what the caller
// does with the original. The returned path must be removed when the run
// finishes, on every path.
func stageInput(scratchDir, runID, srcPath string) (string, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "supervisor", "stage input",
			fmt.Sprintf("create scratch dir %q", scratchDir), err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "supervisor", "stage input",
			fmt.Sprintf("open input %q", srcPath), err)
	}
	defer src.Close()

	staged := filepath.Join(scratchDir, runID+".csv")
	dst, err := os.OpenFile(staged, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "supervisor", "stage input", "create staged file", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(staged)
		return "", services.Wrap(services.ErrConfiguration, "supervisor", "stage input", "copy input", err)
	}
	return staged, nil
}

func newRunID() string {
	return uuid.NewString()
}
