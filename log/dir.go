package log

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const logDirRoot = "test_run_logs"

// Dir is a per-run log directory created under test_run_logs/ with a
// timestamped name. Session logs and other artifacts of one test run
// are collected inside it.
type Dir struct {
	Name     string
	FullPath string
}

// NewDir creates the log directory. An optional suffix is appended to
// the timestamped name after an underscore separator.
func NewDir(suffix string) (*Dir, error) {
	name := filepath.Join(logDirRoot, time.Now().Format("2006-01-02_15-04-05"))
	if suffix != "" {
		name = fmt.Sprintf("%s_%s", name, suffix)
	}

	if err := os.MkdirAll(name, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", name, err)
	}

	full, err := filepath.Abs(name)
	if err != nil {
		full = name
	}
	InfoLog.Printf("created log directory %s", name)
	return &Dir{Name: name, FullPath: full}, nil
}

// File returns the path of a file inside the log directory.
func (d *Dir) File(name string) string {
	return filepath.Join(d.Name, name)
}
