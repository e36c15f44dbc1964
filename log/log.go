// Package log provides logging for the toolkit: package-level loggers for
// host-side events and per-connection session loggers that record every
// byte crossing a console wire.
// Enable verbose debug logging by setting HILCOMM_DEBUG=1.
package log

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

var (
	InfoLog    *log.Logger
	WarningLog *log.Logger
	ErrorLog   *log.Logger
	DebugLog   *log.Logger

	DebugEnabled bool

	logFile *os.File
)

var logFileName = filepath.Join(os.TempDir(), "hilcomm.log")

// Initialize sets up the package loggers. Output goes to a file in the
// temp dir so test runs on remote rigs always leave an artifact behind.
// If quiet is false, warnings and errors are mirrored to stderr.
func Initialize(quiet bool) {
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		// Fall back to stderr-only loggers.
		InfoLog = log.New(io.Discard, "", 0)
		WarningLog = log.New(os.Stderr, "WARN: ", log.Ldate|log.Ltime)
		ErrorLog = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
		DebugLog = log.New(io.Discard, "", 0)
		return
	}
	logFile = f

	errOut := io.Writer(f)
	warnOut := io.Writer(f)
	if !quiet {
		errOut = io.MultiWriter(f, os.Stderr)
		warnOut = io.MultiWriter(f, os.Stderr)
	}

	flags := log.Ldate | log.Ltime | log.Lmicroseconds
	InfoLog = log.New(f, "INFO: ", flags)
	WarningLog = log.New(warnOut, "WARN: ", flags)
	ErrorLog = log.New(errOut, "ERROR: ", flags)

	if os.Getenv("HILCOMM_DEBUG") == "1" {
		DebugEnabled = true
		DebugLog = log.New(f, "DEBUG: ", flags)
		DebugLog.Println("Debug mode enabled")
	} else {
		DebugLog = log.New(io.Discard, "", 0)
	}
}

// Close flushes and closes the log file.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Debug logs a debug message if debug mode is enabled.
func Debug(format string, v ...interface{}) {
	if DebugEnabled && DebugLog != nil {
		DebugLog.Printf(format, v...)
	}
}

// Path returns the location of the host-side log file.
func Path() string {
	return logFileName
}

func init() {
	// Packages may log before main calls Initialize (e.g. in tests).
	discard := log.New(io.Discard, "", 0)
	InfoLog, WarningLog, ErrorLog, DebugLog = discard, discard, discard, discard
}
