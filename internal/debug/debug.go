// Package debug provides process-wide diagnostic logging for the MFT search
// core. It is silent by default: the GUI/CLI layers own user-facing output,
// and this package exists purely for engineers chasing down a parser or
// scheduler bug.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug can be overridden at build time:
// go build -ldflags "-X github.com/cobaltfs/mftindex/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var debugOutput io.Writer
var debugFile *os.File
var debugMutex sync.Mutex

// SetDebugOutput sets a custom writer for debug output. Pass nil to disable
// debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile initializes debug logging to a timestamped file under
// the OS temp directory and returns its path. Call CloseDebugLog when done.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "mftindex-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// IsDebugEnabled reports whether debug output is currently active.
func IsDebugEnabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("MFTINDEX_DEBUG")
	return v == "1" || v == "true"
}

func getDebugWriter() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Log writes a structured, component-tagged debug line.
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format+"\n", append([]interface{}{component}, args...)...)
}

// LogVolume logs volume-open and geometry-query activity.
func LogVolume(format string, args ...interface{}) { Log("VOLUME", format, args...) }

// LogScheduler logs MFT read-scheduling activity.
func LogScheduler(format string, args ...interface{}) { Log("SCHEDULER", format, args...) }

// LogParser logs record-parsing activity.
func LogParser(format string, args ...interface{}) { Log("PARSER", format, args...) }

// LogSearch logs pattern-matching and traversal activity.
func LogSearch(format string, args ...interface{}) { Log("SEARCH", format, args...) }
