// Package safego provides a panic-safe goroutine launcher and a crash
// log writer, adapted from the teacher's crashlog.go: a goroutine
// panicking mid-stream (a dropped Docker connection, a malformed log
// frame) must not bring the whole engine down.
package safego

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"
)

// CrashLogPath is where panic reports are appended. Override for
// tests or to relocate it under a per-run temp dir.
var CrashLogPath = filepath.Join(os.TempDir(), "logradar-crash.log")

// Go launches fn in a new goroutine, recovering any panic and
// appending a crash report instead of letting it propagate. name
// identifies the goroutine in the report (e.g. "ingest-docker-web-1").
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				WriteCrashLog(r, name)
			}
		}()
		fn()
	}()
}

// WriteCrashLog appends a crash report to CrashLogPath, falling back
// to stderr if the file cannot be opened. A nil recovered value is a
// no-op.
func WriteCrashLog(r interface{}, goroutineName string) {
	if r == nil {
		return
	}

	f, err := os.OpenFile(CrashLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open crash log: %v\n", err)
		f = os.Stderr
	}
	defer f.Close()

	fmt.Fprintf(f, "\n\n")
	fmt.Fprintf(f, "================================================================\n")
	fmt.Fprintf(f, "CRASH REPORT - %s\n", time.Now().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(f, "================================================================\n\n")

	if goroutineName != "" {
		fmt.Fprintf(f, "Goroutine: %s\n\n", goroutineName)
	} else {
		fmt.Fprintf(f, "Goroutine: main\n\n")
	}

	fmt.Fprintf(f, "Error: %v\n\n", r)

	fmt.Fprintf(f, "Crashing Goroutine Stack Trace:\n")
	fmt.Fprintf(f, "----------------------------------------------------------------\n")
	f.Write(debug.Stack())
	fmt.Fprintf(f, "\n")

	fmt.Fprintf(f, "All Goroutines Stack Dump:\n")
	fmt.Fprintf(f, "----------------------------------------------------------------\n")
	buf := make([]byte, 1024*1024)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])
	fmt.Fprintf(f, "\n")

	if f != os.Stderr {
		fmt.Fprintf(os.Stderr, "fatal error in goroutine %q: %v (full report: %s)\n", goroutineName, r, CrashLogPath)
	}
}
