// Package diag exposes lightweight runtime diagnostics for the
// engine's own health, adapted from the teacher's metrics.go.
package diag

import (
	"os"
	"runtime"
)

// OpenFDs returns the number of open file descriptors for the
// current process on Linux, or 0 on platforms without /proc.
func OpenFDs() int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0
	}
	return len(entries)
}

// Goroutines returns the current goroutine count.
func Goroutines() int {
	return runtime.NumGoroutine()
}

// Snapshot is a point-in-time set of runtime counters, useful for an
// operator-facing health check or periodic log line.
type Snapshot struct {
	Goroutines int
	OpenFDs    int
	AllocMB    uint64
	SysMB      uint64
	NumGC      uint32
}

// Read captures a Snapshot.
func Read() Snapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Snapshot{
		Goroutines: Goroutines(),
		OpenFDs:    OpenFDs(),
		AllocMB:    m.Alloc / 1024 / 1024,
		SysMB:      m.Sys / 1024 / 1024,
		NumGC:      m.NumGC,
	}
}
