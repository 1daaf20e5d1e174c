package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nanook72/logradar/internal/ingest"
)

// fakeAdapter emits a canned sequence of lines then stops, for
// deterministic engine-level tests without real Docker/files/procs.
type fakeAdapter struct {
	lines []string
	kind  ingest.Kind
}

func (a *fakeAdapter) Run(ctx context.Context, sourceID string, out chan<- ingest.SourceEvent) {
	send := func(ev ingest.SourceEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	if !send(statusEvent(sourceID, a.kind, ingest.StateStarting, nil)) {
		return
	}
	if !send(statusEvent(sourceID, a.kind, ingest.StateRunning, nil)) {
		return
	}
	for _, line := range a.lines {
		if !send(ingest.SourceEvent{
			SourceID: sourceID,
			Kind:     a.kind,
			Log:      &ingest.LogEvent{SourceID: sourceID, Raw: line, At: time.Now()},
		}) {
			return
		}
	}
	send(statusEvent(sourceID, a.kind, ingest.StateStopped, nil))
}

func statusEvent(sourceID string, kind ingest.Kind, state ingest.State, err error) ingest.SourceEvent {
	return ingest.SourceEvent{
		SourceID: sourceID,
		Kind:     kind,
		Status:   &ingest.StatusChange{State: state, Err: err},
	}
}

func waitForDrain(t *testing.T, e *Engine, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	total := 0
	for time.Now().Before(deadline) {
		total += e.Drain()
		if total >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("drained %d events, want at least %d", total, want)
}

func TestRegisterIngestAndSnapshot(t *testing.T) {
	e := New(Config{})
	ctx := context.Background()

	adapter := &fakeAdapter{kind: ingest.KindCommand, lines: []string{
		"2024-01-01T00:00:00Z user 1 logged in",
		"2024-01-01T00:00:01Z user 2 logged in",
	}}
	id, err := e.Register(ctx, ingest.Descriptor{Kind: ingest.KindCommand}, adapter)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	waitForDrain(t, e, 5, time.Second) // starting, running, 2 logs, stopped

	snap := e.Snapshot()
	if len(snap.Sources) != 1 {
		t.Fatalf("len(Sources) = %d, want 1", len(snap.Sources))
	}
	if snap.Sources[0].ID != id {
		t.Errorf("Sources[0].ID = %q, want %q", snap.Sources[0].ID, id)
	}
	if len(snap.Patterns) != 1 {
		t.Fatalf("len(Patterns) = %d, want 1 (both lines normalize identically)", len(snap.Patterns))
	}
	if snap.Patterns[0].CountTotal != 2 {
		t.Errorf("CountTotal = %d, want 2", snap.Patterns[0].CountTotal)
	}
}

func TestDoubleRegisterSameIDErrors(t *testing.T) {
	e := New(Config{})
	ctx := context.Background()
	desc := ingest.Descriptor{ID: "fixed", Kind: ingest.KindCommand}

	if _, err := e.Register(ctx, desc, &fakeAdapter{kind: ingest.KindCommand}); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if _, err := e.Register(ctx, desc, &fakeAdapter{kind: ingest.KindCommand}); err == nil {
		t.Error("second Register() with the same ID should error")
	}
}

func TestPauseDiscardsLogsButKeepsStatus(t *testing.T) {
	e := New(Config{})
	ctx := context.Background()
	e.Pause()

	adapter := &fakeAdapter{kind: ingest.KindCommand, lines: []string{"hello world"}}
	id, err := e.Register(ctx, ingest.Descriptor{Kind: ingest.KindCommand}, adapter)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	waitForDrain(t, e, 4, time.Second)

	snap := e.Snapshot()
	if len(snap.Patterns) != 0 {
		t.Errorf("len(Patterns) = %d, want 0 while paused", len(snap.Patterns))
	}
	if len(snap.Sources) != 1 || snap.Sources[0].State != ingest.StateStopped {
		t.Errorf("Sources = %+v, want one source with State=Stopped (status applied even while paused)", snap.Sources)
	}
	if snap.Sources[0].ID != id {
		t.Errorf("Sources[0].ID = %q, want %q", snap.Sources[0].ID, id)
	}

	e.Resume()
	adapter2 := &fakeAdapter{kind: ingest.KindCommand, lines: []string{"hello again"}}
	if _, err := e.Register(ctx, ingest.Descriptor{Kind: ingest.KindCommand}, adapter2); err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
	waitForDrain(t, e, 4, time.Second)

	snap = e.Snapshot()
	if len(snap.Patterns) != 1 {
		t.Errorf("len(Patterns) after Resume = %d, want 1", len(snap.Patterns))
	}
}
