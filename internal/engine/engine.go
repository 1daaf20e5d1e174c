// Package engine is the coordinator: the single-threaded owner of
// the PatternStore, the source table, and the fuzzy index. It is
// grounded in the teacher's model.Update dispatch (one goroutine
// reacting to a stream of typed messages and mutating owned state)
// but expressed as direct synchronous methods rather than a
// bubbletea Msg loop, since the engine has no UI event loop of its
// own — it is called by one.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nanook72/logradar/internal/ansi"
	"github.com/nanook72/logradar/internal/fuzzyindex"
	"github.com/nanook72/logradar/internal/ingest"
	"github.com/nanook72/logradar/internal/loglevel"
	"github.com/nanook72/logradar/internal/normalize"
	"github.com/nanook72/logradar/internal/pattern"
	"github.com/nanook72/logradar/internal/telemetry"
)

// Config aggregates the tunables of every subsystem the engine wires
// together. Zero-value fields fall back to each subsystem's own
// defaults.
type Config struct {
	ChannelCapacity int
	Pattern         pattern.Config
}

// SourceInfo is the list_sources() view of one registered source.
type SourceInfo struct {
	ID          string
	Descriptor  ingest.Descriptor
	State       ingest.State
	StartedAt   time.Time
	LastErr     error
}

// Snapshot is the full engine-state view handed to a renderer.
type Snapshot struct {
	Sources  []SourceInfo
	Patterns []pattern.Snapshot
}

// Engine is the coordinator. Register, Drain, and Tick are meant to be
// called from one goroutine (the spec's "coordinator execution
// context"), matching PatternStore's and Fabric's own single-consumer
// assumptions. Snapshot and FuzzySearch are the exception: the MCP
// query handler calls them from its own goroutine, so sourcesMu guards
// the source table the same way PatternStore's patternsMu guards
// patterns.
type Engine struct {
	cfg    Config
	fabric *ingest.Fabric
	store  *pattern.Store

	sourcesMu sync.RWMutex
	sources   map[string]*SourceInfo
	nextID    uint64

	paused atomic.Bool

	lastTick time.Time
}

// New builds an Engine with the given config.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		fabric:  ingest.NewFabric(cfg.ChannelCapacity),
		store:   pattern.NewStore(cfg.Pattern),
		sources: make(map[string]*SourceInfo),
	}
}

// Register allocates a source_id, creates the source record in
// Starting, and spawns the adapter. desc.ID is overwritten with the
// allocated id if empty; callers may also pass a caller-chosen ID, as
// long as it is unique.
func (e *Engine) Register(ctx context.Context, desc ingest.Descriptor, adapter ingest.SourceAdapter) (string, error) {
	e.sourcesMu.Lock()
	if desc.ID == "" {
		e.nextID++
		desc.ID = fmt.Sprintf("%s-%d", desc.Kind, e.nextID)
	}
	if _, exists := e.sources[desc.ID]; exists {
		e.sourcesMu.Unlock()
		return "", fmt.Errorf("engine: source %q already registered", desc.ID)
	}
	e.sourcesMu.Unlock()

	if err := e.fabric.Register(ctx, desc, adapter); err != nil {
		return "", err
	}

	e.sourcesMu.Lock()
	e.sources[desc.ID] = &SourceInfo{
		ID:         desc.ID,
		Descriptor: desc,
		State:      ingest.StateStarting,
		StartedAt:  time.Now(),
	}
	e.sourcesMu.Unlock()
	telemetry.Logger.WithFields(telemetry.SourceFields(desc.ID, desc.Kind.String(), "starting")).Info("source registered")
	return desc.ID, nil
}

// Cancel stops a source. Fire-and-forget: the terminal Status arrives
// on a later Drain.
func (e *Engine) Cancel(id string) bool {
	return e.fabric.Cancel(id)
}

// Pause suspends pattern ingestion: Drain still empties the shared
// channel (so producers never back up against a paused consumer) but
// incoming Log events are discarded rather than folded into the
// PatternStore. Status events are always applied, paused or not, so
// list_sources stays accurate.
func (e *Engine) Pause() {
	e.paused.Store(true)
}

// Resume reverses Pause.
func (e *Engine) Resume() {
	e.paused.Store(false)
}

// Paused reports the current pause state.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// ResetPatterns clears all pattern state (PatternStore.Reset).
func (e *Engine) ResetPatterns() {
	e.store.Reset()
}

// ClearCounts zeroes every pattern's counters, keeping identity.
func (e *Engine) ClearCounts() {
	e.store.ClearCounts(time.Now())
}

// Drain pulls every currently-buffered SourceEvent from the fabric,
// applies Status transitions to the source table unconditionally, and
// (unless paused) folds Log events into the PatternStore: stripping
// ANSI, detecting level, normalizing, hashing, and calling
// PatternStore.Ingest. Returns the number of events processed.
func (e *Engine) Drain() int {
	events := e.fabric.Drain()
	for _, ev := range events {
		e.apply(ev)
	}
	return len(events)
}

func (e *Engine) apply(ev ingest.SourceEvent) {
	if ev.Status != nil {
		e.applyStatus(ev)
		return
	}
	if ev.Log != nil && !e.paused.Load() {
		e.applyLog(ev.SourceID, ev.Log)
	}
}

func (e *Engine) applyStatus(ev ingest.SourceEvent) {
	e.sourcesMu.Lock()
	info, ok := e.sources[ev.SourceID]
	if ok {
		info.State = ev.Status.State
		info.LastErr = ev.Status.Err
	}
	e.sourcesMu.Unlock()
	if !ok {
		return
	}

	fields := telemetry.SourceFields(ev.SourceID, ev.Kind.String(), info.State.String())
	if ev.Status.Err != nil {
		telemetry.Logger.WithFields(fields).WithError(ev.Status.Err).Warn("source status changed")
	} else {
		telemetry.Logger.WithFields(fields).Info("source status changed")
	}
}

func (e *Engine) applyLog(sourceID string, ev *ingest.LogEvent) {
	stripped := ansi.Strip(ev.Raw)
	level := loglevel.Detect(stripped)
	canonical := normalize.Normalize(stripped)
	sig := pattern.Hash(canonical)
	// exemplar is stored ANSI-stripped rather than ev.Raw verbatim, so
	// an operator reading it isn't staring at escape codes.
	e.store.Ingest(sig, canonical, stripped, level, sourceID, ev.At)
}

// Tick advances the PatternStore's rolling-window bookkeeping. Call
// at ≥1 Hz (spec default: when ≥1s has elapsed since the last tick).
func (e *Engine) Tick(now time.Time) {
	e.store.Tick(now)
	e.lastTick = now
}

// ShouldTick reports whether at least interval has elapsed since the
// last Tick, per the coordinator loop's "drain; tick if due" shape.
func (e *Engine) ShouldTick(now time.Time, interval time.Duration) bool {
	return now.Sub(e.lastTick) >= interval
}

// Snapshot returns the full render-facing view: sources and patterns.
// Safe to call from any goroutine, including concurrently with Drain
// and Tick on the coordinator goroutine.
func (e *Engine) Snapshot() Snapshot {
	e.sourcesMu.RLock()
	sources := make([]SourceInfo, 0, len(e.sources))
	for _, info := range e.sources {
		sources = append(sources, *info)
	}
	e.sourcesMu.RUnlock()

	return Snapshot{
		Sources:  sources,
		Patterns: e.store.Snapshot(),
	}
}

// FuzzySearch ranks the current pattern snapshot against query.
func (e *Engine) FuzzySearch(query string) []fuzzyindex.Result {
	return fuzzyindex.Search(query, e.store.CanonicalStrings())
}

// Shutdown cancels every registered source, for process exit.
func (e *Engine) Shutdown() {
	e.fabric.CancelAll()
}
