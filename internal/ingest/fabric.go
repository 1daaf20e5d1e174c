package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nanook72/logradar/internal/safego"
)

// DefaultCapacity is the shared event channel's buffer size.
const DefaultCapacity = 4096

// registration tracks one live source's cancel function and
// descriptor, the registry side of the teacher's
// activeStreams map[string]context.CancelFunc.
type registration struct {
	descriptor Descriptor
	cancel     context.CancelFunc
	adapter    SourceAdapter
}

// Fabric is the shared pipe every source adapter writes onto and the
// registry of which sources are currently live. It performs no
// aggregation itself; the engine drains Events() and does all
// pattern/state bookkeeping, matching the spec's single-threaded
// coordinator design (§5).
type Fabric struct {
	mu      sync.Mutex
	sources map[string]*registration

	events chan SourceEvent
}

// NewFabric builds a Fabric with the given channel capacity (0 uses
// DefaultCapacity).
func NewFabric(capacity int) *Fabric {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Fabric{
		sources: make(map[string]*registration),
		events:  make(chan SourceEvent, capacity),
	}
}

// Events is the shared channel every adapter publishes onto. The
// engine is the sole consumer.
func (f *Fabric) Events() <-chan SourceEvent {
	return f.events
}

// Register starts adapter streaming under a fresh child of parent,
// keyed by desc.ID. Returns an error if an ID is already registered;
// check-and-insert happens under a single lock to avoid the
// register/register race the teacher's activeStreams comment calls
// out (TOCTOU on existence check vs map insert).
func (f *Fabric) Register(parent context.Context, desc Descriptor, adapter SourceAdapter) error {
	f.mu.Lock()
	if _, exists := f.sources[desc.ID]; exists {
		f.mu.Unlock()
		return fmt.Errorf("ingest: source %q already registered", desc.ID)
	}
	ctx, cancel := context.WithCancel(parent)
	f.sources[desc.ID] = &registration{descriptor: desc, cancel: cancel, adapter: adapter}
	f.mu.Unlock()

	safego.Go(fmt.Sprintf("ingest-%s-%s", desc.Kind, desc.ID), func() {
		defer f.forget(desc.ID)
		adapter.Run(ctx, desc.ID, f.events)
	})
	return nil
}

func (f *Fabric) forget(id string) {
	f.mu.Lock()
	delete(f.sources, id)
	f.mu.Unlock()
}

// Cancel stops a source's adapter goroutine. It is idempotent: a
// second Cancel on an already-stopped or unknown ID is a no-op
// reporting false.
func (f *Fabric) Cancel(id string) bool {
	f.mu.Lock()
	reg, ok := f.sources[id]
	f.mu.Unlock()
	if !ok {
		return false
	}
	reg.cancel()
	return true
}

// CancelAll stops every registered source, for shutdown.
func (f *Fabric) CancelAll() {
	f.mu.Lock()
	regs := make([]*registration, 0, len(f.sources))
	for _, reg := range f.sources {
		regs = append(regs, reg)
	}
	f.mu.Unlock()

	for _, reg := range regs {
		reg.cancel()
	}
}

// Descriptors returns a snapshot of every currently-registered
// source's Descriptor, copied under lock.
func (f *Fabric) Descriptors() []Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Descriptor, 0, len(f.sources))
	for _, reg := range f.sources {
		out = append(out, reg.descriptor)
	}
	return out
}

// Registered reports whether id currently has a live registration.
func (f *Fabric) Registered(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sources[id]
	return ok
}

// Drain pulls every event currently buffered on the channel without
// blocking, for the engine's Drain to process in one batch.
func (f *Fabric) Drain() []SourceEvent {
	var out []SourceEvent
	for {
		select {
		case ev := <-f.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
