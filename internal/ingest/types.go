// Package ingest is the log-source plumbing layer: it turns a
// Descriptor (what to read, and how) into a stream of SourceEvents
// flowing through one shared, bounded channel. It is grounded in the
// teacher's LogBroker: one registry of cancelable per-source
// goroutines (activeStreams), atomic check-and-insert to avoid
// registering the same source twice, and panic-safe launch via
// safego.Go (teacher's safeGo).
package ingest

import (
	"context"
	"time"
)

// Kind identifies which adapter a Descriptor is routed to.
type Kind int

const (
	KindDocker Kind = iota
	KindFile
	KindCommand
	KindCloudApp
)

func (k Kind) String() string {
	switch k {
	case KindDocker:
		return "docker"
	case KindFile:
		return "file"
	case KindCommand:
		return "command"
	case KindCloudApp:
		return "cloudapp"
	default:
		return "unknown"
	}
}

// State is a source's position in the Starting -> Running ->
// Stopped|Error lifecycle. Error is terminal: an adapter that hits an
// unrecoverable condition (auth failure, spawn failure) must not
// silently retry past it.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Descriptor names one log source and carries the fields its Kind's
// adapter needs. It is the tagged-value "Docker | File | Command |
// CloudApp" grammar from the spec, expressed as one struct with
// kind-specific fields rather than an interface, matching the
// teacher's preference for plain structs over adapter-specific types
// (container.Container, not a ContainerLike interface).
type Descriptor struct {
	ID   string
	Kind Kind

	// Docker
	ContainerID   string
	ContainerName string

	// File
	Path string

	// Command
	Command string
	Args    []string

	// CloudApp
	Endpoint        string
	BearerScope     string
	FallbackCommand string
	FallbackArgs    []string
}

// LogEvent is one ingested line as the adapter read it, with any ANSI
// escapes still in place; the engine strips and normalizes it.
type LogEvent struct {
	SourceID string
	Raw      string
	At       time.Time
}

// StatusChange reports a source's lifecycle transition. Err is set
// only when State is StateError.
type StatusChange struct {
	State State
	Err   error
}

// SourceEvent is exactly one of Log or Status; callers switch on
// which pointer is non-nil.
type SourceEvent struct {
	SourceID string
	Kind     Kind
	Log      *LogEvent
	Status   *StatusChange
}

// SourceAdapter streams one source's log lines and lifecycle
// transitions onto out until ctx is canceled or the source ends
// permanently. Implementations must emit a StateStarting event before
// attempting to connect, StateRunning once the connection, process,
// or file is established (not on the first byte of data), and exactly
// one terminal event (Stopped or Error) before returning.
type SourceAdapter interface {
	Run(ctx context.Context, sourceID string, out chan<- SourceEvent)
}

// emitStatus and emitLog are the choke point non-terminal events use
// to publish onto the shared channel: backpressure blocks the adapter
// (the channel is bounded, not unbounded), but a canceled context
// always wins so a source never wedges shutdown waiting on a full
// channel. Both report whether the event was delivered (false means
// it was dropped because ctx was already done). Log events are
// allowed to drop this way (BackpressureOverflow, spec §7); it is
// only ever possible during cancellation.
func emit(ctx context.Context, out chan<- SourceEvent, ev SourceEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func emitStatus(ctx context.Context, out chan<- SourceEvent, sourceID string, kind Kind, state State, err error) bool {
	return emit(ctx, out, SourceEvent{
		SourceID: sourceID,
		Kind:     kind,
		Status:   &StatusChange{State: state, Err: err},
	})
}

func emitLog(ctx context.Context, out chan<- SourceEvent, sourceID string, kind Kind, raw string, at time.Time) bool {
	return emit(ctx, out, SourceEvent{
		SourceID: sourceID,
		Kind:     kind,
		Log:      &LogEvent{SourceID: sourceID, Raw: raw, At: at},
	})
}

// emitTerminal delivers a source's one mandatory terminal Status
// (Stopped or Error) with a plain, ungated send. It must not race
// ctx.Done() the way emit does: by the time an adapter is ready to
// report its terminal status, ctx is very often already canceled
// (that's usually why the adapter is stopping), so gating this send
// on the same ctx would make Go's select pick between "deliver" and
// "ctx is done" at random, silently dropping the one event the fabric
// and every consumer relies on never being dropped (spec §4.5, §8
// scenario 6). The shared channel is drained continuously by the
// coordinator for the lifetime of the process, so a blocking send here
// only ever waits for buffer space, never forever.
func emitTerminal(out chan<- SourceEvent, sourceID string, kind Kind, state State, err error) {
	out <- SourceEvent{
		SourceID: sourceID,
		Kind:     kind,
		Status:   &StatusChange{State: state, Err: err},
	}
}
