// Package events publishes node lifecycle events.
package events

import (
    "context"
    "sync"
    "time"
)

// Kind names a lifecycle transition.
type Kind string

const (
    Launched        Kind = "launched"
    Reclaimed       Kind = "reclaimed"
    Ready           Kind = "ready"
    Terminated      Kind = "terminated"
    LaunchFailed    Kind = "launch_failed"
    HandshakeFailed Kind = "handshake_failed"
    PoolShutdown    Kind = "pool_shutdown"
)

// Event is one lifecycle notification. Fields that do not apply are zero.
type Event struct {
    Kind     Kind      `json:"kind"`
    Session  string    `json:"session"`
    NodeID   int       `json:"node_id,omitempty"`
    PID      int       `json:"pid,omitempty"`
    Endpoint string    `json:"endpoint,omitempty"`
    Reusable bool      `json:"reusable,omitempty"`
    Forced   bool      `json:"forced,omitempty"`
    Error    string    `json:"error,omitempty"`
    Time     time.Time `json:"time"`
}

// Sink receives events. Publish must not block for long and must be safe
// for concurrent use; delivery failures are the sink's own business.
type Sink interface {
    Publish(ctx context.Context, e Event)
}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) {
    for _, s := range m {
        if s != nil { s.Publish(ctx, e) }
    }
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}

// Recorder keeps events in memory.
type Recorder struct {
    mu     sync.Mutex
    events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
    r.mu.Lock(); r.events = append(r.events, e); r.mu.Unlock()
}

// Events returns a copy of what was recorded so far.
func (r *Recorder) Events() []Event {
    r.mu.Lock(); defer r.mu.Unlock()
    return append([]Event(nil), r.events...)
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
    r.mu.Lock(); defer r.mu.Unlock()
    out := make([]Kind, len(r.events))
    for i, e := range r.events { out[i] = e.Kind }
    return out
}
