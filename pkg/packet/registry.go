package packet

import (
    "errors"
    "fmt"
    "sort"
    "sync"

    "buildnode/pkg/protocol"
)

// ErrUnknownType is wrapped in the framing error returned for unregistered tags.
var ErrUnknownType = errors.New("unknown packet type")

// Constructor allocates an empty packet of one type.
type Constructor func() Packet

// Registry maps type tags to constructors. The set of tags is closed: a frame
// with an unregistered tag is a framing error.
type Registry struct {
    mu    sync.RWMutex
    ctors map[Type]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{ctors: make(map[Type]Constructor)} }

// DefaultRegistry returns a registry holding every built-in packet.
func DefaultRegistry() *Registry {
    r := NewRegistry()
    for _, c := range []Constructor{
        func() Packet { return &NodeConfiguration{} },
        func() Packet { return &NodeBuildComplete{} },
        func() Packet { return &NodeShutdown{} },
        func() Packet { return &TaskCancelled{} },
        func() Packet { return &Payload{} },
    } {
        if err := r.Register(c().Type(), c); err != nil { panic(err) }
    }
    return r
}

// Register adds a constructor for t.
func (r *Registry) Register(t Type, c Constructor) error {
    if t == TypeUnknown { return fmt.Errorf("packet type 0x00 is reserved") }
    r.mu.Lock(); defer r.mu.Unlock()
    if _, ok := r.ctors[t]; ok { return fmt.Errorf("packet type %s already registered", t) }
    r.ctors[t] = c
    return nil
}

// Types lists the registered tags in ascending order.
func (r *Registry) Types() []Type {
    r.mu.RLock(); defer r.mu.RUnlock()
    out := make([]Type, 0, len(r.ctors))
    for t := range r.ctors { out = append(out, t) }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

// CreateFromBytes allocates the packet registered for t and fills it from
// payload.
func (r *Registry) CreateFromBytes(t Type, payload []byte) (Packet, error) {
    r.mu.RLock(); c := r.ctors[t]; r.mu.RUnlock()
    if c == nil { return nil, &protocol.FramingError{Op: fmt.Sprintf("packet %s", t), Err: ErrUnknownType} }
    p := c()
    if err := Unmarshal(payload, p); err != nil { return nil, err }
    return p, nil
}
