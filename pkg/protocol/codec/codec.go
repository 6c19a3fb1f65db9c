package codec

import "fmt"

// Content types understood by the registry.
const (
    ContentUnknown = "application/octet-stream"
    ContentJSON    = "application/json"
    ContentCBOR    = "application/cbor"
    ContentProto   = "application/x-protobuf"
)

// Codec marshals typed messages carried in payload bodies and catalog records.
// Implementations must be deterministic so equal values encode to equal bytes.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct { byType map[string]Codec }

// NewRegistry constructs a registry preloaded with JSON, CBOR and Protobuf.
func NewRegistry() (*Registry, error) {
    r := &Registry{byType: make(map[string]Codec)}
    c, err := CBOR()
    if err != nil { return nil, fmt.Errorf("cbor codec: %w", err) }
    r.Register(JSON())
    r.Register(c)
    r.Register(Proto())
    return r, nil
}

// MustRegistry is NewRegistry that panics on error.
func MustRegistry() *Registry {
    r, err := NewRegistry()
    if err != nil { panic(err) }
    return r
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }
