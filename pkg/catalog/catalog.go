// Package catalog records idle worker nodes that asked to be kept for reuse,
// so that a later CreateNode with the same handshake can reconnect to one
// instead of launching a process.
package catalog

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "buildnode/pkg/handshake"
    "buildnode/pkg/protocol"
    "buildnode/pkg/protocol/codec"
    "buildnode/pkg/transport"
)

const keyPrefix = "idle:"

// Record describes one idle node.
type Record struct {
    Endpoint  transport.Endpoint  `cbor:"endpoint"`
    PID       int                 `cbor:"pid"`
    Handshake handshake.Handshake `cbor:"handshake"`
    Session   string              `cbor:"session"`
    IdleSince time.Time           `cbor:"idle_since"`
}

// Key is the storage key: records are grouped by handshake so Take only
// scans compatible nodes.
func (r Record) Key() string { return handshakePrefix(r.Handshake) + r.Endpoint.String() }

func handshakePrefix(h handshake.Handshake) string { return keyPrefix + h.Key() + ":" }

// Catalog stores idle node records. Implementations are safe for concurrent
// use; Take hands a record to at most one caller.
type Catalog interface {
    // Put records rec for ttl; ttl <= 0 keeps it until taken or removed.
    Put(ctx context.Context, rec Record, ttl time.Duration) error
    // Take removes and returns a record whose handshake equals h.
    Take(ctx context.Context, h handshake.Handshake) (Record, bool, error)
    List(ctx context.Context) ([]Record, error)
    Remove(ctx context.Context, rec Record) error
    Close() error
}

var records = codec.MustRegistry()

func encode(rec Record) ([]byte, error) { return protocol.EncodeBody(records, protocol.FormatCBOR, rec) }

func decode(b []byte) (Record, error) {
    var rec Record
    if _, err := protocol.DecodeBody(records, b, &rec); err != nil { return Record{}, fmt.Errorf("decode catalog record: %w", err) }
    return rec, nil
}

// Open returns the backend named by kind: memory, badger or none. path is
// the badger directory; empty keeps badger in memory.
func Open(kind, path string) (Catalog, error) {
    switch strings.ToLower(kind) {
    case "", "memory":
        return NewMemory(), nil
    case "badger":
        return OpenBadger(path)
    case "none":
        return Nop{}, nil
    default:
        return nil, fmt.Errorf("unknown catalog kind %q", kind)
    }
}

// ErrClosed is returned by a closed catalog.
var ErrClosed = errors.New("catalog closed")

// Nop forgets everything; used when node reuse is disabled.
type Nop struct{}

func (Nop) Put(context.Context, Record, time.Duration) error { return nil }
func (Nop) Take(context.Context, handshake.Handshake) (Record, bool, error) {
    return Record{}, false, nil
}
func (Nop) List(context.Context) ([]Record, error) { return nil, nil }
func (Nop) Remove(context.Context, Record) error   { return nil }
func (Nop) Close() error                           { return nil }
