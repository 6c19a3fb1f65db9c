// Package packet defines the packets exchanged between a host and its build
// nodes and the registry that turns received frames back into packets.
package packet

import (
    "fmt"

    "buildnode/pkg/protocol"
    "buildnode/pkg/protocol/translate"
)

// Type is the one-byte tag that leads every frame.
type Type uint8

const (
    TypeUnknown           Type = 0x00
    TypeNodeConfiguration Type = 0x01
    TypeNodeBuildComplete Type = 0x02
    TypeNodeShutdown      Type = 0x03
    TypeTaskCancelled     Type = 0x04
    TypePayload           Type = 0x10
)

func (t Type) String() string {
    switch t {
    case TypeNodeConfiguration:
        return "NodeConfiguration"
    case TypeNodeBuildComplete:
        return "NodeBuildComplete"
    case TypeNodeShutdown:
        return "NodeShutdown"
    case TypeTaskCancelled:
        return "TaskCancelled"
    case TypePayload:
        return "Payload"
    default:
        return fmt.Sprintf("Type(0x%02x)", uint8(t))
    }
}

// Packet is a message with a stable type tag. Translate describes its fields
// in wire order for both directions.
type Packet interface {
    translate.Translatable
    Type() Type
}

// Marshal serializes the fields of p.
func Marshal(p Packet) ([]byte, error) {
    w := translate.NewWriter()
    p.Translate(w)
    if err := w.Err(); err != nil { return nil, fmt.Errorf("marshal %s: %w", p.Type(), err) }
    return w.Payload(), nil
}

// Unmarshal fills p from payload; every byte must be consumed.
func Unmarshal(payload []byte, p Packet) error {
    r := translate.NewReader(payload)
    p.Translate(r)
    if err := r.Finish(); err != nil { return fmt.Errorf("unmarshal %s: %w", p.Type(), err) }
    return nil
}

// EncodeFrame returns the complete wire frame for p.
func EncodeFrame(p Packet) ([]byte, error) {
    payload, err := Marshal(p)
    if err != nil { return nil, err }
    return protocol.AppendFrame(make([]byte, 0, protocol.FrameHeaderSize+len(payload)), uint8(p.Type()), payload)
}
