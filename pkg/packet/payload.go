package packet

import (
    "fmt"

    "buildnode/pkg/protocol"
    "buildnode/pkg/protocol/codec"
    "buildnode/pkg/protocol/translate"
)

// Payload carries an engine message whose body is encoded with one of the
// registered codecs.
type Payload struct {
    Kind     string
    Sequence int64
    Format   protocol.Format
    Body     []byte
}

func (*Payload) Type() Type { return TypePayload }

func (p *Payload) Translate(t translate.Translator) {
    t.String(&p.Kind)
    t.Int64(&p.Sequence)
    translate.Enum(t, &p.Format)
    t.Bytes(&p.Body)
}

// NewPayload encodes v with the codec for f.
func NewPayload(reg *codec.Registry, kind string, seq int64, f protocol.Format, v any) (*Payload, error) {
    c, err := protocol.CodecFor(reg, f)
    if err != nil { return nil, err }
    body, err := c.Marshal(v)
    if err != nil { return nil, fmt.Errorf("encode %s payload: %w", kind, err) }
    return &Payload{Kind: kind, Sequence: seq, Format: f, Body: body}, nil
}

// Decode unmarshals the body into v with the codec named by the packet.
func (p *Payload) Decode(reg *codec.Registry, v any) error {
    c, err := protocol.CodecFor(reg, p.Format)
    if err != nil { return err }
    return c.Unmarshal(p.Body, v)
}
