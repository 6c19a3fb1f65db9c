package codec

import (
    "fmt"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct {
    mo proto.MarshalOptions
    uo proto.UnmarshalOptions
}

// Proto returns a Protocol Buffers codec. Besides proto messages it carries
// plain map[string]any bodies as google.protobuf.Struct, so payload kinds
// without a schema can still use the binary format.
func Proto() Codec {
    return protoCodec{
        mo: proto.MarshalOptions{Deterministic: true},
        uo: proto.UnmarshalOptions{DiscardUnknown: true},
    }
}

func (protoCodec) ContentType() string { return ContentProto }

func (p protoCodec) Marshal(v any) ([]byte, error) {
    switch m := v.(type) {
    case proto.Message:
        return p.mo.Marshal(m)
    case map[string]any:
        s, err := structpb.NewStruct(m)
        if err != nil { return nil, fmt.Errorf("protobuf: %w", err) }
        return p.mo.Marshal(s)
    default:
        return nil, fmt.Errorf("protobuf: cannot encode %T", v)
    }
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
    switch m := v.(type) {
    case proto.Message:
        return p.uo.Unmarshal(data, m)
    case *map[string]any:
        var s structpb.Struct
        if err := p.uo.Unmarshal(data, &s); err != nil { return err }
        *m = s.AsMap()
        return nil
    default:
        return fmt.Errorf("protobuf: cannot decode into %T", v)
    }
}
