package protocol

import (
    "fmt"

    "buildnode/pkg/protocol/codec"
)

// Format is a compact on-wire indicator of body encoding. It travels as an
// explicit field of payload packets and as the first byte of stored records.
type Format uint8

const (
    FormatUnknown Format = iota
    FormatJSON
    FormatCBOR
    FormatProto
)

func (f Format) String() string {
    switch f {
    case FormatJSON:
        return "json"
    case FormatCBOR:
        return "cbor"
    case FormatProto:
        return "proto"
    default:
        return "unknown"
    }
}

// ContentType maps the format to a codec content type.
func (f Format) ContentType() string {
    switch f {
    case FormatJSON:
        return codec.ContentJSON
    case FormatCBOR:
        return codec.ContentCBOR
    case FormatProto:
        return codec.ContentProto
    default:
        return codec.ContentUnknown
    }
}

// ParseFormat accepts the names produced by Format.String.
func ParseFormat(s string) (Format, error) {
    switch s {
    case "json":
        return FormatJSON, nil
    case "cbor":
        return FormatCBOR, nil
    case "proto", "protobuf":
        return FormatProto, nil
    default:
        return FormatUnknown, fmt.Errorf("unknown format: %q", s)
    }
}

// CodecFor returns the codec registered for f.
func CodecFor(r *codec.Registry, f Format) (codec.Codec, error) {
    if c := r.Get(f.ContentType()); c != nil { return c, nil }
    return nil, fmt.Errorf("no codec for format %s (%d)", f, f)
}

// EncodeBody serializes v using the codec for f and prefixes the result
// with a single format byte.
func EncodeBody(r *codec.Registry, f Format, v any) ([]byte, error) {
    c, err := CodecFor(r, f)
    if err != nil { return nil, err }
    b, err := c.Marshal(v)
    if err != nil { return nil, err }
    out := make([]byte, 1+len(b))
    out[0] = byte(f)
    copy(out[1:], b)
    return out, nil
}

// DecodeBody decodes a body produced by EncodeBody into v.
func DecodeBody(r *codec.Registry, body []byte, v any) (Format, error) {
    if len(body) == 0 { return FormatUnknown, fmt.Errorf("empty body") }
    f := Format(body[0])
    c, err := CodecFor(r, f)
    if err != nil { return f, err }
    if err := c.Unmarshal(body[1:], v); err != nil { return f, fmt.Errorf("decode %s body: %w", f, err) }
    return f, nil
}
