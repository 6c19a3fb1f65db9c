package protocol

import (
    "bytes"
    "testing"

    "buildnode/pkg/protocol/codec"
    "google.golang.org/protobuf/types/known/structpb"
)

func TestEncodeDecodeBodyJSON(t *testing.T) {
    reg := codec.MustRegistry()
    in := map[string]any{"x": 1, "y": "z"}
    b, err := EncodeBody(reg, FormatJSON, in)
    if err != nil { t.Fatalf("encode: %v", err) }
    if b[0] != byte(FormatJSON) { t.Fatalf("format prefix mismatch") }
    var out map[string]any
    f, err := DecodeBody(reg, b, &out)
    if err != nil { t.Fatalf("decode: %v", err) }
    if f != FormatJSON || out["y"] != "z" { t.Fatalf("roundtrip mismatch: %v %#v", f, out) }
}

func TestEncodeDecodeBodyCBOR(t *testing.T) {
    reg := codec.MustRegistry()
    type rec struct {
        Buf []byte `cbor:"buf"`
        PID int    `cbor:"pid"`
    }
    in := rec{Buf: bytes.Repeat([]byte{0xAA}, 16), PID: 4242}
    b, err := EncodeBody(reg, FormatCBOR, in)
    if err != nil { t.Fatalf("encode: %v", err) }
    var out rec
    if _, err := DecodeBody(reg, b, &out); err != nil { t.Fatalf("decode: %v", err) }
    if out.PID != in.PID || !bytes.Equal(out.Buf, in.Buf) { t.Fatalf("roundtrip mismatch: %+v", out) }
}

func TestEncodeDecodeBodyProto(t *testing.T) {
    reg := codec.MustRegistry()
    s, err := structpb.NewStruct(map[string]any{"k": "v"})
    if err != nil { t.Fatalf("struct: %v", err) }
    b, err := EncodeBody(reg, FormatProto, s)
    if err != nil { t.Fatalf("encode: %v", err) }
    var out structpb.Struct
    if _, err := DecodeBody(reg, b, &out); err != nil { t.Fatalf("decode: %v", err) }
    if out.Fields["k"].GetStringValue() != "v" { t.Fatalf("value mismatch") }
}

func TestDecodeBodyUnknownFormat(t *testing.T) {
    reg := codec.MustRegistry()
    var out map[string]any
    if _, err := DecodeBody(reg, []byte{0x7f, 0x00}, &out); err == nil { t.Fatalf("unknown format accepted") }
    if _, err := DecodeBody(reg, nil, &out); err == nil { t.Fatalf("empty body accepted") }
    if _, err := ParseFormat("yaml"); err == nil { t.Fatalf("unknown format name accepted") }
}
