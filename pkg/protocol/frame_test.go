package protocol

import (
    "bytes"
    "encoding/binary"
    "errors"
    "io"
    "testing"
)

func TestFrameWriteRead(t *testing.T) {
    var buf bytes.Buffer
    if err := WriteFrame(&buf, 0x10, []byte("hello")); err != nil { t.Fatalf("write: %v", err) }
    if err := WriteFrame(&buf, 0x04, nil); err != nil { t.Fatalf("write empty: %v", err) }
    if buf.Len() != 2*FrameHeaderSize+5 { t.Fatalf("unexpected size %d", buf.Len()) }

    typ, payload, err := ReadFrame(&buf)
    if err != nil { t.Fatalf("read: %v", err) }
    if typ != 0x10 || string(payload) != "hello" { t.Fatalf("frame mismatch: %x %q", typ, payload) }
    typ, payload, err = ReadFrame(&buf)
    if err != nil { t.Fatalf("read empty: %v", err) }
    if typ != 0x04 || len(payload) != 0 { t.Fatalf("empty frame mismatch") }
    if _, _, err := ReadFrame(&buf); !errors.Is(err, io.EOF) { t.Fatalf("want EOF at boundary, got %v", err) }
}

func TestFrameHeaderLayout(t *testing.T) {
    b, err := FrameHeader{Type: 0x02, Length: 0x00010203}.MarshalBinary()
    if err != nil { t.Fatalf("marshal: %v", err) }
    if !bytes.Equal(b, []byte{0x02, 0x03, 0x02, 0x01, 0x00}) { t.Fatalf("layout: % x", b) }
    var h FrameHeader
    if err := h.UnmarshalBinary(b); err != nil { t.Fatalf("unmarshal: %v", err) }
    if h.Type != 0x02 || h.Length != 0x00010203 { t.Fatalf("header mismatch: %+v", h) }

    if _, err := (FrameHeader{Type: 0x02, Length: MaxFrameSize}).MarshalBinary(); err != nil { t.Fatalf("max size refused: %v", err) }
    if _, err := (FrameHeader{Type: 0x02, Length: MaxFrameSize + 1}).MarshalBinary(); !IsFraming(err) { t.Fatalf("oversized header accepted: %v", err) }
}

func TestFrameTruncated(t *testing.T) {
    var buf bytes.Buffer
    _ = WriteFrame(&buf, 0x01, bytes.Repeat([]byte{0xAB}, 32))
    raw := buf.Bytes()

    for _, cut := range []int{1, 4, FrameHeaderSize, FrameHeaderSize + 31} {
        _, _, err := ReadFrame(bytes.NewReader(raw[:cut]))
        if !IsFraming(err) { t.Fatalf("cut=%d: want framing error, got %v", cut, err) }
    }
}

func TestFrameOversized(t *testing.T) {
    hdr := make([]byte, FrameHeaderSize)
    hdr[0] = 0x10
    binary.LittleEndian.PutUint32(hdr[1:], MaxFrameSize+1)
    _, _, err := ReadFrame(bytes.NewReader(hdr))
    var fe *FramingError
    if !errors.As(err, &fe) { t.Fatalf("want *FramingError, got %v", err) }
    if _, err := AppendFrame(nil, 1, make([]byte, MaxFrameSize+1)); !IsFraming(err) {
        t.Fatalf("oversized write accepted: %v", err)
    }
}
