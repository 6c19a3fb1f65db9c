package protocol

import (
    "encoding/binary"
    "errors"
    "io"
)

// Frame layout (5-byte header, little-endian):
//
//  0        Type   u8   packet type tag
//  1  ..4   Length u32  payload length
//  5  ..    Payload
const (
    FrameHeaderSize = 5
    MaxFrameSize    = 1 << 24
)

// FrameHeader describes one frame on the wire.
type FrameHeader struct {
    Type   uint8
    Length uint32
}

// MarshalBinary encodes the header to a 5-byte buffer.
func (h FrameHeader) MarshalBinary() ([]byte, error) {
    if h.Length > MaxFrameSize { return nil, Framing("encode header", "payload too large: %d", h.Length) }
    buf := make([]byte, FrameHeaderSize)
    buf[0] = h.Type
    binary.LittleEndian.PutUint32(buf[1:5], h.Length)
    return buf, nil
}

// UnmarshalBinary decodes a 5-byte header.
func (h *FrameHeader) UnmarshalBinary(b []byte) error {
    if len(b) < FrameHeaderSize { return &FramingError{Op: "decode header", Err: io.ErrUnexpectedEOF} }
    h.Type = b[0]
    h.Length = binary.LittleEndian.Uint32(b[1:5])
    if h.Length > MaxFrameSize { return Framing("decode header", "payload too large: %d", h.Length) }
    return nil
}

// AppendFrame appends a complete frame for typ/payload to dst.
func AppendFrame(dst []byte, typ uint8, payload []byte) ([]byte, error) {
    if len(payload) > MaxFrameSize { return nil, Framing("encode frame", "payload too large: %d", len(payload)) }
    var hdr [FrameHeaderSize]byte
    hdr[0] = typ
    binary.LittleEndian.PutUint32(hdr[1:], uint32(len(payload)))
    dst = append(dst, hdr[:]...)
    return append(dst, payload...), nil
}

// WriteFrame writes a single frame to w.
func WriteFrame(w io.Writer, typ uint8, payload []byte) error {
    frame, err := AppendFrame(make([]byte, 0, FrameHeaderSize+len(payload)), typ, payload)
    if err != nil { return err }
    _, err = w.Write(frame)
    return err
}

// ReadFrame reads one frame from r. A clean end of stream at a frame boundary
// is returned as io.EOF; anything truncated or oversized is a *FramingError.
func ReadFrame(r io.Reader) (uint8, []byte, error) {
    var hb [FrameHeaderSize]byte
    if n, err := io.ReadFull(r, hb[:]); err != nil {
        if n == 0 && errors.Is(err, io.EOF) { return 0, nil, io.EOF }
        if errors.Is(err, io.ErrUnexpectedEOF) { return 0, nil, &FramingError{Op: "read header", Err: err} }
        return 0, nil, err
    }
    var h FrameHeader
    if err := h.UnmarshalBinary(hb[:]); err != nil { return 0, nil, err }
    payload := make([]byte, int(h.Length))
    if _, err := io.ReadFull(r, payload); err != nil {
        if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
            return 0, nil, &FramingError{Op: "read payload", Err: io.ErrUnexpectedEOF}
        }
        return 0, nil, err
    }
    return h.Type, payload, nil
}
