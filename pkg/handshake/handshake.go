// Package handshake computes, encodes and compares the fixed-size handshake
// exchanged by a host and a build node before any framed traffic.
package handshake

import (
    "encoding/binary"
    "errors"
    "fmt"
    "io"
    "strings"
)

// Wire layout (12 bytes, little-endian):
//
//  0  ..1   Magic    'B''N' (0x4e42)
//  2        Version  u8
//  3        Reserved u8
//  4  ..7   Options  u32
//  8  ..11  Salt     i32
const (
    Size        = 12
    WireVersion = 1
    magicWord   = uint16(0x4e42)
)

// Options is the handshake bit set.
type Options uint32

const (
    Is64Bit Options = 1 << iota
    NodeReuse
    LowPriority
    TaskHost
)

func (o Options) Has(f Options) bool { return o&f != 0 }

func (o Options) String() string {
    var parts []string
    for _, f := range []struct {
        bit  Options
        name string
    }{{Is64Bit, "64bit"}, {NodeReuse, "reuse"}, {LowPriority, "low-priority"}, {TaskHost, "task-host"}} {
        if o.Has(f.bit) { parts = append(parts, f.name) }
    }
    if len(parts) == 0 { return "none" }
    return strings.Join(parts, "|")
}

// Handshake identifies the configuration a process runs with. Two processes
// may talk only when their handshakes are identical.
type Handshake struct {
    Options Options `cbor:"options" json:"options"`
    Salt    int32   `cbor:"salt" json:"salt"`
}

func (h Handshake) String() string { return fmt.Sprintf("options=%s salt=%08x", h.Options, uint32(h.Salt)) }

// Key returns a stable fixed-width identifier usable as a storage key.
func (h Handshake) Key() string { return fmt.Sprintf("%08x%08x", uint32(h.Options), uint32(h.Salt)) }

// WithLowPriority returns a copy with the low-priority bit set to on.
func (h Handshake) WithLowPriority(on bool) Handshake {
    if on { h.Options |= LowPriority } else { h.Options &^= LowPriority }
    return h
}

// Compatible reports whether remote may be paired with local. There is no
// partial compatibility: every field must match.
func Compatible(local, remote Handshake) bool { return local == remote }

// MarshalBinary encodes h into its 12-byte wire form.
func (h Handshake) MarshalBinary() ([]byte, error) { return Encode(h), nil }

// UnmarshalBinary decodes the 12-byte wire form.
func (h *Handshake) UnmarshalBinary(b []byte) error {
    v, err := Decode(b)
    if err != nil { return err }
    *h = v
    return nil
}

// Encode returns the wire form of h.
func Encode(h Handshake) []byte {
    buf := make([]byte, Size)
    binary.LittleEndian.PutUint16(buf[0:2], magicWord)
    buf[2] = WireVersion
    // buf[3] reserved
    binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Options))
    binary.LittleEndian.PutUint32(buf[8:12], uint32(h.Salt))
    return buf
}

// Decode parses the wire form. Anything that is not a handshake of this wire
// version is reported as ErrMismatch.
func Decode(b []byte) (Handshake, error) {
    if len(b) != Size { return Handshake{}, fmt.Errorf("%w: %d bytes, want %d", ErrMismatch, len(b), Size) }
    if binary.LittleEndian.Uint16(b[0:2]) != magicWord { return Handshake{}, fmt.Errorf("%w: bad magic", ErrMismatch) }
    if b[2] != WireVersion { return Handshake{}, fmt.Errorf("%w: wire version %d, want %d", ErrMismatch, b[2], WireVersion) }
    return Handshake{
        Options: Options(binary.LittleEndian.Uint32(b[4:8])),
        Salt:    int32(binary.LittleEndian.Uint32(b[8:12])),
    }, nil
}

// Write sends h on w.
func Write(w io.Writer, h Handshake) error {
    _, err := w.Write(Encode(h))
    return err
}

// Read receives one handshake from r. A peer that closes before sending a
// full handshake rejected ours and is reported as a mismatch.
func Read(r io.Reader) (Handshake, error) {
    var buf [Size]byte
    if _, err := io.ReadFull(r, buf[:]); err != nil {
        if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
            return Handshake{}, fmt.Errorf("%w: remote closed during handshake", ErrMismatch)
        }
        return Handshake{}, err
    }
    return Decode(buf[:])
}
