// Package translate implements the bidirectional field translator used by
// every packet. A packet describes its fields once, in a fixed order, through
// a Translator; the same method serializes in write mode and deserializes in
// read mode.
//
// Wire rules (little-endian):
//   bool      1 byte, 0 or 1
//   byte      1 byte
//   int32     4 bytes
//   int64     8 bytes
//   string    int32 byte length + UTF-8 bytes
//   bytes     int32 length + raw bytes
//   arrays    int32 element count + elements
//   maps      int32 pair count + pairs in ascending key order
//   optional  1 presence byte + value when present
package translate

import (
    "time"

    "buildnode/pkg/protocol"
)

// Mode tells a Translatable which direction a translator runs in.
type Mode uint8

const (
    ModeWrite Mode = iota + 1
    ModeRead
)

func (m Mode) String() string {
    switch m {
    case ModeWrite:
        return "write"
    case ModeRead:
        return "read"
    default:
        return "unknown"
    }
}

// MaxElements bounds any length prefix; a frame can never hold more.
const MaxElements = protocol.MaxFrameSize

// Translator reads or writes fields through pointers. Errors are sticky: after
// the first failure every call is a no-op and Err reports the failure.
type Translator interface {
    Mode() Mode

    Bool(v *bool)
    Byte(v *byte)
    Int32(v *int32)
    Int64(v *int64)
    Duration(v *time.Duration)
    String(v *string)
    Bytes(v *[]byte)
    Strings(v *[]string)
    Int32s(v *[]int32)
    StringMap(v *map[string]string)

    // Fail records err unless an earlier error is already recorded.
    Fail(err error)
    Err() error
}

// Translatable is implemented by every packet and nested structure.
type Translatable interface {
    Translate(t Translator)
}
