package translate

import (
    "bytes"
    "encoding/binary"
    "math"
    "sort"
    "time"

    "buildnode/pkg/protocol"
)

// Writer serializes fields into an in-memory buffer.
type Writer struct {
    buf bytes.Buffer
    err error
}

// NewWriter returns a translator in write mode.
func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Mode() Mode { return ModeWrite }

// Payload returns the encoded bytes written so far.
func (w *Writer) Payload() []byte { return w.buf.Bytes() }

func (w *Writer) Fail(err error) { if w.err == nil { w.err = err } }
func (w *Writer) Err() error      { return w.err }

func (w *Writer) Bool(v *bool) {
    if w.err != nil { return }
    if *v { w.buf.WriteByte(1) } else { w.buf.WriteByte(0) }
}

func (w *Writer) Byte(v *byte) {
    if w.err != nil { return }
    w.buf.WriteByte(*v)
}

func (w *Writer) Int32(v *int32) {
    if w.err != nil { return }
    var b [4]byte
    binary.LittleEndian.PutUint32(b[:], uint32(*v))
    w.buf.Write(b[:])
}

func (w *Writer) Int64(v *int64) {
    if w.err != nil { return }
    var b [8]byte
    binary.LittleEndian.PutUint64(b[:], uint64(*v))
    w.buf.Write(b[:])
}

func (w *Writer) Duration(v *time.Duration) {
    n := int64(*v)
    w.Int64(&n)
}

// length writes an element count, failing for counts no reader would accept.
func (w *Writer) length(n int) bool {
    if w.err != nil { return false }
    if n > MaxElements || n > math.MaxInt32 {
        w.Fail(protocol.Framing("write length", "%d elements exceeds limit %d", n, MaxElements))
        return false
    }
    l := int32(n)
    w.Int32(&l)
    return true
}

func (w *Writer) String(v *string) {
    if !w.length(len(*v)) { return }
    w.buf.WriteString(*v)
}

func (w *Writer) Bytes(v *[]byte) {
    if !w.length(len(*v)) { return }
    w.buf.Write(*v)
}

func (w *Writer) Strings(v *[]string) {
    if !w.length(len(*v)) { return }
    for i := range *v { w.String(&(*v)[i]) }
}

func (w *Writer) Int32s(v *[]int32) {
    if !w.length(len(*v)) { return }
    for i := range *v { w.Int32(&(*v)[i]) }
}

func (w *Writer) StringMap(v *map[string]string) {
    if !w.length(len(*v)) { return }
    keys := make([]string, 0, len(*v))
    for k := range *v { keys = append(keys, k) }
    sort.Strings(keys)
    for _, k := range keys {
        val := (*v)[k]
        w.String(&k)
        w.String(&val)
    }
}
