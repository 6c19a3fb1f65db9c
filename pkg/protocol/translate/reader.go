package translate

import (
    "encoding/binary"
    "io"
    "time"

    "buildnode/pkg/protocol"
)

// Reader deserializes fields from a frame payload.
type Reader struct {
    b   []byte
    off int
    err error
}

// NewReader returns a translator in read mode over payload.
func NewReader(payload []byte) *Reader { return &Reader{b: payload} }

func (r *Reader) Mode() Mode { return ModeRead }

// Remaining reports how many payload bytes have not been consumed.
func (r *Reader) Remaining() int { return len(r.b) - r.off }

func (r *Reader) Fail(err error) { if r.err == nil { r.err = err } }
func (r *Reader) Err() error      { return r.err }

func (r *Reader) take(n int, op string) []byte {
    if r.err != nil { return nil }
    if n > r.Remaining() {
        r.Fail(&protocol.FramingError{Op: op, Err: io.ErrUnexpectedEOF})
        return nil
    }
    s := r.b[r.off : r.off+n]
    r.off += n
    return s
}

func (r *Reader) Bool(v *bool) {
    b := r.take(1, "read bool")
    if b == nil { *v = false; return }
    switch b[0] {
    case 0:
        *v = false
    case 1:
        *v = true
    default:
        *v = false
        r.Fail(protocol.Framing("read bool", "invalid value 0x%02x", b[0]))
    }
}

func (r *Reader) Byte(v *byte) {
    b := r.take(1, "read byte")
    if b == nil { *v = 0; return }
    *v = b[0]
}

func (r *Reader) Int32(v *int32) {
    b := r.take(4, "read int32")
    if b == nil { *v = 0; return }
    *v = int32(binary.LittleEndian.Uint32(b))
}

func (r *Reader) Int64(v *int64) {
    b := r.take(8, "read int64")
    if b == nil { *v = 0; return }
    *v = int64(binary.LittleEndian.Uint64(b))
}

func (r *Reader) Duration(v *time.Duration) {
    var n int64
    r.Int64(&n)
    *v = time.Duration(n)
}

// length reads an element count where every element occupies at least
// minSize bytes, rejecting counts the remaining payload cannot hold.
func (r *Reader) length(op string, minSize int) (int, bool) {
    var n int32
    r.Int32(&n)
    if r.err != nil { return 0, false }
    if n < 0 {
        r.Fail(protocol.Framing(op, "negative length %d", n))
        return 0, false
    }
    if int(n) > MaxElements || int(n)*minSize > r.Remaining() {
        r.Fail(protocol.Framing(op, "length %d exceeds remaining %d bytes", n, r.Remaining()))
        return 0, false
    }
    return int(n), true
}

func (r *Reader) String(v *string) {
    n, ok := r.length("read string", 1)
    if !ok { *v = ""; return }
    *v = string(r.take(n, "read string"))
}

func (r *Reader) Bytes(v *[]byte) {
    n, ok := r.length("read bytes", 1)
    if !ok { *v = nil; return }
    b := r.take(n, "read bytes")
    *v = append([]byte(nil), b...)
}

func (r *Reader) Strings(v *[]string) {
    n, ok := r.length("read strings", 4)
    if !ok { *v = nil; return }
    out := make([]string, n)
    for i := range out { r.String(&out[i]) }
    if r.err != nil { *v = nil; return }
    *v = out
}

func (r *Reader) Int32s(v *[]int32) {
    n, ok := r.length("read int32s", 4)
    if !ok { *v = nil; return }
    out := make([]int32, n)
    for i := range out { r.Int32(&out[i]) }
    if r.err != nil { *v = nil; return }
    *v = out
}

func (r *Reader) StringMap(v *map[string]string) {
    n, ok := r.length("read map", 8)
    if !ok { *v = nil; return }
    out := make(map[string]string, n)
    var prev string
    for i := 0; i < n; i++ {
        var k, val string
        r.String(&k)
        r.String(&val)
        if r.err != nil { *v = nil; return }
        if i > 0 && k <= prev {
            r.Fail(protocol.Framing("read map", "key %q out of order", k))
            *v = nil
            return
        }
        out[k] = val
        prev = k
    }
    *v = out
}

// Finish fails the reader when payload bytes were left unread.
func (r *Reader) Finish() error {
    if r.err == nil && r.Remaining() != 0 {
        r.Fail(protocol.Framing("read packet", "%d trailing bytes", r.Remaining()))
    }
    return r.err
}
