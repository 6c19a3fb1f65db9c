package translate

import "buildnode/pkg/protocol"

// Translatable pointer constraint used by the generic helpers.
type ptrTo[T any] interface {
    *T
    Translatable
}

// Optional translates a nullable nested value as a presence byte followed by
// the value.
func Optional[T any, P ptrTo[T]](t Translator, v **T) {
    present := *v != nil
    t.Bool(&present)
    if t.Err() != nil || !present {
        if t.Mode() == ModeRead { *v = nil }
        return
    }
    if t.Mode() == ModeRead {
        var x T
        P(&x).Translate(t)
        if t.Err() != nil { *v = nil; return }
        *v = &x
        return
    }
    P(*v).Translate(t)
}

// Slice translates a length-prefixed array of nested values.
func Slice[T any, P ptrTo[T]](t Translator, v *[]T) {
    if t.Mode() == ModeWrite {
        n := int32(len(*v))
        if len(*v) > MaxElements {
            t.Fail(protocol.Framing("write slice", "%d elements exceeds limit %d", len(*v), MaxElements))
            return
        }
        t.Int32(&n)
        for i := range *v { P(&(*v)[i]).Translate(t) }
        return
    }
    var n int32
    t.Int32(&n)
    if t.Err() != nil { *v = nil; return }
    if n < 0 || int(n) > MaxElements {
        t.Fail(protocol.Framing("read slice", "invalid length %d", n))
        *v = nil
        return
    }
    out := make([]T, 0, min(int(n), 1024))
    for i := 0; i < int(n) && t.Err() == nil; i++ {
        var x T
        P(&x).Translate(t)
        out = append(out, x)
    }
    if t.Err() != nil { *v = nil; return }
    *v = out
}

// Enum translates a byte-sized enumeration.
func Enum[E ~uint8](t Translator, v *E) {
    b := byte(*v)
    t.Byte(&b)
    *v = E(b)
}
