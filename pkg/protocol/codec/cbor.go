package codec

import (
    cbor "github.com/fxamacker/cbor/v2"
)

const (
    cborMaxArrayElements = 1 << 20
    cborMaxMapPairs      = 1 << 16
)

type cborCodec struct{ enc cbor.EncMode; dec cbor.DecMode }

// CBOR returns a canonical CBOR codec. Decoding rejects duplicate map keys and
// indefinite-length items and caps container sizes.
func CBOR() (Codec, error) {
    eo := cbor.CanonicalEncOptions()
    eo.Time = cbor.TimeRFC3339Nano
    em, err := eo.EncMode()
    if err != nil { return nil, err }
    dm, err := cbor.DecOptions{
        DupMapKey:        cbor.DupMapKeyEnforcedAPF,
        IndefLength:      cbor.IndefLengthForbidden,
        MaxArrayElements: cborMaxArrayElements,
        MaxMapPairs:      cborMaxMapPairs,
    }.DecMode()
    if err != nil { return nil, err }
    return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) ContentType() string { return ContentCBOR }
func (c cborCodec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
