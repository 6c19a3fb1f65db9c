package codec

import (
    "bytes"
    "encoding/json"
)

type jsonCodec struct{}

// JSON returns a JSON codec. Numbers decode into json.Number when the target
// is an interface so large integers survive a round trip.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string { return ContentJSON }
func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error {
    dec := json.NewDecoder(bytes.NewReader(data))
    dec.UseNumber()
    return dec.Decode(v)
}
