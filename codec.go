package etna

import "encoding/json"

// Codec translates between wire bytes and structured values. JSON is
// the default; a custom codec can be installed with [WithCodec] for
// clusters speaking an alternative encoding.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var defaultCodec Codec = jsonCodec{}
