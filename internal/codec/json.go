package codec

import "github.com/goccy/go-json"

var JSON Codec = &jsonCodec{}

type jsonCodec struct{}

func (*jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (*jsonCodec) Unmarshal(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func (*jsonCodec) ContentType() string { return "application/json" }
