package codec

import (
	"errors"
	"fmt"
)

var ErrNotRegistered = errors.New("codec not registered")

// Codec serializes log records.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
	// ContentType is recorded next to each record so readers can decode it.
	ContentType() string
}

var codecs = map[string]Codec{
	"json":    JSON,
	"msgpack": MsgPack,
}

// Default is used when no codec is configured.
var Default = JSON

// Get returns the codec registered under name.
func Get(name string) (Codec, error) {
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return c, nil
}
