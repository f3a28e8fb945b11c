// Package codec encodes snapshot values for a provider.
//
// Decoders are strict: unknown fields and trailing data are errors, so a
// snapshot written by an incompatible build is treated as corrupt and healed.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names lists the codecs ByName understands.
var Names = []string{"json", "cbor", "msgpack"}

// ByName returns the codec registered under name.
func ByName[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSON[V]{}, nil
	case "cbor":
		return NewCBOR[V](true)
	case "msgpack":
		return Msgpack[V]{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
