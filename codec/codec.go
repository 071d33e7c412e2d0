// Package codec serializes cache values to the bytes stored in the backend.
// Only the facade's Set/Get/Refresh paths pass values through a Codec; the
// key registry and the disk snapshot never hold values.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
