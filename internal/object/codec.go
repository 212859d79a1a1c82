package object

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec turns Objects into bytes and back. gob is used deliberately: the
// payload may contain arbitrary binary file content, including embedded NUL
// bytes, and needs to round-trip byte-for-byte without a text-oriented
// escaping layer getting in the way.
type Codec struct{}

// NewCodec returns the stateless hierfs object codec.
func NewCodec() Codec {
	return Codec{}
}

// Encode serializes o for storage at the backend.
func (Codec) Encode(o Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(o); err != nil {
		return nil, fmt.Errorf("object: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes bytes previously produced by Encode. A malformed
// payload is reported via ErrMalformed so callers can translate it to the
// backend-corruption errno the file system layer exposes to callers.
func (Codec) Decode(data []byte) (Object, error) {
	var o Object
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&o); err != nil {
		return Object{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return o, nil
}
