package delta

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

// Encode returns the canonical JSON encoding of v.
func Encode(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle())

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Decode parses data, produced by Encode, into v.
func Decode(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, jsonHandle())
	return dec.Decode(v)
}
