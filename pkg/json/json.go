// Package json provides JSON serialization for Tideway built on goccy/go-json
package json

import (
	"bytes"
	"io"

	gojson "github.com/goccy/go-json"
)

// Marshal is a drop-in replacement for encoding/json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// NewDecoder returns a decoder reading from r. UseNumber is enabled so
// provider payloads round-trip numeric ids without float truncation.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// NewEncoder returns an encoder writing to w with HTML escaping disabled.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// Valid reports whether data is syntactically valid JSON.
func Valid(data []byte) bool {
	return gojson.Valid(data)
}

// Compact writes the compacted form of src to a new buffer.
func Compact(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := gojson.Compact(&buf, src); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
