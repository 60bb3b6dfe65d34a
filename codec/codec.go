// Package codec encodes rows of the provider-backed fast tier.
//
// A Row holds attributes already rendered by the tier's serializer table, so
// every codec here only deals with string maps.
package codec

import "fmt"

// Row is one stored row: attribute name -> serialized value.
type Row = map[string]string

// Codec turns a Row into bytes and back. Decode of an encoded empty row
// may return nil.
type Codec interface {
	Encode(Row) ([]byte, error)
	Decode([]byte) (Row, error)
}

// ForRows returns the row codec registered under name:
// "json", "msgpack" (also ""), "cbor" or "proto".
func ForRows(name string) (Codec, error) {
	switch name {
	case "", "msgpack":
		return Msgpack{}, nil
	case "json":
		return JSON{}, nil
	case "cbor":
		return NewCBOR()
	case "proto", "protobuf":
		return Proto{}, nil
	}
	return nil, fmt.Errorf("codec: unknown row codec %q", name)
}
