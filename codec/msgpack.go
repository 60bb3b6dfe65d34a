package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is the default row codec. Keys are written sorted, so equal rows
// encode to equal bytes.
type Msgpack struct{}

func (Msgpack) Encode(r Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack) Decode(b []byte) (Row, error) {
	var r Row
	err := msgpack.Unmarshal(b, &r)
	return r, err
}
