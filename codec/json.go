package codec

import (
	"encoding/json"
	"fmt"
)

// JSON encodes rows as flat objects. Human readable, larger than the rest.
type JSON struct{}

func (JSON) Encode(r Row) ([]byte, error) { return json.Marshal(r) }

func (JSON) Decode(b []byte) (Row, error) {
	var r Row
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("codec: json row: %w", err)
	}
	return r, nil
}
