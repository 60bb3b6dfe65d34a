package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes rows with RFC 8949 core deterministic encoding. Duplicate
// keys in stored bytes are rejected as corruption. Construct with NewCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBOR() (CBOR, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

func (c CBOR) Encode(r Row) ([]byte, error) { return c.enc.Marshal(r) }

func (c CBOR) Decode(b []byte) (Row, error) {
	var r Row
	err := c.dec.Unmarshal(b, &r)
	return r, err
}
