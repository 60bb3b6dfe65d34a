package codec

import "errors"

var ErrEmptyPointer = errors.New("codec: empty index pointer")

// Pointer stores the owner id of an index pointer as its raw bytes.
type Pointer struct{}

func (Pointer) Encode(id string) ([]byte, error) {
	if id == "" {
		return nil, ErrEmptyPointer
	}
	return []byte(id), nil
}

func (Pointer) Decode(b []byte) (string, error) {
	if len(b) == 0 {
		return "", ErrEmptyPointer
	}
	return string(b), nil
}
