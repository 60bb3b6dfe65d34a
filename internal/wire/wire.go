// Package wire frames values stored by the provider-backed fast tier so
// foreign or truncated entries are detected instead of decoded.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

// Kind tells rows and index pointers apart.
type Kind byte

const (
	KindRow     Kind = 1
	KindPointer Kind = 2
)

const header = 4 + 1 + 1 + 4

var (
	ErrCorrupt = errors.New("tiered: corrupt entry")
	magic4     = [...]byte{'T', 'I', 'E', 'R'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames payload:
//
//	magic(4) | ver(1) | kind(1) | plen(u32 be) | payload(plen)
func Encode(kind Kind, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(header + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(kind))

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode returns the payload of a frame of the given kind. Trailing bytes
// are rejected.
func Decode(kind Kind, b []byte) ([]byte, error) {
	if len(b) < header || !hasMagic(b) || b[4] != version || Kind(b[5]) != kind {
		return nil, ErrCorrupt
	}
	plen := int(binary.BigEndian.Uint32(b[6:header]))
	if plen != len(b)-header {
		return nil, ErrCorrupt
	}
	return b[header:], nil
}
