package codec

import "fmt"

// TooLargeError reports a row over the configured size.
type TooLargeError struct {
	Size, Max int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("codec: row too large: %d > %d bytes", e.Size, e.Max)
}

// Limit bounds encoded rows to Max bytes in both directions: oversized rows
// are refused before they are written and treated as garbage when read.
// Max <= 0 disables the check.
type Limit struct {
	Inner Codec
	Max   int
}

func (c Limit) Encode(r Row) ([]byte, error) {
	b, err := c.Inner.Encode(r)
	if err != nil {
		return nil, err
	}
	if c.Max > 0 && len(b) > c.Max {
		return nil, &TooLargeError{Size: len(b), Max: c.Max}
	}
	return b, nil
}

func (c Limit) Decode(b []byte) (Row, error) {
	if c.Max > 0 && len(b) > c.Max {
		return nil, &TooLargeError{Size: len(b), Max: c.Max}
	}
	return c.Inner.Decode(b)
}
