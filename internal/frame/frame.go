// Package frame implements the length-prefixed framing used on the host
// port's stdio streams.
//
// Every frame is a 2-byte big-endian unsigned length N followed by exactly
// N payload bytes. There is no terminator; the count is the only thing that
// keeps reader and writer aligned.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 2
	// MaxPayload is the largest payload a 16-bit length prefix can describe.
	MaxPayload = 0xffff
)

var (
	// ErrEndOfStream is returned when the input closes cleanly on a frame
	// boundary (no header byte available).
	ErrEndOfStream = fmt.Errorf("frame: end of stream: %w", io.EOF)
	// ErrFrameTooLarge is returned when a payload does not fit the length prefix.
	ErrFrameTooLarge = errors.New("frame: payload exceeds 65535 bytes")
)

// HeaderError reports a length prefix that could not be read in full.
// Byte alignment with the stream is lost, so it is always fatal.
type HeaderError struct {
	Got int
	Err error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("frame: truncated header (%d of %d bytes): %v", e.Got, HeaderSize, e.Err)
}

func (e *HeaderError) Unwrap() error { return e.Err }

// IncompleteError reports a payload shorter than its declared length.
type IncompleteError struct {
	Declared int
	Got      int
	Err      error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("frame: incomplete payload (%d of %d bytes): %v", e.Got, e.Declared, e.Err)
}

func (e *IncompleteError) Unwrap() error { return e.Err }

// OversizeError reports a frame whose declared length is above the reader's
// configured limit. The payload has been discarded.
type OversizeError struct {
	Declared int
	Limit    int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("frame: declared length %d exceeds limit %d", e.Declared, e.Limit)
}

// IsFatal reports whether err leaves the input stream unusable.
func IsFatal(err error) bool {
	var he *HeaderError
	return errors.As(err, &he)
}

// Encode returns the wire form of payload.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	b := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(b, uint16(len(payload)))
	copy(b[HeaderSize:], payload)
	return b, nil
}
