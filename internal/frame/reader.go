package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

// Reader reads one frame per call from an input stream.
type Reader struct {
	r io.Reader
	// Limit rejects frames declaring more than Limit payload bytes.
	// Zero means no limit beyond MaxPayload.
	Limit int

	header [HeaderSize]byte
}

// NewReader creates a Reader on r. r should not be buffered beyond what the
// caller owns, since the Reader never consumes more than one frame.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame reads the next frame and returns its payload.
//
// It returns ErrEndOfStream when the stream ends before any header byte,
// *HeaderError when the header is cut short, *IncompleteError when the
// payload is cut short and *OversizeError when Limit is exceeded.
func (fr *Reader) ReadFrame() ([]byte, error) {
	n, err := io.ReadFull(fr.r, fr.header[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, ErrEndOfStream
		}
		return nil, &HeaderError{Got: n, Err: err}
	}
	size := int(binary.BigEndian.Uint16(fr.header[:]))

	// never read past the declared payload
	body := io.LimitReader(fr.r, int64(size))

	if fr.Limit > 0 && size > fr.Limit {
		drained, err := io.Copy(io.Discard, body)
		if err != nil || int(drained) < size {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return nil, &IncompleteError{Declared: size, Got: int(drained), Err: err}
		}
		return nil, &OversizeError{Declared: size, Limit: fr.Limit}
	}

	payload := make([]byte, size)
	got, err := io.ReadFull(body, payload)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &IncompleteError{Declared: size, Got: got, Err: err}
	}
	return payload, nil
}
