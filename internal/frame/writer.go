package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

type flusher interface {
	Flush() error
}

// Writer writes length-prefixed frames to an output stream.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter creates a Writer on w. If w has a Flush method it is called
// after every frame.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes header and payload with a single Write and flushes, so
// the peer never observes half a frame from this side.
func (fw *Writer) WriteFrame(payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrFrameTooLarge
	}
	need := HeaderSize + len(payload)
	if cap(fw.buf) < need {
		fw.buf = make([]byte, need)
	}
	buf := fw.buf[:need]
	binary.BigEndian.PutUint16(buf, uint16(len(payload)))
	copy(buf[HeaderSize:], payload)

	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("frame: write: %w", err)
	}
	if f, ok := fw.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("frame: flush: %w", err)
		}
	}
	return nil
}
