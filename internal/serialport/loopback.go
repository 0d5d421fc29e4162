package serialport

import (
	"sync"
)

// Loopback is an in-memory Link for dry runs and tests. It records every
// write and can be told to fail.
type Loopback struct {
	mu      sync.Mutex
	baud    int
	writes  [][]byte
	failErr error
	dtr     []bool
	rts     []bool
	closed  bool
}

// NewLoopback creates a Loopback link.
func NewLoopback(baud int) *Loopback {
	if baud <= 0 {
		baud = 115200
	}
	return &Loopback{baud: baud}
}

func (l *Loopback) Name() string { return LoopbackPath }

// FailWrites makes subsequent writes return err; nil restores success.
func (l *Loopback) FailWrites(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failErr = err
}

func (l *Loopback) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrNotOpen
	}
	if l.failErr != nil {
		return 0, l.failErr
	}
	l.writes = append(l.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (l *Loopback) SetDTR(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dtr = append(l.dtr, on)
	return nil
}

func (l *Loopback) SetRTS(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rts = append(l.rts, on)
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Writes returns a copy of every successful write, in order.
func (l *Loopback) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.writes))
	copy(out, l.writes)
	return out
}

// BaudRate returns the configured baud rate.
func (l *Loopback) BaudRate() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baud
}

// DTR returns the recorded DTR transitions.
func (l *Loopback) DTR() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.dtr...)
}

// RTS returns the recorded RTS transitions.
func (l *Loopback) RTS() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.rts...)
}

// Closed reports whether Close was called.
func (l *Loopback) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
