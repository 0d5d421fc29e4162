package serialport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 100 * time.Millisecond
	drainTimeout   = 1500 * time.Millisecond // max time spent discarding boot output
)

// Port is a Link backed by a real serial device, 8N1 without flow control.
type Port struct {
	path    string
	baud    int
	timeout time.Duration
	log     *zap.Logger

	mu   sync.Mutex
	port serial.Port
}

// Open opens and configures the device at cfg.PortPath.
func Open(cfg Config, log *zap.Logger) (*Port, error) {
	if cfg.BaudRate <= 0 {
		return nil, fmt.Errorf("serial: invalid baud rate %d", cfg.BaudRate)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	p := &Port{
		path:    cfg.PortPath,
		baud:    cfg.BaudRate,
		timeout: cfg.Timeout,
		log:     log.Named("serial"),
	}

	port, err := serial.Open(p.path, p.mode(p.baud))
	if err != nil {
		return nil, fmt.Errorf("serial: failed to open %s: %w", p.path, err)
	}
	if err := port.SetReadTimeout(p.timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: failed to set timeout: %w", err)
	}
	p.port = port
	p.log.Info("opened port", zap.String("path", p.path), zap.Int("baud", p.baud), zap.Duration("timeout", p.timeout))

	if cfg.FlushOnOpen {
		p.drain()
	}
	return p, nil
}

func (p *Port) mode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Name implements Link.
func (p *Port) Name() string { return p.path }

// Write implements Link. A short write is reported as io.ErrShortWrite.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return 0, ErrNotOpen
	}
	n, err := p.port.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return n, fmt.Errorf("serial: write %s: %w", p.path, err)
	}
	return n, nil
}

// SetDTR implements ModemLines.
func (p *Port) SetDTR(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return ErrNotOpen
	}
	return p.port.SetDTR(on)
}

// SetRTS implements ModemLines.
func (p *Port) SetRTS(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return ErrNotOpen
	}
	return p.port.SetRTS(on)
}

// Close implements Link.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	p.log.Info("closed port", zap.String("path", p.path))
	return err
}

// drain discards whatever the device emitted before we were ready (boot
// banners, stale buffers) until it stays silent for one read timeout.
func (p *Port) drain() {
	if err := p.port.ResetInputBuffer(); err != nil {
		p.log.Warn("reset input buffer failed", zap.Error(err))
	}

	total := 0
	deadline := time.Now().Add(drainTimeout)
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		n, _ := p.port.Read(buf)
		if n == 0 {
			break
		}
		if total == 0 {
			p.log.Debug("drain first bytes", zap.Binary("bytes", buf[:n]))
		}
		total += n
	}
	if total > 0 {
		p.log.Info("drained stale input", zap.Int("bytes", total))
	}
}
