// Package serialport provides the serial connection to the peripheral.
package serialport

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// LoopbackPath selects the in-memory link instead of a real device.
const LoopbackPath = "loopback"

// ErrNotOpen is returned by operations on a closed link.
var ErrNotOpen = errors.New("serial: port not open")

// Link is an opened serial connection. Implementations must not retry
// failed writes.
type Link interface {
	// Name returns the device path.
	Name() string
	// Write sends p to the device.
	Write(p []byte) (int, error)
	// Close releases the port.
	Close() error
}

// ModemLines is implemented by links that can drive the modem control
// lines, which some devices use as a wake/power input.
type ModemLines interface {
	SetDTR(bool) error
	SetRTS(bool) error
}

// Config holds connection settings for the serial link.
type Config struct {
	PortPath    string        `yaml:"port_path" json:"portPath"`
	BaudRate    int           `yaml:"baud_rate" json:"baudRate"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	FlushOnOpen bool          `yaml:"flush_on_open" json:"flushOnOpen"`
}

// Connect opens the link named by cfg.PortPath.
func Connect(cfg Config, log *zap.Logger) (Link, error) {
	if cfg.PortPath == LoopbackPath {
		lb := NewLoopback(cfg.BaudRate)
		log.Named("serial").Info("using in-memory loopback link", zap.Int("baud", lb.BaudRate()))
		return lb, nil
	}
	p, err := Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return p, nil
}
