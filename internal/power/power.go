// Package power implements the out-of-band power-on action: a control line
// is held low for a short pulse and then released.
package power

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/portbridge/internal/serialport"
)

// DefaultPulse is how long the control line is held low.
const DefaultPulse = 500 * time.Millisecond

// Backend names accepted in Config.Backend.
const (
	BackendAuto = "auto"
	BackendNone = "none"
	BackendDTR  = "dtr"
	BackendRTS  = "rts"
	BackendGPIO = "gpio"
)

// Switch powers the device on.
type Switch interface {
	Name() string
	// PowerOn pulses the control line and returns once it is released.
	PowerOn(ctx context.Context) error
	Close() error
}

// Config selects and configures a Switch.
type Config struct {
	Backend  string        `yaml:"backend" json:"backend"`
	GPIOPin  int           `yaml:"gpio_pin" json:"gpioPin"`
	GPIORoot string        `yaml:"gpio_root" json:"gpioRoot"`
	Pulse    time.Duration `yaml:"pulse" json:"pulse"`
}

// Detect builds the Switch named by cfg.Backend. lines may be nil when the
// serial link has no modem control lines. "auto" picks sysfs GPIO on Linux
// ARM boards with a configured pin and the no-op switch everywhere else.
func Detect(cfg Config, lines serialport.ModemLines, log *zap.Logger) (Switch, error) {
	return detect(cfg, lines, runtime.GOOS, runtime.GOARCH, log)
}

func detect(cfg Config, lines serialport.ModemLines, goos, goarch string, log *zap.Logger) (Switch, error) {
	log = log.Named("power")
	if cfg.Pulse <= 0 {
		cfg.Pulse = DefaultPulse
	}

	backend := strings.ToLower(cfg.Backend)
	if backend == "" || backend == BackendAuto {
		backend = BackendNone
		if goos == "linux" && strings.HasPrefix(goarch, "arm") && cfg.GPIOPin > 0 {
			backend = BackendGPIO
		}
		log.Debug("auto-selected backend", zap.String("backend", backend), zap.String("platform", goos+"/"+goarch))
	}

	switch backend {
	case BackendNone:
		return NewNoop(log), nil
	case BackendDTR, BackendRTS:
		if lines == nil {
			return nil, fmt.Errorf("power: %s backend needs a serial port with modem control lines", backend)
		}
		return NewControlLine(lines, backend, cfg.Pulse, log), nil
	case BackendGPIO:
		g, err := OpenSysfsGPIO(cfg.GPIORoot, cfg.GPIOPin, cfg.Pulse, log)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("power: unknown backend %q", cfg.Backend)
}

// Noop is the Switch for platforms without a power control line.
type Noop struct {
	log *zap.Logger
}

func NewNoop(log *zap.Logger) *Noop { return &Noop{log: log} }

func (n *Noop) Name() string { return BackendNone }

func (n *Noop) PowerOn(ctx context.Context) error {
	n.log.Info("power-on requested, no control line on this platform")
	return nil
}

func (n *Noop) Close() error { return nil }

// hold blocks for d or until ctx is done.
func hold(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
