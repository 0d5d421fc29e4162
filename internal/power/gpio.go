package power

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultGPIORoot is the Linux sysfs GPIO class directory.
const DefaultGPIORoot = "/sys/class/gpio"

// SysfsGPIO drives a GPIO line through the Linux sysfs interface.
type SysfsGPIO struct {
	root     string
	pin      int
	pulse    time.Duration
	exported bool
	log      *zap.Logger
}

// OpenSysfsGPIO exports pin if needed and configures it as an output
// idling high.
func OpenSysfsGPIO(root string, pin int, pulse time.Duration, log *zap.Logger) (*SysfsGPIO, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("power: gpio backend needs a pin number")
	}
	if root == "" {
		root = DefaultGPIORoot
	}
	g := &SysfsGPIO{root: root, pin: pin, pulse: pulse, log: log}

	if _, err := os.Stat(g.pinDir()); errors.Is(err, fs.ErrNotExist) {
		if err := g.write(filepath.Join(root, "export"), strconv.Itoa(pin)); err != nil {
			return nil, err
		}
		g.exported = true
	}
	// "high" sets direction and initial level in one write so the line never glitches low
	if err := g.write(filepath.Join(g.pinDir(), "direction"), "high"); err != nil {
		return nil, err
	}
	log.Info("gpio line ready", zap.Int("pin", pin), zap.String("root", root))
	return g, nil
}

func (g *SysfsGPIO) pinDir() string {
	return filepath.Join(g.root, "gpio"+strconv.Itoa(g.pin))
}

func (g *SysfsGPIO) write(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("power: write %s: %w", path, err)
	}
	return nil
}

func (g *SysfsGPIO) Name() string { return BackendGPIO }

// PowerOn drives the line low for the pulse duration, then high again.
func (g *SysfsGPIO) PowerOn(ctx context.Context) error {
	value := filepath.Join(g.pinDir(), "value")
	g.log.Info("pulsing gpio line", zap.Int("pin", g.pin), zap.Duration("pulse", g.pulse))
	if err := g.write(value, "0"); err != nil {
		return err
	}
	holdErr := hold(ctx, g.pulse)
	if err := g.write(value, "1"); err != nil {
		return err
	}
	return holdErr
}

// Close unexports the pin if this process exported it.
func (g *SysfsGPIO) Close() error {
	if !g.exported {
		return nil
	}
	g.exported = false
	return g.write(filepath.Join(g.root, "unexport"), strconv.Itoa(g.pin))
}
