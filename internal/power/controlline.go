package power

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/portbridge/internal/serialport"
)

// ControlLine pulses the DTR or RTS line of the serial port itself. On TTL
// level adapters these lines are active low, so asserting the line pulls
// the pin low.
type ControlLine struct {
	lines serialport.ModemLines
	line  string
	pulse time.Duration
	log   *zap.Logger
}

func NewControlLine(lines serialport.ModemLines, line string, pulse time.Duration, log *zap.Logger) *ControlLine {
	return &ControlLine{lines: lines, line: line, pulse: pulse, log: log}
}

func (c *ControlLine) Name() string { return c.line }

func (c *ControlLine) set(on bool) error {
	if c.line == BackendRTS {
		return c.lines.SetRTS(on)
	}
	return c.lines.SetDTR(on)
}

// PowerOn asserts the line for the pulse duration. The line is released
// even if ctx is cancelled mid-pulse.
func (c *ControlLine) PowerOn(ctx context.Context) error {
	c.log.Info("pulsing control line", zap.String("line", c.line), zap.Duration("pulse", c.pulse))
	if err := c.set(true); err != nil {
		return fmt.Errorf("power: assert %s: %w", c.line, err)
	}
	holdErr := hold(ctx, c.pulse)
	if err := c.set(false); err != nil {
		return fmt.Errorf("power: release %s: %w", c.line, err)
	}
	return holdErr
}

func (c *ControlLine) Close() error { return nil }
