// Package bridge runs the host-port protocol: it turns decoded commands
// into serial writes or power pulses and produces the acknowledgements.
package bridge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shaunagostinho/portbridge/internal/message"
	"github.com/shaunagostinho/portbridge/internal/power"
	"github.com/shaunagostinho/portbridge/internal/serialport"
)

// Failure messages sent back to the host.
const (
	msgWriteFailed     = "unable to write bytes"
	msgDecodeFailed    = "unable to decode message"
	msgIncompleteFrame = "incomplete frame"
)

// Action is what the dispatcher did with a command.
type Action int

const (
	ActionNone Action = iota
	ActionWrite
	ActionPowerOn
)

func (a Action) String() string {
	switch a {
	case ActionWrite:
		return "write"
	case ActionPowerOn:
		return "power-on"
	}
	return "none"
}

// Result is the outcome of dispatching one command.
type Result struct {
	Action Action
	// Response is the acknowledgement to send; nil means send nothing.
	Response *message.Response
	// Written is the number of bytes accepted by the serial link.
	Written int
	// Err is a recoverable failure of the action itself.
	Err error
}

// Dispatcher is the per-frame state machine. It holds no state between
// commands beyond the link and switch it was built with.
type Dispatcher struct {
	mode  Mode
	link  serialport.Link
	power power.Switch
	log   *zap.Logger
}

// NewDispatcher creates a Dispatcher. sw may be nil outside ModeRawPower.
func NewDispatcher(mode Mode, link serialport.Link, sw power.Switch, log *zap.Logger) *Dispatcher {
	if sw == nil {
		sw = power.NewNoop(log)
	}
	return &Dispatcher{mode: mode, link: link, power: sw, log: log.Named("dispatch")}
}

// Dispatch handles a structured command. Execute is the only type acted on
// in the loop; every other type, reserved ones included, is a fatal protocol
// violation and produces no response.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *message.Command) (Result, error) {
	if cmd.MessageType != message.TypeExecute {
		what := "unknown"
		if cmd.MessageType.Known() {
			what = "reserved"
		}
		d.log.Error(what+" message type", zap.Stringer("message_type", cmd.MessageType))
		return Result{}, &FatalError{Reason: fmt.Sprintf("%s message type %d (%s)", what, uint8(cmd.MessageType), cmd.MessageType)}
	}

	n, err := d.link.Write(cmd.Data)
	if err != nil {
		d.log.Warn("serial write failed", zap.Int("bytes", len(cmd.Data)), zap.Error(err))
		return Result{Action: ActionWrite, Response: message.NewError(cmd.Subtype, msgWriteFailed), Written: n, Err: err}, nil
	}
	d.log.Debug("command written", zap.Int("bytes", n))
	return Result{Action: ActionWrite, Response: message.NewOK(cmd.Subtype), Written: n}, nil
}

// DispatchRaw handles a raw command. Raw commands are never acknowledged;
// failures are only logged and reported in the result.
func (d *Dispatcher) DispatchRaw(ctx context.Context, cmd message.RawCommand) Result {
	if cmd.Empty() {
		return Result{}
	}
	switch op := cmd.Opcode(); {
	case op == message.OpcodeSensor:
		d.log.Debug("sensor packet ignored")
		return Result{}
	case op == message.OpcodePowerOn && d.mode == ModeRawPower:
		if err := d.power.PowerOn(ctx); err != nil {
			d.log.Warn("power-on failed", zap.String("switch", d.power.Name()), zap.Error(err))
			return Result{Action: ActionPowerOn, Err: err}
		}
		return Result{Action: ActionPowerOn}
	}

	n, err := d.link.Write(cmd)
	if err != nil {
		d.log.Warn("serial write failed", zap.Int("bytes", len(cmd)), zap.Error(err))
	}
	return Result{Action: ActionWrite, Written: n, Err: err}
}
