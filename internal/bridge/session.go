package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/shaunagostinho/portbridge/internal/frame"
	"github.com/shaunagostinho/portbridge/internal/message"
	"github.com/shaunagostinho/portbridge/internal/power"
	"github.com/shaunagostinho/portbridge/internal/serialport"
)

// Options configures a Session.
type Options struct {
	Mode  Mode
	Link  serialport.Link
	Power power.Switch
	// Observer is told about every frame; may be nil.
	Observer Observer
	Logger   *zap.Logger
	// MaxFrame rejects frames larger than this; zero means no limit.
	MaxFrame int
	// ReplyOnDecodeError answers undecodable structured frames with an
	// error response instead of dropping them silently.
	ReplyOnDecodeError bool
}

// Session owns the stdio streams and runs the frame loop, one frame at a
// time.
type Session struct {
	mode       Mode
	in         *frame.Reader
	out        *frame.Writer
	outBuf     *bufio.Writer
	rawOut     io.Writer
	dispatcher *Dispatcher
	link       serialport.Link
	power      power.Switch
	observer   Observer
	log        *zap.Logger
	replyOnErr bool
}

// NewSession creates a Session reading frames from in and writing
// responses to out.
func NewSession(in io.Reader, out io.Writer, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sw := opts.Power
	if sw == nil {
		sw = power.NewNoop(log.Named("power"))
	}
	observer := opts.Observer
	if observer == nil {
		observer = Observers(nil)
	}
	outBuf := bufio.NewWriter(out)
	reader := frame.NewReader(in)
	reader.Limit = opts.MaxFrame

	return &Session{
		mode:       opts.Mode,
		in:         reader,
		out:        frame.NewWriter(outBuf),
		outBuf:     outBuf,
		rawOut:     out,
		dispatcher: NewDispatcher(opts.Mode, opts.Link, sw, log),
		link:       opts.Link,
		power:      sw,
		observer:   observer,
		log:        log.Named("bridge"),
		replyOnErr: opts.ReplyOnDecodeError,
	}
}

// Run processes frames until the input ends, ctx is cancelled or a fatal
// error occurs. A clean end of input returns nil. Fatal errors satisfy
// IsFatal.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info("session started", zap.String("mode", s.mode.String()), zap.String("port", s.link.Name()))

	if s.mode.Structured() {
		// unsolicited ack: the port is open and the loop is ready
		ev := newEvent(EventReady, s.mode, nil)
		ev.Result = ResultOK
		s.respond(message.NewOK(0), &ev)
		s.observer.Observe(ev)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := s.in.ReadFrame()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, frame.ErrEndOfStream) {
				s.log.Info("input closed")
				return nil
			}
			if frame.IsFatal(err) {
				s.log.Error("lost frame alignment", zap.Error(err))
				s.fatalEvent(err, nil)
				return err
			}
			s.frameError(err)
			continue
		}

		if s.mode.Structured() {
			err = s.handleStructured(ctx, payload)
		} else {
			s.handleRaw(ctx, payload)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) handleStructured(ctx context.Context, payload []byte) error {
	cmd, err := message.DecodeCommand(payload)
	if err != nil {
		s.log.Warn("dropping undecodable frame", zap.Int("length", len(payload)), zap.Error(err))
		ev := newEvent(EventDecodeError, s.mode, payload)
		ev.Result = ResultError
		ev.Error = err.Error()
		if s.replyOnErr {
			s.respond(message.NewError(0, msgDecodeFailed), &ev)
		}
		s.observer.Observe(ev)
		return nil
	}

	ev := newEvent(EventCommand, s.mode, payload)
	mt := uint8(cmd.MessageType)
	ev.MessageType = &mt

	res, err := s.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		s.fatalEvent(err, payload)
		return err
	}
	ev.Action = res.Action.String()
	ev.Written = res.Written
	ev.Result = ResultOK
	if res.Err != nil {
		ev.Result = ResultError
		ev.Error = res.Err.Error()
	}
	if res.Response != nil {
		s.respond(res.Response, &ev)
	}
	s.observer.Observe(ev)
	return nil
}

func (s *Session) handleRaw(ctx context.Context, payload []byte) {
	cmd := message.DecodeRaw(payload)
	ev := newEvent(EventRaw, s.mode, payload)
	if !cmd.Empty() {
		op := cmd.Opcode()
		ev.Opcode = &op
	}

	res := s.dispatcher.DispatchRaw(ctx, cmd)
	ev.Action = res.Action.String()
	ev.Written = res.Written
	switch {
	case res.Err != nil:
		ev.Result = ResultError
		ev.Error = res.Err.Error()
	case res.Action == ActionNone:
		ev.Result = ResultIgnored
	default:
		ev.Result = ResultOK
	}
	s.observer.Observe(ev)
}

func (s *Session) frameError(err error) {
	s.log.Warn("skipping bad frame", zap.Error(err))
	ev := newEvent(EventFrameError, s.mode, nil)
	ev.Result = ResultError
	ev.Error = err.Error()
	if s.mode.Structured() && s.replyOnErr {
		s.respond(message.NewError(0, msgIncompleteFrame), &ev)
	}
	s.observer.Observe(ev)
}

func (s *Session) fatalEvent(err error, payload []byte) {
	ev := newEvent(EventFatal, s.mode, payload)
	ev.Result = ResultError
	ev.Error = err.Error()
	s.observer.Observe(ev)
}

// respond encodes and sends r. Output failures are logged and otherwise
// ignored; the output buffer is reset so a failed frame does not poison
// later responses.
func (s *Session) respond(r *message.Response, ev *Event) {
	b, err := message.EncodeResponse(r)
	if err != nil {
		s.log.Error("encode response failed", zap.Error(err))
		return
	}
	if err := s.out.WriteFrame(b); err != nil {
		s.log.Warn("write response failed", zap.Error(err))
		s.outBuf.Reset(s.rawOut)
		return
	}
	ev.ResponseType = r.MessageType
}

// Close flushes the output and releases the power switch and serial link.
func (s *Session) Close() error {
	var errs []error
	if err := s.outBuf.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := s.power.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.link.Close(); err != nil {
		errs = append(errs, err)
	}
	s.log.Info("session closed")
	return errors.Join(errs...)
}
