package bridge

import "time"

// Event kinds.
const (
	EventReady       = "ready"
	EventFrameError  = "frame-error"
	EventDecodeError = "decode-error"
	EventCommand     = "command"
	EventRaw         = "raw"
	EventFatal       = "fatal"
)

// Event results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultIgnored = "ignored"
)

// Event describes what the session did with one frame.
type Event struct {
	Stamp        int64  `json:"stamp"` // Unix ms
	Kind         string `json:"kind"`
	Mode         string `json:"mode"`
	Length       int    `json:"length"`
	Opcode       *byte  `json:"opcode,omitempty"`
	MessageType  *uint8 `json:"message_type,omitempty"`
	Action       string `json:"action,omitempty"`
	Result       string `json:"result"`
	Written      int    `json:"written,omitempty"`
	ResponseType uint8  `json:"response_type,omitempty"` // 0 when nothing was sent
	Error        string `json:"error,omitempty"`

	Payload []byte `json:"-"`
}

// Observer receives session events. Observe is called on the processing
// goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a func to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans an event out to several observers.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ev)
		}
	}
}

func newEvent(kind string, mode Mode, payload []byte) Event {
	return Event{
		Stamp:   time.Now().UnixMilli(),
		Kind:    kind,
		Mode:    mode.String(),
		Length:  len(payload),
		Payload: payload,
	}
}
