// Package message holds the command and response types carried inside
// frames, and their codecs for the structured (JSON) and raw protocols.
package message

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MessageType identifies a structured command.
type MessageType uint8

const (
	TypeOpenPort   MessageType = 1 // the port is opened from argv, never sent in the loop
	TypeChangeBaud MessageType = 2 // reserved
	TypeExecute    MessageType = 3
	TypeSensor     MessageType = 4 // reserved
)

// Known reports whether t is part of the structured protocol.
func (t MessageType) Known() bool {
	return t >= TypeOpenPort && t <= TypeSensor
}

func (t MessageType) String() string {
	switch t {
	case TypeOpenPort:
		return "open-port"
	case TypeChangeBaud:
		return "change-baud"
	case TypeExecute:
		return "execute"
	case TypeSensor:
		return "sensor"
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Response message types.
const (
	ResponseOK    uint8 = 1
	ResponseError uint8 = 2
)

// Bytes is a byte slice carried as a JSON array of integers (0-255)
// rather than encoding/json's base64 string.
type Bytes []byte

// MarshalJSON implements json.Marshaler. A nil slice encodes as [].
func (b Bytes) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, 2+len(b)*4)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler. null leaves b untouched.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var vals []int
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	out := make(Bytes, len(vals))
	for i, v := range vals {
		if v < 0 || v > 0xff {
			return fmt.Errorf("data[%d]: %d out of byte range", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// Command is a decoded structured command.
type Command struct {
	MessageType MessageType `json:"message_type"`
	Subtype     uint8       `json:"subtype"`
	Data        Bytes       `json:"data"`
}

// Response is the structured acknowledgement sent back to the host.
type Response struct {
	MessageType uint8  `json:"message_type"`
	Subtype     uint8  `json:"subtype"`
	Message     string `json:"message"`
	Data        Bytes  `json:"data"`
}

// NewOK returns a success response.
func NewOK(subtype uint8) *Response {
	return &Response{MessageType: ResponseOK, Subtype: subtype, Message: "ok", Data: Bytes{}}
}

// NewError returns a failure response with an empty payload.
func NewError(subtype uint8, msg string) *Response {
	return &Response{MessageType: ResponseError, Subtype: subtype, Message: msg, Data: Bytes{}}
}

// OK reports whether r signals success.
func (r *Response) OK() bool { return r.MessageType == ResponseOK }
