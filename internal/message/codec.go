package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Kind classifies a DecodeError.
type Kind int

const (
	// KindEncoding means the payload is not valid UTF-8.
	KindEncoding Kind = iota + 1
	// KindSchema means the payload is not a well-formed command object.
	KindSchema
)

func (k Kind) String() string {
	switch k {
	case KindEncoding:
		return "encoding"
	case KindSchema:
		return "schema"
	}
	return "unknown"
}

// DecodeError is returned for payloads that cannot become a Command.
// Both kinds are recoverable: the frame is dropped and the next one read.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("message: %s error: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wireCommand mirrors Command with every field required.
type wireCommand struct {
	MessageType *uint8 `json:"message_type" validate:"required"`
	Subtype     *uint8 `json:"subtype" validate:"required"`
	Data        Bytes  `json:"data" validate:"required"`
}

var validate = validator.New()

// DecodeCommand decodes a structured command payload.
func DecodeCommand(payload []byte) (*Command, error) {
	if !utf8.Valid(payload) {
		return nil, &DecodeError{Kind: KindEncoding, Err: errors.New("payload is not valid UTF-8")}
	}
	var w wireCommand
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, &DecodeError{Kind: KindSchema, Err: err}
	}
	if err := validate.Struct(&w); err != nil {
		return nil, &DecodeError{Kind: KindSchema, Err: missingFields(err)}
	}
	return &Command{
		MessageType: MessageType(*w.MessageType),
		Subtype:     *w.Subtype,
		Data:        w.Data,
	}, nil
}

func missingFields(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field())
	}
	return fmt.Errorf("missing field(s): %s", strings.Join(names, ", "))
}

// EncodeResponse serializes r to compact JSON.
func EncodeResponse(r *Response) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("message: encode response: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
