package message

// Raw protocol opcodes with a meaning to the bridge itself. Every other
// opcode belongs to the device and is forwarded untouched.
const (
	OpcodePowerOn byte = 0x01
	OpcodeSensor  byte = 0x8e
)

// RawCommand is a raw protocol payload. The first byte is the opcode and
// the whole slice is what the device receives.
type RawCommand []byte

// DecodeRaw wraps a raw protocol payload.
func DecodeRaw(payload []byte) RawCommand {
	return RawCommand(payload)
}

// Empty reports whether the command carries no opcode.
func (c RawCommand) Empty() bool { return len(c) == 0 }

// Opcode returns the first byte, or 0 for an empty command.
func (c RawCommand) Opcode() byte {
	if len(c) == 0 {
		return 0
	}
	return c[0]
}
