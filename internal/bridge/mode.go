package bridge

import (
	"fmt"
	"strings"
)

// Mode selects the wire protocol spoken on the host side.
type Mode int

const (
	// ModeStructured speaks JSON commands and answers every command.
	ModeStructured Mode = iota
	// ModeRawPower forwards raw opcodes and handles the power-on opcode.
	ModeRawPower
	// ModeRawMinimal forwards raw opcodes with no power control.
	ModeRawMinimal
)

var modeNames = map[Mode]string{
	ModeStructured: "structured",
	ModeRawPower:   "raw-power",
	ModeRawMinimal: "raw-minimal",
}

// ParseMode parses a mode name. "json" and "raw" are accepted as aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured", "json", "":
		return ModeStructured, nil
	case "raw-power", "raw":
		return ModeRawPower, nil
	case "raw-minimal", "minimal":
		return ModeRawMinimal, nil
	}
	return 0, fmt.Errorf("unknown protocol mode %q", s)
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Structured reports whether the mode carries JSON commands and responses.
func (m Mode) Structured() bool { return m == ModeStructured }
