package bridge

import (
	"errors"
	"fmt"

	"github.com/shaunagostinho/portbridge/internal/frame"
)

// FatalError is a protocol violation the bridge cannot continue past. The
// session stops and the process exits so the supervisor can restart it.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("bridge: fatal: %s", e.Reason)
}

// IsFatal reports whether err should terminate the process with the
// protocol-violation status.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe) || frame.IsFatal(err)
}
