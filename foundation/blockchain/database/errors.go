package database

import (
	"errors"
	"fmt"
)

// ErrRejected is wrapped by every error returned when a block or chain fails
// a validation rule. It is an expected outcome, not a failure of the node.
var ErrRejected = errors.New("rejected")

// ErrCorrupt is wrapped when the stored chain can't be read back. The node
// must not mine or accept blocks while the chain is in this state.
var ErrCorrupt = errors.New("storage corrupt")

// ErrUnlinked is wrapped, along with ErrRejected, when a block does not
// link to the head of the chain it is pushed to.
var ErrUnlinked = errors.New("not linked to head")

// ErrNotFound is returned when a block is not tracked by a chain.
var ErrNotFound = errors.New("block not found")

// reject constructs an error wrapping ErrRejected.
func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}
