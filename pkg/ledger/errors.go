package ledger

import (
	"errors"
	"fmt"
)

// ErrEmptyChain is returned by Latest on a chain without a genesis block.
var ErrEmptyChain = errors.New("ledger: chain has no blocks")

// SerializationError reports a payload with no canonical text form.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("ledger: payload not serializable: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// UnknownAttackTypeError is returned for attack names with no scenario.
type UnknownAttackTypeError struct {
	Name string
}

func (e *UnknownAttackTypeError) Error() string {
	return fmt.Sprintf("ledger: unknown attack type %q", e.Name)
}
