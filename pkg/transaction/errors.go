package transaction

import (
	"errors"
	"fmt"
)

// Domain invariant violations. They are never corrected silently.
var (
	// ErrIllegalStateTransition is returned when approving, declining or
	// aborting a transaction that is no longer pending.
	ErrIllegalStateTransition = errors.New("transaction: illegal state transition")

	// ErrThreeDSVersionConflict is returned when a different 3DS version is
	// written over an already set one.
	ErrThreeDSVersionConflict = errors.New("transaction: 3ds version conflict")

	// ErrInvalidThreeDSVersion is returned for versions other than 1 and 2.
	ErrInvalidThreeDSVersion = errors.New("transaction: invalid 3ds version")

	// ErrTerminal is returned when mutating a transaction in a terminal state.
	ErrTerminal = errors.New("transaction: transaction is in a terminal state")

	// ErrInvalidPaymentInformation is returned for missing or malformed
	// payment data.
	ErrInvalidPaymentInformation = errors.New("transaction: invalid payment information")

	// ErrInvalidChargeInformation is returned for missing or malformed
	// amount, currency or rebill data.
	ErrInvalidChargeInformation = errors.New("transaction: invalid charge information")

	// ErrInvalidTransaction is returned when required identifiers are missing.
	ErrInvalidTransaction = errors.New("transaction: invalid transaction")

	// ErrUnknownKind is returned when decoding a snapshot of an unknown type.
	ErrUnknownKind = errors.New("transaction: unknown transaction type")
)

// IsIllegalStateTransition reports whether err is an illegal transition.
func IsIllegalStateTransition(err error) bool {
	return errors.Is(err, ErrIllegalStateTransition)
}

// IsThreeDSVersionConflict reports whether err is a 3DS version conflict.
func IsThreeDSVersionConflict(err error) bool {
	return errors.Is(err, ErrThreeDSVersionConflict)
}

// StateError carries the offending transition.
type StateError struct {
	From   Status
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: cannot %s a %s transaction", ErrIllegalStateTransition, e.Action, e.From)
}

func (e *StateError) Unwrap() error {
	return ErrIllegalStateTransition
}
