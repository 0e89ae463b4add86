// Package errs defines the error kinds shared by the accounting core and the adapters.
// Callers match them with errors.Is; producers wrap them with context.
package errs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed parameters. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDataUnavailable marks missing or partial chain-read data.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrTransactionWouldRevert is returned when gas estimation rejects a transaction.
	ErrTransactionWouldRevert = errors.New("transaction would revert")
	// ErrRange marks a tick, price or intermediate value outside the protocol domain.
	ErrRange = errors.New("out of range")
	// ErrTimeout is returned when a network read exceeds its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrNotRegistered is returned for unknown or disabled platform/chain pairs.
	ErrNotRegistered = errors.New("platform not registered")
)

// Invalid wraps ErrInvalidInput with a formatted reason.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Unavailable wraps ErrDataUnavailable with a formatted reason.
func Unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDataUnavailable, fmt.Sprintf(format, args...))
}

// OutOfRange wraps ErrRange with a formatted reason.
func OutOfRange(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRange, fmt.Sprintf(format, args...))
}

// FromContext converts an expired deadline into ErrTimeout and keeps other errors as they are.
func FromContext(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		if errors.Is(err, ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
