package order

import "errors"

var (
	// ErrOrderDoesNotExist guards against duplicate terminal events: the
	// second delivery finds nothing in the pool and is treated as a no-op
	// by callers.
	ErrOrderDoesNotExist = errors.New("order does not exist in pool")

	// ErrInvalidExecution marks an irreconcilable execution state: side
	// mismatch, exit without a closable trade, zero or negative size.
	ErrInvalidExecution = errors.New("invalid execution")

	// ErrCannotModifyFilledOrder rejects resubmission of an order that has
	// already partially filled.
	ErrCannotModifyFilledOrder = errors.New("cannot modify filled order")

	// ErrStopLossCooldownActive rejects non-exempt submissions while a stop
	// loss cooldown is running.
	ErrStopLossCooldownActive = errors.New("stop loss cooldown is active")

	// ErrTradeLocked rejects entries outside the pooling window.
	ErrTradeLocked = errors.New("trade is locked")
)
