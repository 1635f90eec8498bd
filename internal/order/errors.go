package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/kiwari-pos/ordering/internal/enum"
)

// Errors returned by the order engine and its repositories.
var (
	ErrNotFound        = errors.New("order not found")
	ErrConflict        = errors.New("order changed concurrently")
	ErrContention      = errors.New("order is busy, please retry")
	ErrDuplicateNumber = errors.New("order number already taken")
	ErrForbidden       = errors.New("action not permitted for this principal")
	ErrOrderClosed     = errors.New("order no longer accepts payments")
	ErrItemNotFound    = errors.New("catalog item not found")

	// ErrDuplicateReference is returned when a payment external reference
	// was already recorded.
	ErrDuplicateReference = errors.New("payment reference already recorded")
)

// ValidationError reports input rejected before anything was persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError reports a status change the state machine refused.
// The order is left untouched.
type InvalidTransitionError struct {
	From   enum.OrderStatus
	To     enum.OrderStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsInvalidTransition reports whether err carries an *InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var v *InvalidTransitionError
	return errors.As(err, &v)
}
