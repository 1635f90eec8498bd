package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kiwari-pos/ordering/internal/enum"
)

// StatusUpdate is a compare-and-swap status write. It succeeds only while the
// stored order still has status From and version ExpectedVersion.
type StatusUpdate struct {
	ID              uuid.UUID
	From            enum.OrderStatus
	To              enum.OrderStatus
	ExpectedVersion int64
	At              time.Time
	Actor           Actor
	Reason          string
}

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	Status      enum.OrderStatus
	Channel     enum.Channel
	CustomerRef *uuid.UUID
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// Repository is the persistence boundary of the order aggregate.
//
// Every write bumps Version. UpdateStatus, AppendPayments and MarkKOTPrinted
// return ErrConflict when the guard no longer matches, ErrNotFound when the
// order does not exist. Create returns ErrDuplicateNumber on a number collision.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]*Order, error)
	UpdateStatus(ctx context.Context, u StatusUpdate) (*Order, error)
	AppendPayments(ctx context.Context, id uuid.UUID, expectedVersion int64, payments []Payment) (*Order, error)
	MarkKOTPrinted(ctx context.Context, id uuid.UUID, expectedVersion int64) (*Order, error)
	// FindPaymentByReference returns the order holding a payment with the
	// given external reference, or ErrNotFound.
	FindPaymentByReference(ctx context.Context, ref string) (*Order, error)
}
