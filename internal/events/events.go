// Package events fans order lifecycle events out to live subscribers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kiwari-pos/ordering/internal/enum"
)

const (
	TypeOrderCreated   = "order.created"
	TypeStatusChanged  = "order.status"
	TypePaymentApplied = "payment.applied"
)

// Event is a committed change to an order.
type Event struct {
	Type        string           `json:"type"`
	OrderID     uuid.UUID        `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	Channel     enum.Channel     `json:"channel"`
	Status      enum.OrderStatus `json:"status"`
	CustomerRef *uuid.UUID       `json:"customer_ref,omitempty"`
	FinalAmount decimal.Decimal  `json:"final_amount"`
	TotalPaid   decimal.Decimal  `json:"total_paid"`
	At          time.Time        `json:"at"`
}

// RoutingKey is the topic the event is published under,
// e.g. order.created or order.status.preparing.
func (e Event) RoutingKey() string {
	if e.Type == TypeStatusChanged {
		return e.Type + "." + string(e.Status)
	}
	return e.Type
}

// Publisher delivers events. Publishing happens after commit, so a failed
// publish never rolls anything back.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
