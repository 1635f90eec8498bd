package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kiwari-pos/ordering/internal/enum"
)

// LineInput is a priced line, already snapshotted from the catalog.
type LineInput struct {
	ProductRef    uuid.UUID
	Name          string
	UnitPrice     decimal.Decimal
	Quantity      int64
	DiscountKind  enum.DiscountKind
	DiscountValue decimal.Decimal
	Notes         string
}

// CheckoutParams describe a customer self-checkout order.
type CheckoutParams struct {
	Channel         enum.Channel
	CustomerRef     *uuid.UUID
	TableRef        string
	DeliveryAddress string
	Notes           string
	CreatedBy       uuid.UUID
	Lines           []LineInput
}

// DiscountInput is an order-level discount granted by staff.
type DiscountInput struct {
	Kind      enum.DiscountKind
	Value     decimal.Decimal
	Reason    string
	AppliedBy uuid.UUID
}

// POSParams describe a staff-operated walk-in order.
type POSParams struct {
	TableRef      string
	Notes         string
	CreatedBy     uuid.UUID
	Complimentary bool
	Lines         []LineInput
	Discounts     []DiscountInput
}

// NewCheckout builds a draft order for the web menu channels.
func NewCheckout(p CheckoutParams, pricing Pricing, now time.Time) (*Order, error) {
	switch p.Channel {
	case enum.ChannelDineIn:
		if strings.TrimSpace(p.TableRef) == "" {
			return nil, invalid("table_ref", "required for dine-in orders")
		}
	case enum.ChannelTakeaway:
	case enum.ChannelDelivery:
		if strings.TrimSpace(p.DeliveryAddress) == "" {
			return nil, invalid("delivery_address", "required for delivery orders")
		}
	case enum.ChannelPOS:
		return nil, invalid("channel", "pos orders are created from the till")
	default:
		return nil, invalid("channel", fmt.Sprintf("unknown channel %q", p.Channel))
	}

	o := &Order{
		Channel:         p.Channel,
		CustomerRef:     p.CustomerRef,
		TableRef:        p.TableRef,
		DeliveryAddress: p.DeliveryAddress,
		Notes:           p.Notes,
		CreatedBy:       p.CreatedBy,
	}
	if err := o.init(p.Lines, now); err != nil {
		return nil, err
	}
	o.reprice(pricing)
	return o, nil
}

// NewPOS builds a draft walk-in order. POS orders never carry a customer.
func NewPOS(p POSParams, pricing Pricing, now time.Time) (*Order, error) {
	o := &Order{
		Channel:   enum.ChannelPOS,
		TableRef:  p.TableRef,
		Notes:     p.Notes,
		CreatedBy: p.CreatedBy,
		Flags: Flags{
			POS:           true,
			Complimentary: p.Complimentary,
		},
	}
	if err := o.init(p.Lines, now); err != nil {
		return nil, err
	}
	for i, d := range p.Discounts {
		if !d.Kind.Valid() {
			return nil, invalid(fmt.Sprintf("discounts[%d].kind", i), "must be percentage or fixed")
		}
		if d.Value.IsNegative() {
			return nil, invalid(fmt.Sprintf("discounts[%d].value", i), "must not be negative")
		}
		o.Discounts = append(o.Discounts, Discount{
			Kind:      d.Kind,
			Value:     d.Value,
			Reason:    d.Reason,
			AppliedBy: d.AppliedBy,
		})
	}
	o.reprice(pricing)
	return o, nil
}

func (o *Order) init(lines []LineInput, now time.Time) error {
	if len(lines) == 0 {
		return invalid("items", "at least one item is required")
	}
	o.Items = make([]LineItem, 0, len(lines))
	for i, l := range lines {
		field := fmt.Sprintf("items[%d]", i)
		if l.Quantity < 1 {
			return invalid(field+".quantity", "must be at least 1")
		}
		if l.UnitPrice.IsNegative() {
			return invalid(field+".unit_price", "must not be negative")
		}
		if l.DiscountKind != "" {
			if !l.DiscountKind.Valid() {
				return invalid(field+".discount_kind", "must be percentage or fixed")
			}
			if l.DiscountValue.IsNegative() {
				return invalid(field+".discount_value", "must not be negative")
			}
		}
		o.Items = append(o.Items, LineItem{
			ProductRef:    l.ProductRef,
			Name:          l.Name,
			UnitPrice:     l.UnitPrice,
			Quantity:      l.Quantity,
			DiscountKind:  l.DiscountKind,
			DiscountValue: l.DiscountValue,
			Notes:         l.Notes,
		})
	}
	o.ID = uuid.New()
	o.Status = enum.OrderStatusDraft
	o.Timestamps.Created = now
	return nil
}
