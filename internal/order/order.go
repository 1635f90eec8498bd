// Package order implements the order aggregate, its state machine, daily
// order numbering and the service that drives them against a Repository.
package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/money"
)

// Actor is the authenticated principal behind a mutation.
type Actor struct {
	ID   uuid.UUID
	Role enum.Role
}

// SystemActor drives transitions the service performs on its own behalf.
var SystemActor = Actor{Role: enum.RoleSystem}

// LineItem is a snapshot of a catalog item at order creation time.
type LineItem struct {
	ProductRef     uuid.UUID
	Name           string
	UnitPrice      decimal.Decimal
	Quantity       int64
	DiscountKind   enum.DiscountKind
	DiscountValue  decimal.Decimal
	DiscountAmount decimal.Decimal
	ItemTotal      decimal.Decimal
	Notes          string
}

// Discount is an order-level reduction.
type Discount struct {
	Kind      enum.DiscountKind
	Value     decimal.Decimal
	Amount    decimal.Decimal
	Reason    string
	AppliedBy uuid.UUID
}

// Tax is a named flat tax with its computed amount.
type Tax struct {
	Name        string
	RatePercent decimal.Decimal
	Amount      decimal.Decimal
}

// Payment is an entry of the append-only payment ledger.
type Payment struct {
	ID                uuid.UUID
	Method            enum.PaymentMethod
	Amount            decimal.Decimal
	ExternalReference string
	AppliedBy         uuid.UUID
	AppliedAt         time.Time
}

// Amounts are always derived by money.ComputeTotals, never set by callers.
type Amounts struct {
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalTax      decimal.Decimal
	Total         decimal.Decimal
	RoundOff      decimal.Decimal
	FinalAmount   decimal.Decimal
}

type Flags struct {
	Complimentary  bool
	Split          bool
	POS            bool
	KOTPrinted     bool
	NumberDegraded bool
}

// Timestamps are set once each, by the transition that reaches the state.
type Timestamps struct {
	Created   time.Time
	Confirmed *time.Time
	Preparing *time.Time
	Ready     *time.Time
	Served    *time.Time
	Billed    *time.Time
	Paid      *time.Time
	Cancelled *time.Time
}

// StatusChange is one row of the append-only status history.
type StatusChange struct {
	From    enum.OrderStatus
	To      enum.OrderStatus
	ActorID uuid.UUID
	Role    enum.Role
	Reason  string
	At      time.Time
}

// Order is the aggregate root.
type Order struct {
	ID              uuid.UUID
	Number          string
	Channel         enum.Channel
	CustomerRef     *uuid.UUID
	TableRef        string
	DeliveryAddress string
	Notes           string
	CreatedBy       uuid.UUID

	Items     []LineItem
	Discounts []Discount
	Taxes     []Tax
	Amounts   Amounts
	Payments  []Payment

	Status     enum.OrderStatus
	Flags      Flags
	Timestamps Timestamps
	History    []StatusChange

	// Version increases with every committed write and guards compare-and-swap.
	Version int64
}

// TotalPaid sums the payment ledger.
func (o *Order) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, p := range o.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Balance is max(0, FinalAmount - TotalPaid).
func (o *Order) Balance() decimal.Decimal {
	return money.Balance(o.Amounts.FinalAmount, o.TotalPaid())
}

// ChangeDue is the overpayment, reported to the till but never stored.
func (o *Order) ChangeDue() decimal.Decimal {
	return money.Change(o.Amounts.FinalAmount, o.TotalPaid())
}

// RefundDue is what has been collected beyond what the order is owed. A
// cancelled order owes nothing, so everything collected is due back.
func (o *Order) RefundDue() decimal.Decimal {
	if o.Status == enum.OrderStatusCancelled {
		return o.TotalPaid()
	}
	return o.ChangeDue()
}

// Settled reports whether the order needs no further payment.
func (o *Order) Settled() bool {
	if o.Flags.Complimentary {
		return true
	}
	return o.TotalPaid().GreaterThanOrEqual(o.Amounts.FinalAmount)
}

// CheckAmounts verifies the amount identities that must hold at every commit.
func (o *Order) CheckAmounts() error {
	a := o.Amounts
	if o.Flags.Complimentary {
		if !a.FinalAmount.IsZero() {
			return errors.Errorf("complimentary order %s has final amount %s", o.Number, a.FinalAmount)
		}
		return nil
	}
	want := a.Subtotal.Sub(a.TotalDiscount).Add(a.TotalTax).Add(a.RoundOff)
	if !want.Equal(a.FinalAmount) {
		return errors.Errorf("order %s final amount %s, components sum to %s", o.Number, a.FinalAmount, want)
	}
	if a.FinalAmount.IsNegative() {
		return errors.Errorf("order %s has negative final amount %s", o.Number, a.FinalAmount)
	}
	return nil
}

// Clone returns a deep copy safe to hand across goroutines.
func (o *Order) Clone() *Order {
	c := *o
	if o.CustomerRef != nil {
		ref := *o.CustomerRef
		c.CustomerRef = &ref
	}
	c.Items = append([]LineItem(nil), o.Items...)
	c.Discounts = append([]Discount(nil), o.Discounts...)
	c.Taxes = append([]Tax(nil), o.Taxes...)
	c.Payments = append([]Payment(nil), o.Payments...)
	c.History = append([]StatusChange(nil), o.History...)
	c.Timestamps = Timestamps{
		Created:   o.Timestamps.Created,
		Confirmed: cloneTime(o.Timestamps.Confirmed),
		Preparing: cloneTime(o.Timestamps.Preparing),
		Ready:     cloneTime(o.Timestamps.Ready),
		Served:    cloneTime(o.Timestamps.Served),
		Billed:    cloneTime(o.Timestamps.Billed),
		Paid:      cloneTime(o.Timestamps.Paid),
		Cancelled: cloneTime(o.Timestamps.Cancelled),
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Stamp records the timestamp field a transition into status owns.
// Fields that are already set are left alone.
func (ts *Timestamps) Stamp(status enum.OrderStatus, at time.Time) {
	field := ts.field(status)
	if field == nil || *field != nil {
		return
	}
	v := at
	*field = &v
}

// At returns the timestamp recorded for reaching status, if any.
func (ts *Timestamps) At(status enum.OrderStatus) *time.Time {
	if f := ts.field(status); f != nil {
		return *f
	}
	return nil
}

func (ts *Timestamps) field(status enum.OrderStatus) **time.Time {
	switch status {
	case enum.OrderStatusConfirmed:
		return &ts.Confirmed
	case enum.OrderStatusPreparing:
		return &ts.Preparing
	case enum.OrderStatusReady:
		return &ts.Ready
	case enum.OrderStatusServed:
		return &ts.Served
	case enum.OrderStatusBilled:
		return &ts.Billed
	case enum.OrderStatusPaid:
		return &ts.Paid
	case enum.OrderStatusCancelled:
		return &ts.Cancelled
	}
	return nil
}

// Pricing is the deployment-wide pricing configuration.
type Pricing struct {
	Taxes        []money.TaxRate
	RoundOff     bool
	RoundingMode money.RoundingMode
}

// reprice recomputes every derived amount from items, discounts and taxes.
func (o *Order) reprice(p Pricing) {
	lines := make([]money.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = money.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
		if it.DiscountKind != "" {
			lines[i].Discount = &money.Adjustment{Kind: it.DiscountKind, Value: it.DiscountValue}
		}
	}
	adjustments := make([]money.Adjustment, len(o.Discounts))
	for i, d := range o.Discounts {
		adjustments[i] = money.Adjustment{Kind: d.Kind, Value: d.Value}
	}

	res := money.ComputeTotals(lines, adjustments, money.Options{
		Taxes:         p.Taxes,
		RoundOff:      p.RoundOff,
		RoundingMode:  p.RoundingMode,
		Complimentary: o.Flags.Complimentary,
	})

	for i := range o.Items {
		o.Items[i].DiscountAmount = res.Lines[i].Discount
		o.Items[i].ItemTotal = res.Lines[i].Total
	}
	for i := range o.Discounts {
		o.Discounts[i].Amount = res.Discounts[i]
	}
	o.Taxes = make([]Tax, len(res.Taxes))
	for i, t := range res.Taxes {
		o.Taxes[i] = Tax{Name: t.Name, RatePercent: t.RatePercent, Amount: t.Amount}
	}
	o.Amounts = Amounts{
		Subtotal:      res.Subtotal,
		TotalDiscount: res.TotalDiscount,
		TotalTax:      res.TotalTax,
		Total:         res.Total,
		RoundOff:      res.RoundOff,
		FinalAmount:   res.FinalAmount,
	}
}
