package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kiwari-pos/ordering/internal/catalog"
	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/events"
	"github.com/kiwari-pos/ordering/internal/metrics"
)

// maxAttempts bounds compare-and-swap retries and order number retries.
const maxAttempts = 3

// OverrideVerifier checks a manager PIN.
type OverrideVerifier interface {
	Verify(pin string) bool
}

// ItemRequest is one requested line, resolved against the catalog.
type ItemRequest struct {
	ProductRef    uuid.UUID
	Quantity      int64
	DiscountKind  enum.DiscountKind
	DiscountValue decimal.Decimal
	Notes         string
}

// CheckoutRequest is a customer (or staff-assisted) web menu order.
type CheckoutRequest struct {
	Actor           Actor
	Channel         enum.Channel
	CustomerRef     *uuid.UUID
	TableRef        string
	DeliveryAddress string
	Notes           string
	Items           []ItemRequest
	// ExpectedTotal is what the client computed. It is compared and logged,
	// never used.
	ExpectedTotal *decimal.Decimal
}

// DiscountRequest is an order-level discount asked for at the till.
type DiscountRequest struct {
	Kind   enum.DiscountKind
	Value  decimal.Decimal
	Reason string
}

// PaymentInput is a payment entry to append.
type PaymentInput struct {
	Method    enum.PaymentMethod
	Amount    decimal.Decimal
	Reference string
}

// POSRequest is a walk-in order rung up by staff.
type POSRequest struct {
	Actor         Actor
	TableRef      string
	Notes         string
	Items         []ItemRequest
	Discounts     []DiscountRequest
	Complimentary bool
	Payments      []PaymentInput
	ExpectedTotal *decimal.Decimal
}

// TransitionOptions carries optional transition parameters.
type TransitionOptions struct {
	Reason      string
	OverridePIN string
}

// Service owns every mutation of the order aggregate.
type Service struct {
	repo     Repository
	catalog  catalog.Catalog
	numbers  *Numberer
	pricing  Pricing
	events   events.Publisher
	metrics  *metrics.Metrics
	override OverrideVerifier
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOverrideVerifier(v OverrideVerifier) Option {
	return func(s *Service) { s.override = v }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(repo Repository, cat catalog.Catalog, numbers *Numberer, pricing Pricing, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		catalog: cat,
		numbers: numbers,
		pricing: pricing,
		events:  events.Nop{},
		metrics: metrics.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateCheckout creates and confirms a dine-in, takeaway or delivery order.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	customer := req.CustomerRef
	switch {
	case req.Actor.Role == enum.RoleCustomer:
		if customer != nil && *customer != req.Actor.ID {
			return nil, errors.Wrap(ErrForbidden, "order on behalf of another customer")
		}
		id := req.Actor.ID
		customer = &id
		for _, it := range req.Items {
			if it.DiscountKind != "" {
				return nil, errors.Wrap(ErrForbidden, "line discounts need staff")
			}
		}
	case req.Actor.Role.Operator():
	default:
		return nil, errors.Wrap(ErrForbidden, "create order")
	}
	if customer == nil {
		return nil, invalid("customer_ref", "required for web menu orders")
	}

	lines, err := s.snapshot(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	o, err := NewCheckout(CheckoutParams{
		Channel:         req.Channel,
		CustomerRef:     customer,
		TableRef:        req.TableRef,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		CreatedBy:       req.Actor.ID,
		Lines:           lines,
	}, s.pricing, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.insert(ctx, o, req.ExpectedTotal); err != nil {
		return nil, err
	}
	return s.transition(ctx, o.ID, enum.OrderStatusConfirmed, TransitionInput{Actor: req.Actor}, "")
}

// CreatePOS creates a walk-in order, confirms it and applies any payments
// taken at the till. A settled walk-in order goes straight to paid.
func (s *Service) CreatePOS(ctx context.Context, req POSRequest) (*Order, error) {
	if !req.Actor.Role.Operator() {
		return nil, errors.Wrap(ErrForbidden, "pos orders need staff")
	}
	if req.Complimentary && len(req.Payments) > 0 {
		return nil, invalid("payments", "complimentary orders take no payments")
	}
	if err := validatePayments(req.Payments, req.Actor); err != nil {
		return nil, err
	}

	lines, err := s.snapshot(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	discounts := make([]DiscountInput, len(req.Discounts))
	for i, d := range req.Discounts {
		discounts[i] = DiscountInput{Kind: d.Kind, Value: d.Value, Reason: d.Reason, AppliedBy: req.Actor.ID}
	}
	o, err := NewPOS(POSParams{
		TableRef:      req.TableRef,
		Notes:         req.Notes,
		CreatedBy:     req.Actor.ID,
		Complimentary: req.Complimentary,
		Lines:         lines,
		Discounts:     discounts,
	}, s.pricing, s.now())
	if err != nil {
		return nil, err
	}
	if len(req.Payments) > 0 && o.Settled() {
		return nil, invalid("payments", "order total is zero, nothing to pay")
	}

	if err := s.insert(ctx, o, req.ExpectedTotal); err != nil {
		return nil, err
	}
	in := TransitionInput{Actor: req.Actor}
	confirmed, err := s.transition(ctx, o.ID, enum.OrderStatusConfirmed, in, "")
	if err != nil {
		return nil, err
	}
	if len(req.Payments) > 0 {
		return s.ApplyPayments(ctx, o.ID, req.Payments, req.Actor)
	}
	return s.settle(ctx, confirmed, req.Actor), nil
}

// Get returns an order. Customers only see their own orders.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor Actor) (*Order, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == enum.RoleCustomer && !owns(o, actor) {
		return nil, ErrNotFound
	}
	return o, nil
}

// FindByPaymentReference returns the order holding the payment with the
// given external reference.
func (s *Service) FindByPaymentReference(ctx context.Context, ref string) (*Order, error) {
	return s.repo.FindPaymentByReference(ctx, ref)
}

// List returns orders matching f. Customers are scoped to their own orders.
func (s *Service) List(ctx context.Context, f ListFilter, actor Actor) ([]*Order, error) {
	if actor.Role == enum.RoleCustomer {
		id := actor.ID
		f.CustomerRef = &id
	}
	orders, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Transition moves an order to status to. Reaching billed with nothing left
// to pay settles the order to paid in the same call.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to enum.OrderStatus, actor Actor, opts TransitionOptions) (*Order, error) {
	if !to.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", to))
	}
	override, err := s.resolveOverride(actor, opts.OverridePIN)
	if err != nil {
		return nil, err
	}
	o, err := s.transition(ctx, id, to, TransitionInput{Actor: actor, Override: override}, opts.Reason)
	if err != nil {
		return nil, err
	}
	if to == enum.OrderStatusBilled {
		return s.settle(ctx, o, actor), nil
	}
	return o, nil
}

// Cancel cancels an order. Once the kitchen ticket is printed a manager
// override (admin principal or manager PIN) is needed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor, opts TransitionOptions) (*Order, error) {
	return s.Transition(ctx, id, enum.OrderStatusCancelled, actor, opts)
}

// MarkKOTPrinted records that the kitchen ticket went out.
func (s *Service) MarkKOTPrinted(ctx context.Context, id uuid.UUID, actor Actor) (*Order, error) {
	if !actor.Role.Operator() {
		return nil, errors.Wrap(ErrForbidden, "print kitchen ticket")
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		o, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if o.Flags.KOTPrinted {
			return o, nil
		}
		if o.Status.Terminal() || o.Status == enum.OrderStatusDraft {
			return nil, invalid("status", fmt.Sprintf("no kitchen ticket for a %s order", o.Status))
		}
		updated, err := s.repo.MarkKOTPrinted(ctx, id, o.Version)
		if errors.Is(err, ErrConflict) {
			s.metrics.Conflict(ctx, "mark_kot")
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "mark kot printed")
		}
		return updated, nil
	}
	return nil, ErrContention
}

// ApplyPayments appends payment entries and settles the order if it is now
// fully paid. Entries are trusted as given; callers verify them first.
//
// Verified gateway captures are money already taken from the customer, so
// they are recorded even on closed or settled orders. The excess shows up
// as RefundDue.
func (s *Service) ApplyPayments(ctx context.Context, id uuid.UUID, entries []PaymentInput, actor Actor) (*Order, error) {
	if len(entries) == 0 {
		return nil, invalid("payments", "at least one payment is required")
	}
	if err := validatePayments(entries, actor); err != nil {
		return nil, err
	}
	captured := gatewayCapture(entries, actor)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		o, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case captured:
		case o.Status.Terminal():
			return nil, errors.Wrapf(ErrOrderClosed, "order is %s", o.Status)
		case o.Settled():
			return nil, errors.Wrap(ErrOrderClosed, "order is already fully paid")
		}

		at := s.now()
		payments := make([]Payment, len(entries))
		for i, e := range entries {
			payments[i] = Payment{
				ID:                uuid.New(),
				Method:            e.Method,
				Amount:            e.Amount,
				ExternalReference: e.Reference,
				AppliedBy:         actor.ID,
				AppliedAt:         at,
			}
		}

		updated, err := s.repo.AppendPayments(ctx, id, o.Version, payments)
		if errors.Is(err, ErrConflict) {
			s.metrics.Conflict(ctx, "append_payments")
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "append payments")
		}
		for _, p := range payments {
			s.metrics.PaymentApplied(ctx, p.Method)
		}
		if refund := updated.RefundDue(); captured && refund.IsPositive() {
			zctx.From(ctx).Warn("Gateway capture exceeds amount owed",
				zap.Stringer("order_id", updated.ID),
				zap.String("order_number", updated.Number),
				zap.String("status", string(updated.Status)),
				zap.Stringer("refund_due", refund),
			)
		}
		s.publish(ctx, events.TypePaymentApplied, updated)
		return s.settle(ctx, updated, actor), nil
	}
	return nil, ErrContention
}

// settle moves a fully paid order to paid where the state machine allows it.
// The payment is already committed, so failures here are logged, not returned.
func (s *Service) settle(ctx context.Context, o *Order, actor Actor) *Order {
	if !o.Settled() {
		return o
	}
	if o.Status != enum.OrderStatusBilled && o.Status != enum.OrderStatusConfirmed {
		return o
	}
	if o.Status == enum.OrderStatusConfirmed && !o.Flags.POS && !o.Flags.Complimentary {
		return o
	}
	if !actor.Role.Operator() {
		actor = SystemActor
	}

	paid, err := s.transition(ctx, o.ID, enum.OrderStatusPaid, TransitionInput{Actor: actor}, "settled")
	if err != nil {
		zctx.From(ctx).Warn("Settle order",
			zap.Stringer("order_id", o.ID),
			zap.String("order_number", o.Number),
			zap.Error(err),
		)
		if latest, ferr := s.repo.FindByID(ctx, o.ID); ferr == nil {
			return latest
		}
		return o
	}
	return paid
}

// transition is the compare-and-swap loop behind every status change.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to enum.OrderStatus, in TransitionInput, reason string) (*Order, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		o, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := CheckTransition(o, to, in); err != nil {
			return nil, err
		}

		updated, err := s.repo.UpdateStatus(ctx, StatusUpdate{
			ID:              id,
			From:            o.Status,
			To:              to,
			ExpectedVersion: o.Version,
			At:              s.now(),
			Actor:           in.Actor,
			Reason:          reason,
		})
		if errors.Is(err, ErrConflict) {
			s.metrics.Conflict(ctx, "update_status")
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "update status")
		}

		s.metrics.Transition(ctx, o.Status, to)
		s.publish(ctx, events.TypeStatusChanged, updated)
		return updated, nil
	}
	return nil, ErrContention
}

// insert assigns an order number and persists o, retrying on number collisions.
func (s *Service) insert(ctx context.Context, o *Order, expected *decimal.Decimal) error {
	lg := zctx.From(ctx)

	if expected != nil && !expected.Equal(o.Amounts.FinalAmount) {
		s.metrics.TotalMismatch(ctx)
		lg.Warn("Client total differs from computed total",
			zap.Stringer("order_id", o.ID),
			zap.Stringer("client_total", expected),
			zap.Stringer("final_amount", o.Amounts.FinalAmount),
		)
	}
	if err := o.CheckAmounts(); err != nil {
		return errors.Wrap(err, "amounts")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		num, err := s.numbers.Next(ctx, s.now())
		if err != nil {
			return errors.Wrap(err, "order number")
		}
		o.Number = num.Value
		o.Flags.NumberDegraded = num.Degraded

		err = s.repo.Create(ctx, o)
		if err == nil {
			s.metrics.OrderCreated(ctx, o.Channel)
			lg.Info("Order created",
				zap.Stringer("order_id", o.ID),
				zap.String("order_number", o.Number),
				zap.String("channel", string(o.Channel)),
				zap.Bool("degraded_number", num.Degraded),
			)
			s.publish(ctx, events.TypeOrderCreated, o)
			return nil
		}
		if errors.Is(err, ErrDuplicateNumber) {
			lastErr = err
			continue
		}
		return errors.Wrap(err, "create order")
	}
	return errors.Wrap(lastErr, "create order")
}

func (s *Service) snapshot(ctx context.Context, items []ItemRequest) ([]LineInput, error) {
	if len(items) == 0 {
		return nil, invalid("items", "at least one item is required")
	}
	lines := make([]LineInput, len(items))
	for i, it := range items {
		field := fmt.Sprintf("items[%d]", i)
		if it.Quantity < 1 {
			return nil, invalid(field+".quantity", "must be at least 1")
		}
		item, err := s.catalog.GetItem(ctx, it.ProductRef)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, invalid(field+".product_ref", ErrItemNotFound.Error())
			}
			return nil, errors.Wrapf(err, "%s: get item", field)
		}
		if !item.Available {
			return nil, invalid(field+".product_ref", fmt.Sprintf("%s is not available", item.Name))
		}
		lines[i] = LineInput{
			ProductRef:    item.ID,
			Name:          item.Name,
			UnitPrice:     item.Price,
			Quantity:      it.Quantity,
			DiscountKind:  it.DiscountKind,
			DiscountValue: it.DiscountValue,
			Notes:         it.Notes,
		}
	}
	return lines, nil
}

func (s *Service) resolveOverride(actor Actor, pin string) (bool, error) {
	if actor.Role == enum.RoleAdmin {
		return true, nil
	}
	if pin == "" {
		return false, nil
	}
	if s.override == nil || !s.override.Verify(pin) {
		return false, errors.Wrap(ErrForbidden, "invalid override PIN")
	}
	return true, nil
}

func (s *Service) publish(ctx context.Context, typ string, o *Order) {
	e := events.Event{
		Type:        typ,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Channel:     o.Channel,
		Status:      o.Status,
		CustomerRef: o.CustomerRef,
		FinalAmount: o.Amounts.FinalAmount,
		TotalPaid:   o.TotalPaid(),
		At:          s.now(),
	}
	if err := s.events.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", typ),
			zap.Stringer("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// gatewayCapture reports whether entries are verified gateway payments
// recorded by the system principal.
func gatewayCapture(entries []PaymentInput, actor Actor) bool {
	if actor.Role != enum.RoleSystem {
		return false
	}
	for _, e := range entries {
		if e.Method != enum.PaymentMethodOnline {
			return false
		}
	}
	return true
}

func validatePayments(entries []PaymentInput, actor Actor) error {
	for i, e := range entries {
		field := fmt.Sprintf("payments[%d]", i)
		if !e.Method.Valid() {
			return invalid(field+".method", fmt.Sprintf("unknown method %q", e.Method))
		}
		if !e.Amount.IsPositive() {
			return invalid(field+".amount", "must be positive")
		}
		switch {
		case e.Method == enum.PaymentMethodOnline && actor.Role != enum.RoleSystem:
			return errors.Wrap(ErrForbidden, "online payments are recorded by gateway verification")
		case e.Method.StaffAsserted() && !actor.Role.Operator():
			return errors.Wrap(ErrForbidden, "only staff record till payments")
		}
	}
	return nil
}
