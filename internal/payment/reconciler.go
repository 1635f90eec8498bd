// Package payment reconciles gateway and till payments against orders.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/metrics"
	"github.com/kiwari-pos/ordering/internal/money"
	"github.com/kiwari-pos/ordering/internal/order"
)

// Errors returned by the reconciler.
var (
	// ErrInvalidSignature means a payment assertion could not be proven.
	// Nothing was recorded against the order.
	ErrInvalidSignature = errors.New("payment signature is invalid")
	// ErrGatewayUnavailable means the payment gateway could not create an
	// intent. Nothing was recorded against the order.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrIntentNotFound     = errors.New("payment intent not found")
)

// Orders is the part of the order service the reconciler drives.
// Satisfied by *order.Service.
type Orders interface {
	Get(ctx context.Context, id uuid.UUID, actor order.Actor) (*order.Order, error)
	ApplyPayments(ctx context.Context, id uuid.UUID, entries []order.PaymentInput, actor order.Actor) (*order.Order, error)
	FindByPaymentReference(ctx context.Context, ref string) (*order.Order, error)
}

// Config configures the Reconciler.
type Config struct {
	// Secret is the gateway key secret used for payment signatures.
	Secret   []byte
	Currency string
	// Timeout bounds every gateway call.
	Timeout time.Duration
}

// VerifyRequest is what the client returns after paying at the gateway.
type VerifyRequest struct {
	OrderID          uuid.UUID
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerifyResult is the outcome of a verified payment assertion.
type VerifyResult struct {
	Order *order.Order
	// Replayed is set when the payment had already been applied earlier.
	Replayed bool
	// RefundDue is what the order collected beyond what it is owed, for
	// example a capture that landed after the order was cancelled.
	RefundDue decimal.Decimal
}

// Receipt is the outcome of recording till payments.
type Receipt struct {
	Order     *order.Order
	ChangeDue decimal.Decimal
}

// Reconciler applies external payment events to orders.
type Reconciler struct {
	orders  Orders
	intents IntentStore
	gateway Gateway
	replay  *ReplayGuard
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(orders Orders, intents IntentStore, gateway Gateway, replay *ReplayGuard, m *metrics.Metrics, cfg Config) *Reconciler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if m == nil {
		m = metrics.Nop()
	}
	if replay == nil {
		replay = NewReplayGuard(100_000, 0.001)
	}
	return &Reconciler{
		orders:  orders,
		intents: intents,
		gateway: gateway,
		replay:  replay,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

// CreateIntent opens a gateway payment for the order's outstanding balance.
// The order itself is never modified here.
func (r *Reconciler) CreateIntent(ctx context.Context, orderID uuid.UUID, actor order.Actor) (*Intent, error) {
	o, err := r.orders.Get(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, errors.Wrapf(order.ErrOrderClosed, "order is %s", o.Status)
	}
	balance := o.Balance()
	if !balance.IsPositive() {
		return nil, &order.ValidationError{Field: "amount", Reason: "nothing left to pay"}
	}
	amount := money.ToMinorUnits(balance)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	gw, err := r.gateway.CreateOrder(callCtx, amount, r.cfg.Currency, o.Number)
	if err != nil {
		zctx.From(ctx).Error("Create gateway order",
			zap.Stringer("order_id", o.ID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		if errors.Is(err, ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, errors.Wrap(ErrGatewayUnavailable, err.Error())
	}
	if gw.Amount != amount || gw.Currency != r.cfg.Currency {
		return nil, errors.Wrapf(ErrGatewayUnavailable, "gateway created %d %s, asked for %d %s",
			gw.Amount, gw.Currency, amount, r.cfg.Currency)
	}

	in := Intent{
		GatewayOrderID: gw.ID,
		OrderID:        o.ID,
		Amount:         money.FromMinorUnits(gw.Amount),
		Currency:       gw.Currency,
		CreatedAt:      r.now(),
	}
	if err := r.intents.SaveIntent(ctx, in); err != nil {
		return nil, errors.Wrap(err, "save intent")
	}
	return &in, nil
}

// VerifyAndApply proves a gateway payment by signature and records it against
// the order. The amount recorded is the amount the intent was created for;
// nothing the client sends about amounts is trusted.
func (r *Reconciler) VerifyAndApply(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	lg := zctx.From(ctx).With(
		zap.Stringer("order_id", req.OrderID),
		zap.String("gateway_order_id", req.GatewayOrderID),
		zap.String("gateway_payment_id", req.GatewayPaymentID),
	)

	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" {
		r.metrics.SignatureFailure(ctx, "missing_ids")
		return nil, errors.Wrap(ErrInvalidSignature, "gateway ids are required")
	}
	if !VerifySignature(r.cfg.Secret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		r.metrics.SignatureFailure(ctx, "mismatch")
		lg.Warn("Payment signature mismatch")
		return nil, ErrInvalidSignature
	}

	intent, err := r.intents.FindIntent(ctx, req.GatewayOrderID)
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			r.metrics.SignatureFailure(ctx, "unknown_intent")
			lg.Warn("Signed payment for unknown gateway order")
			return nil, errors.Wrap(ErrInvalidSignature, "unknown gateway order")
		}
		return nil, errors.Wrap(err, "find intent")
	}
	if intent.OrderID != req.OrderID {
		r.metrics.SignatureFailure(ctx, "order_mismatch")
		lg.Warn("Signed payment belongs to another order", zap.Stringer("intent_order_id", intent.OrderID))
		return nil, errors.Wrap(ErrInvalidSignature, "gateway order belongs to another order")
	}

	if r.replay.MaybeSeen(req.GatewayPaymentID) {
		if res, ok, err := r.replayed(ctx, req); ok || err != nil {
			return res, err
		}
	}

	o, err := r.orders.ApplyPayments(ctx, req.OrderID, []order.PaymentInput{{
		Method:    enum.PaymentMethodOnline,
		Amount:    intent.Amount,
		Reference: req.GatewayPaymentID,
	}}, order.SystemActor)
	if errors.Is(err, order.ErrDuplicateReference) {
		if res, ok, rerr := r.replayed(ctx, req); ok || rerr != nil {
			return res, rerr
		}
	}
	if err != nil {
		return nil, err
	}
	r.replay.Remember(req.GatewayPaymentID)

	lg.Info("Gateway payment applied",
		zap.Stringer("amount", intent.Amount),
		zap.String("status", string(o.Status)),
	)
	return &VerifyResult{Order: o, RefundDue: o.RefundDue()}, nil
}

// replayed resolves a payment id that may already be recorded.
func (r *Reconciler) replayed(ctx context.Context, req VerifyRequest) (*VerifyResult, bool, error) {
	o, err := r.orders.FindByPaymentReference(ctx, req.GatewayPaymentID)
	if errors.Is(err, order.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "find payment by reference")
	}
	if o.ID != req.OrderID {
		r.metrics.SignatureFailure(ctx, "reused_payment")
		return nil, true, errors.Wrap(ErrInvalidSignature, "payment already recorded on another order")
	}
	return &VerifyResult{Order: o, Replayed: true, RefundDue: o.RefundDue()}, true, nil
}

// RecordPayments records staff-asserted till payments, possibly split across
// methods. Overpayment is returned as change and never stored as a balance.
func (r *Reconciler) RecordPayments(ctx context.Context, orderID uuid.UUID, entries []order.PaymentInput, actor order.Actor) (*Receipt, error) {
	if !actor.Role.Operator() {
		return nil, errors.Wrap(order.ErrForbidden, "only staff record till payments")
	}
	o, err := r.orders.ApplyPayments(ctx, orderID, entries, actor)
	if err != nil {
		return nil, err
	}
	return &Receipt{Order: o, ChangeDue: o.ChangeDue()}, nil
}
