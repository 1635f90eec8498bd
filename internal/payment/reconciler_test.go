package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwari-pos/ordering/internal/catalog"
	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/money"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/payment"
	"github.com/kiwari-pos/ordering/internal/storage/memory"
)

var secret = []byte("test_secret")

type fakeGateway struct {
	id     string
	err    error
	amount int64
	calls  int
}

func (g *fakeGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (*payment.GatewayOrder, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	amount := amountMinor
	if g.amount != 0 {
		amount = g.amount
	}
	return &payment.GatewayOrder{ID: g.id, Amount: amount, Currency: currency, Receipt: receipt}, nil
}

type fixture struct {
	store    *memory.Store
	orders   *order.Service
	rec      *payment.Reconciler
	gateway  *fakeGateway
	staff    order.Actor
	customer order.Actor
	item     catalog.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	item := catalog.Item{ID: uuid.New(), Name: "Thali", Price: decimal.NewFromInt(100), Available: true}
	store.PutItem(item)

	pricing := order.Pricing{
		Taxes:        []money.TaxRate{{Name: "GST", RatePercent: decimal.NewFromInt(18)}},
		RoundingMode: money.RoundHalfUp,
	}
	svc := order.NewService(store, store, order.NewNumberer(store, time.UTC, nil), pricing)
	gw := &fakeGateway{id: "order_1"}
	rec := payment.NewReconciler(svc, store, gw, payment.NewReplayGuard(1000, 0.01), nil, payment.Config{Secret: secret})

	return &fixture{
		store:    store,
		orders:   svc,
		rec:      rec,
		gateway:  gw,
		staff:    order.Actor{ID: uuid.New(), Role: enum.RoleStaff},
		customer: order.Actor{ID: uuid.New(), Role: enum.RoleCustomer},
		item:     item,
	}
}

// checkout creates a takeaway order of two thalis: 200 + 36 GST = 236.
func (f *fixture) checkout(t *testing.T) *order.Order {
	t.Helper()
	o, err := f.orders.CreateCheckout(context.Background(), order.CheckoutRequest{
		Actor:   f.customer,
		Channel: enum.ChannelTakeaway,
		Items:   []order.ItemRequest{{ProductRef: f.item.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(236).Equal(o.Amounts.FinalAmount))
	return o
}

// bill walks an order through the kitchen to billed.
func (f *fixture) bill(t *testing.T, id uuid.UUID) {
	t.Helper()
	for _, to := range []enum.OrderStatus{
		enum.OrderStatusPreparing,
		enum.OrderStatusReady,
		enum.OrderStatusServed,
		enum.OrderStatusBilled,
	} {
		_, err := f.orders.Transition(context.Background(), id, to, f.staff, order.TransitionOptions{})
		require.NoError(t, err)
	}
}

func TestCreateIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)

	in, err := f.rec.CreateIntent(ctx, o.ID, f.customer)
	require.NoError(t, err)
	assert.Equal(t, "order_1", in.GatewayOrderID)
	assert.Equal(t, o.ID, in.OrderID)
	assert.True(t, decimal.NewFromInt(236).Equal(in.Amount))
	assert.Equal(t, "INR", in.Currency)

	stored, err := f.store.FindIntent(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.OrderID)

	after, err := f.orders.Get(ctx, o.ID, f.staff)
	require.NoError(t, err)
	assert.Equal(t, o.Version, after.Version, "intent creation never mutates the order")
}

func TestCreateIntentGatewayDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)
	f.gateway.err = errors.New("connection refused")

	_, err := f.rec.CreateIntent(ctx, o.ID, f.customer)
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)

	_, err = f.store.FindIntent(ctx, "order_1")
	assert.ErrorIs(t, err, payment.ErrIntentNotFound)
}

func TestCreateIntentAmountMismatch(t *testing.T) {
	f := newFixture(t)
	o := f.checkout(t)
	f.gateway.amount = 100

	_, err := f.rec.CreateIntent(context.Background(), o.ID, f.customer)
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestCreateIntentForeignOrder(t *testing.T) {
	f := newFixture(t)
	o := f.checkout(t)
	stranger := order.Actor{ID: uuid.New(), Role: enum.RoleCustomer}

	_, err := f.rec.CreateIntent(context.Background(), o.ID, stranger)
	assert.ErrorIs(t, err, order.ErrNotFound)
	assert.Zero(t, f.gateway.calls)
}

func TestVerifyAndApplyHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)
	_, err := f.rec.CreateIntent(ctx, o.ID, f.customer)
	require.NoError(t, err)
	f.bill(t, o.ID)

	res, err := f.rec.VerifyAndApply(ctx, payment.VerifyRequest{
		OrderID:          o.ID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        "444ab3353f39d9a6cd042ce01e598f3a2819f46159b58f0ff40d4eed15d8e158",
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, enum.OrderStatusPaid, res.Order.Status)
	assert.True(t, res.Order.Balance().IsZero())
	require.Len(t, res.Order.Payments, 1)
	p := res.Order.Payments[0]
	assert.Equal(t, enum.PaymentMethodOnline, p.Method)
	assert.Equal(t, "pay_1", p.ExternalReference)
	assert.True(t, decimal.NewFromInt(236).Equal(p.Amount))
}

func TestVerifyAndApplyBeforeBilling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)
	_, err := f.rec.CreateIntent(ctx, o.ID, f.customer)
	require.NoError(t, err)

	res, err := f.rec.VerifyAndApply(ctx, payment.VerifyRequest{
		OrderID:          o.ID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        payment.Sign(secret, "order_1", "pay_1"),
	})
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusConfirmed, res.Order.Status, "prepaid orders still go through the kitchen")
	assert.True(t, res.Order.Balance().IsZero())

	f.bill(t, o.ID)
	got, err := f.orders.Get(ctx, o.ID, f.staff)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusPaid, got.Status, "billing a prepaid order settles it")
}

func TestVerifyAndApplyRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)
	_, err := f.rec.CreateIntent(ctx, o.ID, f.customer)
	require.NoError(t, err)

	other := f.checkout(t)

	tests := []struct {
		name string
		req  payment.VerifyRequest
	}{
		{"bad signature", payment.VerifyRequest{
			OrderID: o.ID, GatewayOrderID: "order_1", GatewayPaymentID: "pay_1",
			Signature: payment.Sign(secret, "order_1", "pay_2"),
		}},
		{"missing payment id", payment.VerifyRequest{
			OrderID: o.ID, GatewayOrderID: "order_1",
			Signature: payment.Sign(secret, "order_1", ""),
		}},
		{"unknown gateway order", payment.VerifyRequest{
			OrderID: o.ID, GatewayOrderID: "order_9", GatewayPaymentID: "pay_1",
			Signature: payment.Sign(secret, "order_9", "pay_1"),
		}},
		{"intent of another order", payment.VerifyRequest{
			OrderID: other.ID, GatewayOrderID: "order_1", GatewayPaymentID: "pay_1",
			Signature: payment.Sign(secret, "order_1", "pay_1"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rec.VerifyAndApply(ctx, tt.req)
			require.ErrorIs(t, err, payment.ErrInvalidSignature)

			got, err := f.orders.Get(ctx, tt.req.OrderID, f.staff)
			require.NoError(t, err)
			assert.Empty(t, got.Payments, "nothing is recorded on a rejected assertion")
		})
	}
}

func TestVerifyAndApplyAfterCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)
	_, err := f.rec.CreateIntent(ctx, o.ID, f.customer)
	require.NoError(t, err)
	_, err = f.orders.Cancel(ctx, o.ID, f.customer, order.TransitionOptions{})
	require.NoError(t, err)

	req := payment.VerifyRequest{
		OrderID:          o.ID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        payment.Sign(secret, "order_1", "pay_1"),
	}
	res, err := f.rec.VerifyAndApply(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusCancelled, res.Order.Status)
	require.Len(t, res.Order.Payments, 1, "the captured charge is on the ledger")
	assert.Equal(t, "pay_1", res.Order.Payments[0].ExternalReference)
	assert.True(t, decimal.NewFromInt(236).Equal(res.RefundDue))

	again, err := f.rec.VerifyAndApply(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Len(t, again.Order.Payments, 1)
	assert.True(t, decimal.NewFromInt(236).Equal(again.RefundDue))
}

func TestVerifyAndApplyAfterTillSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)
	_, err := f.rec.CreateIntent(ctx, o.ID, f.customer)
	require.NoError(t, err)
	f.bill(t, o.ID)
	_, err = f.rec.RecordPayments(ctx, o.ID, []order.PaymentInput{
		{Method: enum.PaymentMethodCash, Amount: decimal.NewFromInt(236)},
	}, f.staff)
	require.NoError(t, err)

	res, err := f.rec.VerifyAndApply(ctx, payment.VerifyRequest{
		OrderID:          o.ID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        payment.Sign(secret, "order_1", "pay_1"),
	})
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusPaid, res.Order.Status)
	assert.Len(t, res.Order.Payments, 2)
	assert.True(t, res.Order.Balance().IsZero())
	assert.True(t, decimal.NewFromInt(236).Equal(res.RefundDue))
}

func TestVerifyAndApplyReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)
	_, err := f.rec.CreateIntent(ctx, o.ID, f.customer)
	require.NoError(t, err)

	req := payment.VerifyRequest{
		OrderID:          o.ID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        payment.Sign(secret, "order_1", "pay_1"),
	}
	first, err := f.rec.VerifyAndApply(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.rec.VerifyAndApply(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Len(t, second.Order.Payments, 1, "a replayed payment is applied once")

	// A fresh reconciler has an empty replay guard; the store still refuses.
	fresh := payment.NewReconciler(f.orders, f.store, f.gateway, nil, nil, payment.Config{Secret: secret})
	third, err := fresh.VerifyAndApply(ctx, req)
	require.NoError(t, err)
	assert.True(t, third.Replayed)
	assert.Len(t, third.Order.Payments, 1)
}

func TestRecordPaymentsSplitWithChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)
	f.bill(t, o.ID)

	rcpt, err := f.rec.RecordPayments(ctx, o.ID, []order.PaymentInput{
		{Method: enum.PaymentMethodCard, Amount: decimal.NewFromInt(100)},
		{Method: enum.PaymentMethodCash, Amount: decimal.NewFromInt(150)},
	}, f.staff)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusPaid, rcpt.Order.Status)
	assert.True(t, rcpt.Order.Flags.Split)
	assert.True(t, decimal.NewFromInt(14).Equal(rcpt.ChangeDue), "change due %s", rcpt.ChangeDue)
	assert.True(t, rcpt.Order.Balance().IsZero())
}

func TestRecordPaymentsPartial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)
	f.bill(t, o.ID)

	rcpt, err := f.rec.RecordPayments(ctx, o.ID, []order.PaymentInput{
		{Method: enum.PaymentMethodCash, Amount: decimal.NewFromInt(36)},
	}, f.staff)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusBilled, rcpt.Order.Status)
	assert.True(t, decimal.NewFromInt(200).Equal(rcpt.Order.Balance()))
	assert.True(t, rcpt.ChangeDue.IsZero())
}

func TestRecordPaymentsRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.checkout(t)

	_, err := f.rec.RecordPayments(ctx, o.ID, []order.PaymentInput{
		{Method: enum.PaymentMethodCash, Amount: decimal.NewFromInt(236)},
	}, f.customer)
	assert.ErrorIs(t, err, order.ErrForbidden)

	_, err = f.rec.RecordPayments(ctx, o.ID, []order.PaymentInput{
		{Method: enum.PaymentMethodOnline, Amount: decimal.NewFromInt(236)},
	}, f.staff)
	assert.ErrorIs(t, err, order.ErrForbidden, "online payments need a verified signature")

	_, err = f.rec.RecordPayments(ctx, o.ID, []order.PaymentInput{
		{Method: enum.PaymentMethodCash, Amount: decimal.Zero},
	}, f.staff)
	assert.True(t, order.IsValidation(err))
}
