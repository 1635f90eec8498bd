package order

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwari-pos/ordering/internal/enum"
)

var (
	staff = Actor{ID: uuid.New(), Role: enum.RoleStaff}
	admin = Actor{ID: uuid.New(), Role: enum.RoleAdmin}
)

func testOrder(t *testing.T, status enum.OrderStatus) *Order {
	t.Helper()
	customer := uuid.New()
	o, err := NewCheckout(CheckoutParams{
		Channel:     enum.ChannelTakeaway,
		CustomerRef: &customer,
		Lines: []LineInput{{
			ProductRef: uuid.New(),
			Name:       "Biryani",
			UnitPrice:  decimal.NewFromInt(100),
			Quantity:   2,
		}},
	}, Pricing{}, time.Now())
	require.NoError(t, err)
	o.Status = status
	return o
}

func TestCheckTransitionTable(t *testing.T) {
	legal := map[enum.OrderStatus][]enum.OrderStatus{
		enum.OrderStatusDraft:     {enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
		enum.OrderStatusConfirmed: {enum.OrderStatusPreparing, enum.OrderStatusPaid, enum.OrderStatusCancelled},
		enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
		enum.OrderStatusReady:     {enum.OrderStatusServed, enum.OrderStatusCancelled},
		enum.OrderStatusServed:    {enum.OrderStatusBilled, enum.OrderStatusCancelled},
		enum.OrderStatusBilled:    {enum.OrderStatusPaid, enum.OrderStatusCancelled},
		enum.OrderStatusPaid:      nil,
		enum.OrderStatusCancelled: nil,
	}
	for _, from := range enum.OrderStatuses {
		assert.ElementsMatch(t, legal[from], Next(from), "from %s", from)
	}

	// Every pair outside the table is refused with InvalidTransitionError.
	for _, from := range enum.OrderStatuses {
		for _, to := range enum.OrderStatuses {
			if contains(legal[from], to) {
				continue
			}
			o := testOrder(t, from)
			err := CheckTransition(o, to, TransitionInput{Actor: admin, Override: true})
			assert.True(t, IsInvalidTransition(err), "%s -> %s: %v", from, to, err)
			assert.Equal(t, from, o.Status, "refused transition must not mutate")
		}
	}
}

func contains(list []enum.OrderStatus, s enum.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []enum.OrderStatus{enum.OrderStatusPaid, enum.OrderStatusCancelled} {
		assert.True(t, s.Terminal())
		assert.Empty(t, Next(s))
	}
}

func TestGuardConfirm(t *testing.T) {
	o := testOrder(t, enum.OrderStatusDraft)
	owner := Actor{ID: *o.CustomerRef, Role: enum.RoleCustomer}
	stranger := Actor{ID: uuid.New(), Role: enum.RoleCustomer}

	assert.NoError(t, CheckTransition(o, enum.OrderStatusConfirmed, TransitionInput{Actor: owner}))
	assert.NoError(t, CheckTransition(o, enum.OrderStatusConfirmed, TransitionInput{Actor: staff}))
	assert.ErrorIs(t, CheckTransition(o, enum.OrderStatusConfirmed, TransitionInput{Actor: stranger}), ErrForbidden)

	anon := testOrder(t, enum.OrderStatusDraft)
	anon.CustomerRef = nil
	assert.True(t, IsInvalidTransition(CheckTransition(anon, enum.OrderStatusConfirmed, TransitionInput{Actor: staff})))

	empty := testOrder(t, enum.OrderStatusDraft)
	empty.Items = nil
	assert.True(t, IsInvalidTransition(CheckTransition(empty, enum.OrderStatusConfirmed, TransitionInput{Actor: staff})))
}

func TestGuardKitchenNeedsStaff(t *testing.T) {
	o := testOrder(t, enum.OrderStatusConfirmed)
	owner := Actor{ID: *o.CustomerRef, Role: enum.RoleCustomer}

	assert.ErrorIs(t, CheckTransition(o, enum.OrderStatusPreparing, TransitionInput{Actor: owner}), ErrForbidden)
	assert.NoError(t, CheckTransition(o, enum.OrderStatusPreparing, TransitionInput{Actor: staff}))
}

func TestGuardSettle(t *testing.T) {
	o := testOrder(t, enum.OrderStatusBilled)
	o.Amounts.FinalAmount = decimal.NewFromInt(200)

	err := CheckTransition(o, enum.OrderStatusPaid, TransitionInput{Actor: staff})
	assert.True(t, IsInvalidTransition(err), "balance outstanding")

	o.Payments = []Payment{{Method: enum.PaymentMethodCash, Amount: decimal.NewFromInt(200)}}
	assert.NoError(t, CheckTransition(o, enum.OrderStatusPaid, TransitionInput{Actor: staff}))
	assert.NoError(t, CheckTransition(o, enum.OrderStatusPaid, TransitionInput{Actor: SystemActor}))

	owner := Actor{ID: *o.CustomerRef, Role: enum.RoleCustomer}
	assert.ErrorIs(t, CheckTransition(o, enum.OrderStatusPaid, TransitionInput{Actor: owner}), ErrForbidden)
}

func TestGuardFastPath(t *testing.T) {
	o := testOrder(t, enum.OrderStatusConfirmed)
	o.Amounts.FinalAmount = decimal.NewFromInt(200)
	o.Payments = []Payment{{Method: enum.PaymentMethodCash, Amount: decimal.NewFromInt(200)}}

	err := CheckTransition(o, enum.OrderStatusPaid, TransitionInput{Actor: staff})
	assert.True(t, IsInvalidTransition(err), "web orders go through the kitchen")

	o.Flags.POS = true
	assert.NoError(t, CheckTransition(o, enum.OrderStatusPaid, TransitionInput{Actor: staff}))

	comp := testOrder(t, enum.OrderStatusConfirmed)
	comp.Flags.Complimentary = true
	assert.NoError(t, CheckTransition(comp, enum.OrderStatusPaid, TransitionInput{Actor: staff}))
}

func TestGuardCancel(t *testing.T) {
	t.Run("customer before kitchen", func(t *testing.T) {
		o := testOrder(t, enum.OrderStatusConfirmed)
		owner := Actor{ID: *o.CustomerRef, Role: enum.RoleCustomer}
		assert.NoError(t, CheckTransition(o, enum.OrderStatusCancelled, TransitionInput{Actor: owner}))

		o.Status = enum.OrderStatusPreparing
		assert.ErrorIs(t, CheckTransition(o, enum.OrderStatusCancelled, TransitionInput{Actor: owner}), ErrForbidden)
	})
	t.Run("kitchen ticket printed", func(t *testing.T) {
		o := testOrder(t, enum.OrderStatusPreparing)
		o.Flags.KOTPrinted = true

		err := CheckTransition(o, enum.OrderStatusCancelled, TransitionInput{Actor: staff})
		assert.True(t, IsInvalidTransition(err))
		assert.NoError(t, CheckTransition(o, enum.OrderStatusCancelled, TransitionInput{Actor: staff, Override: true}))
	})
	t.Run("fully paid", func(t *testing.T) {
		o := testOrder(t, enum.OrderStatusBilled)
		o.Amounts.FinalAmount = decimal.NewFromInt(200)
		o.Payments = []Payment{{Method: enum.PaymentMethodCash, Amount: decimal.NewFromInt(200)}}

		err := CheckTransition(o, enum.OrderStatusCancelled, TransitionInput{Actor: admin, Override: true})
		assert.True(t, IsInvalidTransition(err))
	})
	t.Run("partially paid", func(t *testing.T) {
		o := testOrder(t, enum.OrderStatusBilled)
		o.Amounts.FinalAmount = decimal.NewFromInt(200)
		o.Payments = []Payment{{Method: enum.PaymentMethodCash, Amount: decimal.NewFromInt(50)}}

		assert.NoError(t, CheckTransition(o, enum.OrderStatusCancelled, TransitionInput{Actor: staff}))
	})
	t.Run("nothing to pay", func(t *testing.T) {
		o := testOrder(t, enum.OrderStatusConfirmed)
		o.Amounts.FinalAmount = decimal.Zero

		assert.NoError(t, CheckTransition(o, enum.OrderStatusCancelled, TransitionInput{Actor: staff}))
	})
}

func TestTimestampsStampOnce(t *testing.T) {
	var ts Timestamps
	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	ts.Stamp(enum.OrderStatusConfirmed, first)
	ts.Stamp(enum.OrderStatusConfirmed, first.Add(time.Hour))
	ts.Stamp(enum.OrderStatusDraft, first)

	require.NotNil(t, ts.At(enum.OrderStatusConfirmed))
	assert.Equal(t, first, *ts.At(enum.OrderStatusConfirmed))
	assert.Nil(t, ts.At(enum.OrderStatusPaid))
	assert.Nil(t, ts.At(enum.OrderStatusDraft))
}
