package order

import (
	"github.com/go-faster/errors"

	"github.com/kiwari-pos/ordering/internal/enum"
)

// TransitionInput is the context a transition is evaluated in.
type TransitionInput struct {
	Actor Actor
	// Override is set once the caller has verified a manager override
	// (admin role or manager PIN). It only lifts the kitchen ticket gate.
	Override bool
}

type guard func(o *Order, in TransitionInput) error

// transitions is the legal transition table. Anything not listed is refused.
var transitions = map[enum.OrderStatus]map[enum.OrderStatus]guard{
	enum.OrderStatusDraft: {
		enum.OrderStatusConfirmed: guardConfirm,
		enum.OrderStatusCancelled: guardCancel,
	},
	enum.OrderStatusConfirmed: {
		enum.OrderStatusPreparing: guardOperator,
		enum.OrderStatusPaid:      guardFastPath,
		enum.OrderStatusCancelled: guardCancel,
	},
	enum.OrderStatusPreparing: {
		enum.OrderStatusReady:     guardOperator,
		enum.OrderStatusCancelled: guardCancel,
	},
	enum.OrderStatusReady: {
		enum.OrderStatusServed:    guardOperator,
		enum.OrderStatusCancelled: guardCancel,
	},
	enum.OrderStatusServed: {
		enum.OrderStatusBilled:    guardOperator,
		enum.OrderStatusCancelled: guardCancel,
	},
	enum.OrderStatusBilled: {
		enum.OrderStatusPaid:      guardSettle,
		enum.OrderStatusCancelled: guardCancel,
	},
}

// Next lists the statuses reachable from status in one step.
func Next(status enum.OrderStatus) []enum.OrderStatus {
	var out []enum.OrderStatus
	for _, s := range enum.OrderStatuses {
		if _, ok := transitions[status][s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// CheckTransition validates moving o to status to. It never mutates o.
func CheckTransition(o *Order, to enum.OrderStatus, in TransitionInput) error {
	g, ok := transitions[o.Status][to]
	if !ok {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	return g(o, in)
}

func refuse(o *Order, to enum.OrderStatus, reason string) error {
	return &InvalidTransitionError{From: o.Status, To: to, Reason: reason}
}

func guardConfirm(o *Order, in TransitionInput) error {
	if len(o.Items) == 0 {
		return refuse(o, enum.OrderStatusConfirmed, "order has no items")
	}
	if !o.Flags.POS && o.CustomerRef == nil {
		return refuse(o, enum.OrderStatusConfirmed, "customer identity is required")
	}
	switch {
	case in.Actor.Role.Operator(), in.Actor.Role == enum.RoleSystem:
	case in.Actor.Role == enum.RoleCustomer && owns(o, in.Actor):
	default:
		return errors.Wrap(ErrForbidden, "confirm order")
	}
	return nil
}

func guardOperator(o *Order, in TransitionInput) error {
	if !in.Actor.Role.Operator() {
		return errors.Wrap(ErrForbidden, "kitchen and floor transitions need staff")
	}
	return nil
}

func guardSettle(o *Order, in TransitionInput) error {
	if !in.Actor.Role.Operator() && in.Actor.Role != enum.RoleSystem {
		return errors.Wrap(ErrForbidden, "settle order")
	}
	if !o.Settled() {
		return refuse(o, enum.OrderStatusPaid, "balance outstanding")
	}
	return nil
}

// guardFastPath allows walk-in orders to settle straight from confirmed.
func guardFastPath(o *Order, in TransitionInput) error {
	if !o.Flags.POS && !o.Flags.Complimentary {
		return refuse(o, enum.OrderStatusPaid, "only walk-in or complimentary orders settle from confirmed")
	}
	return guardSettle(o, in)
}

func guardCancel(o *Order, in TransitionInput) error {
	switch {
	case in.Actor.Role.Operator(), in.Actor.Role == enum.RoleSystem:
	case in.Actor.Role == enum.RoleCustomer && owns(o, in.Actor):
		if o.Status != enum.OrderStatusDraft && o.Status != enum.OrderStatusConfirmed {
			return errors.Wrap(ErrForbidden, "customers cannot cancel once the kitchen has the order")
		}
	default:
		return errors.Wrap(ErrForbidden, "cancel order")
	}
	final := o.Amounts.FinalAmount
	if final.IsPositive() && o.TotalPaid().GreaterThanOrEqual(final) {
		return refuse(o, enum.OrderStatusCancelled, "order is fully paid, a refund is required")
	}
	if o.Flags.KOTPrinted && !in.Override {
		return refuse(o, enum.OrderStatusCancelled, "kitchen ticket already printed, manager override required")
	}
	return nil
}

func owns(o *Order, a Actor) bool {
	return o.CustomerRef != nil && *o.CustomerRef == a.ID
}
