package enum

// ── Group A: State machines (CHECK constrained in DB) ──

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusBilled    OrderStatus = "billed"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusServed,
	OrderStatusBilled,
	OrderStatusPaid,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// ── Group B: Order attributes (CHECK constrained in DB) ──

// Channel is the producer of an order.
type Channel string

const (
	ChannelDineIn   Channel = "dine_in"
	ChannelTakeaway Channel = "takeaway"
	ChannelDelivery Channel = "delivery"
	ChannelPOS      Channel = "pos"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelDineIn, ChannelTakeaway, ChannelDelivery, ChannelPOS:
		return true
	}
	return false
}

// PaymentMethod is how a payment entry was settled.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodUPI,
		PaymentMethodWallet, PaymentMethodOnline:
		return true
	}
	return false
}

// StaffAsserted reports whether staff may record the method directly at the till.
func (m PaymentMethod) StaffAsserted() bool {
	return m.Valid() && m != PaymentMethodOnline
}

// ── Group C: Configurable labels ──

// DiscountKind selects how a discount value is interpreted.
type DiscountKind string

const (
	DiscountKindPercentage DiscountKind = "percentage"
	DiscountKindFixed      DiscountKind = "fixed"
)

func (k DiscountKind) Valid() bool {
	return k == DiscountKindPercentage || k == DiscountKindFixed
}

// Role is the role carried by an authenticated principal.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
	// RoleSystem is used for transitions driven by the service itself,
	// such as settling an order after a verified gateway payment.
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer, RoleSystem:
		return true
	}
	return false
}

// Operator reports whether the role works the floor or the till.
func (r Role) Operator() bool {
	return r == RoleAdmin || r == RoleStaff
}
