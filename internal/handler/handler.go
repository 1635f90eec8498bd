// Package handler exposes the order engine over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/middleware"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/payment"
)

// gatewayFailureMessage is shown for every failed online payment.
const gatewayFailureMessage = "payment failed, no charge was recorded against this order"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"

	var (
		verr *order.ValidationError
		terr *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		status, msg = http.StatusBadRequest, verr.Error()
	case errors.As(err, &terr):
		status, msg = http.StatusConflict, terr.Error()
	case errors.Is(err, order.ErrNotFound), errors.Is(err, payment.ErrIntentNotFound):
		status, msg = http.StatusNotFound, "order not found"
	case errors.Is(err, order.ErrForbidden):
		status, msg = http.StatusForbidden, order.ErrForbidden.Error()
	case errors.Is(err, payment.ErrInvalidSignature):
		status, msg = http.StatusPaymentRequired, gatewayFailureMessage
	case errors.Is(err, payment.ErrGatewayUnavailable):
		status, msg = http.StatusServiceUnavailable, gatewayFailureMessage
	case errors.Is(err, order.ErrConflict),
		errors.Is(err, order.ErrContention),
		errors.Is(err, order.ErrOrderClosed),
		errors.Is(err, order.ErrDuplicateReference):
		status, msg = http.StatusConflict, rootMessage(err)
	}

	lg := zctx.From(r.Context())
	if status == http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func rootMessage(err error) string {
	for _, sentinel := range []error{
		order.ErrConflict,
		order.ErrContention,
		order.ErrOrderClosed,
		order.ErrDuplicateReference,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// actorFrom returns the authenticated principal. Routes are mounted behind
// Authenticate, so a missing principal answers 401.
func actorFrom(w http.ResponseWriter, r *http.Request) (order.Actor, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return order.Actor{}, false
	}
	return claims.Actor(), true
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// --- Response types ---

type lineResponse struct {
	ProductRef     uuid.UUID         `json:"product_ref"`
	Name           string            `json:"name"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	Quantity       int64             `json:"quantity"`
	DiscountKind   enum.DiscountKind `json:"discount_kind,omitempty"`
	DiscountValue  decimal.Decimal   `json:"discount_value"`
	DiscountAmount decimal.Decimal   `json:"discount_amount"`
	ItemTotal      decimal.Decimal   `json:"item_total"`
	Notes          string            `json:"notes,omitempty"`
}

type discountResponse struct {
	Kind   enum.DiscountKind `json:"kind"`
	Value  decimal.Decimal   `json:"value"`
	Amount decimal.Decimal   `json:"amount"`
	Reason string            `json:"reason,omitempty"`
}

type taxResponse struct {
	Name        string          `json:"name"`
	RatePercent decimal.Decimal `json:"rate_percent"`
	Amount      decimal.Decimal `json:"amount"`
}

type paymentResponse struct {
	ID                uuid.UUID          `json:"id"`
	Method            enum.PaymentMethod `json:"method"`
	Amount            decimal.Decimal    `json:"amount"`
	ExternalReference string             `json:"external_reference,omitempty"`
	AppliedAt         time.Time          `json:"applied_at"`
}

type historyResponse struct {
	From    enum.OrderStatus `json:"from"`
	To      enum.OrderStatus `json:"to"`
	ActorID uuid.UUID        `json:"actor_id"`
	Role    enum.Role        `json:"role"`
	Reason  string           `json:"reason,omitempty"`
	At      time.Time        `json:"at"`
}

type orderResponse struct {
	ID              uuid.UUID          `json:"id"`
	Number          string             `json:"order_number"`
	Channel         enum.Channel       `json:"channel"`
	Status          enum.OrderStatus   `json:"status"`
	CustomerRef     *uuid.UUID         `json:"customer_ref,omitempty"`
	TableRef        string             `json:"table_ref,omitempty"`
	DeliveryAddress string             `json:"delivery_address,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	Items           []lineResponse     `json:"items"`
	Discounts       []discountResponse `json:"discounts"`
	Taxes           []taxResponse      `json:"taxes"`
	Payments        []paymentResponse  `json:"payments"`
	History         []historyResponse  `json:"history"`

	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	Total         decimal.Decimal `json:"total"`
	RoundOff      decimal.Decimal `json:"round_off"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	Balance       decimal.Decimal `json:"balance"`

	Complimentary  bool `json:"is_complimentary"`
	Split          bool `json:"is_split"`
	KOTPrinted     bool `json:"kot_printed"`
	NumberDegraded bool `json:"number_degraded"`

	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	PreparingAt *time.Time `json:"preparing_at,omitempty"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	ServedAt    *time.Time `json:"served_at,omitempty"`
	BilledAt    *time.Time `json:"billed_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	Version     int64      `json:"version"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		Channel:         o.Channel,
		Status:          o.Status,
		CustomerRef:     o.CustomerRef,
		TableRef:        o.TableRef,
		DeliveryAddress: o.DeliveryAddress,
		Notes:           o.Notes,
		Items:           make([]lineResponse, len(o.Items)),
		Discounts:       make([]discountResponse, len(o.Discounts)),
		Taxes:           make([]taxResponse, len(o.Taxes)),
		Payments:        make([]paymentResponse, len(o.Payments)),
		History:         make([]historyResponse, len(o.History)),
		Subtotal:        o.Amounts.Subtotal,
		TotalDiscount:   o.Amounts.TotalDiscount,
		TotalTax:        o.Amounts.TotalTax,
		Total:           o.Amounts.Total,
		RoundOff:        o.Amounts.RoundOff,
		FinalAmount:     o.Amounts.FinalAmount,
		TotalPaid:       o.TotalPaid(),
		Balance:         o.Balance(),
		Complimentary:   o.Flags.Complimentary,
		Split:           o.Flags.Split,
		KOTPrinted:      o.Flags.KOTPrinted,
		NumberDegraded:  o.Flags.NumberDegraded,
		CreatedAt:       o.Timestamps.Created,
		ConfirmedAt:     o.Timestamps.Confirmed,
		PreparingAt:     o.Timestamps.Preparing,
		ReadyAt:         o.Timestamps.Ready,
		ServedAt:        o.Timestamps.Served,
		BilledAt:        o.Timestamps.Billed,
		PaidAt:          o.Timestamps.Paid,
		CancelledAt:     o.Timestamps.Cancelled,
		Version:         o.Version,
	}
	for i, it := range o.Items {
		resp.Items[i] = lineResponse{
			ProductRef:     it.ProductRef,
			Name:           it.Name,
			UnitPrice:      it.UnitPrice,
			Quantity:       it.Quantity,
			DiscountKind:   it.DiscountKind,
			DiscountValue:  it.DiscountValue,
			DiscountAmount: it.DiscountAmount,
			ItemTotal:      it.ItemTotal,
			Notes:          it.Notes,
		}
	}
	for i, d := range o.Discounts {
		resp.Discounts[i] = discountResponse{Kind: d.Kind, Value: d.Value, Amount: d.Amount, Reason: d.Reason}
	}
	for i, t := range o.Taxes {
		resp.Taxes[i] = taxResponse{Name: t.Name, RatePercent: t.RatePercent, Amount: t.Amount}
	}
	for i, p := range o.Payments {
		resp.Payments[i] = paymentResponse{
			ID:                p.ID,
			Method:            p.Method,
			Amount:            p.Amount,
			ExternalReference: p.ExternalReference,
			AppliedAt:         p.AppliedAt,
		}
	}
	for i, h := range o.History {
		resp.History[i] = historyResponse{
			From:    h.From,
			To:      h.To,
			ActorID: h.ActorID,
			Role:    h.Role,
			Reason:  h.Reason,
			At:      h.At,
		}
	}
	return resp
}
