package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/payment"
)

// Reconciler is the part of *payment.Reconciler the handlers drive.
type Reconciler interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID, actor order.Actor) (*payment.Intent, error)
	VerifyAndApply(ctx context.Context, req payment.VerifyRequest) (*payment.VerifyResult, error)
	RecordPayments(ctx context.Context, orderID uuid.UUID, entries []order.PaymentInput, actor order.Actor) (*payment.Receipt, error)
}

// OrderReader scopes payment calls to orders the principal may see.
type OrderReader interface {
	Get(ctx context.Context, id uuid.UUID, actor order.Actor) (*order.Order, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	reconciler Reconciler
	orders     OrderReader
	keyID      string
}

// NewPaymentHandler creates a new PaymentHandler. keyID is the public
// gateway key handed to clients together with an intent.
func NewPaymentHandler(reconciler Reconciler, orders OrderReader, keyID string) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler, orders: orders, keyID: keyID}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
// Expected to be mounted at /orders/{id}/payments
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Record)
	r.Post("/intent", h.CreateIntent)
	r.Post("/verify", h.Verify)
}

// --- Request / Response types ---

type recordPaymentsRequest struct {
	Payments []paymentRequest `json:"payments"`
}

type intentResponse struct {
	GatewayOrderID string          `json:"gateway_order_id"`
	KeyID          string          `json:"key_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

type verifyRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

type verifyResponse struct {
	Order     orderResponse   `json:"order"`
	Replayed  bool            `json:"replayed"`
	RefundDue decimal.Decimal `json:"refund_due"`
}

type receiptResponse struct {
	Order     orderResponse   `json:"order"`
	ChangeDue decimal.Decimal `json:"change_due"`
}

// --- Handlers ---

// Record handles POST /orders/{id}/payments.
func (h *PaymentHandler) Record(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req recordPaymentsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	receipt, err := h.reconciler.RecordPayments(r.Context(), id, toPaymentInputs(req.Payments), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{
		Order:     toOrderResponse(receipt.Order),
		ChangeDue: receipt.ChangeDue,
	})
}

// CreateIntent handles POST /orders/{id}/payments/intent.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	in, err := h.reconciler.CreateIntent(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intentResponse{
		GatewayOrderID: in.GatewayOrderID,
		KeyID:          h.keyID,
		Amount:         in.Amount,
		Currency:       in.Currency,
	})
}

// Verify handles POST /orders/{id}/payments/verify.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	// Customers may only settle their own orders.
	if _, err := h.orders.Get(r.Context(), id, actor); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.reconciler.VerifyAndApply(r.Context(), payment.VerifyRequest{
		OrderID:          id,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Order:     toOrderResponse(res.Order),
		Replayed:  res.Replayed,
		RefundDue: res.RefundDue,
	})
}
