package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/order"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// OrderService is the part of *order.Service the handlers drive.
type OrderService interface {
	CreateCheckout(ctx context.Context, req order.CheckoutRequest) (*order.Order, error)
	CreatePOS(ctx context.Context, req order.POSRequest) (*order.Order, error)
	Get(ctx context.Context, id uuid.UUID, actor order.Actor) (*order.Order, error)
	List(ctx context.Context, f order.ListFilter, actor order.Actor) ([]*order.Order, error)
	Transition(ctx context.Context, id uuid.UUID, to enum.OrderStatus, actor order.Actor, opts order.TransitionOptions) (*order.Order, error)
	Cancel(ctx context.Context, id uuid.UUID, actor order.Actor, opts order.TransitionOptions) (*order.Order, error)
	MarkKOTPrinted(ctx context.Context, id uuid.UUID, actor order.Actor) (*order.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	orders OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout", h.Checkout)
	r.Post("/pos", h.POS)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/transitions", h.Transition)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/kot", h.MarkKOTPrinted)
}

// --- Request types ---

type itemRequest struct {
	ProductRef    uuid.UUID         `json:"product_ref"`
	Quantity      int64             `json:"quantity"`
	DiscountKind  enum.DiscountKind `json:"discount_kind"`
	DiscountValue decimal.Decimal   `json:"discount_value"`
	Notes         string            `json:"notes"`
}

type checkoutRequest struct {
	Channel         enum.Channel     `json:"channel"`
	CustomerRef     *uuid.UUID       `json:"customer_ref"`
	TableRef        string           `json:"table_ref"`
	DeliveryAddress string           `json:"delivery_address"`
	Notes           string           `json:"notes"`
	Items           []itemRequest    `json:"items"`
	ExpectedTotal   *decimal.Decimal `json:"expected_total"`
}

type discountRequest struct {
	Kind   enum.DiscountKind `json:"kind"`
	Value  decimal.Decimal   `json:"value"`
	Reason string            `json:"reason"`
}

type paymentRequest struct {
	Method    enum.PaymentMethod `json:"method"`
	Amount    decimal.Decimal    `json:"amount"`
	Reference string             `json:"reference"`
}

type posRequest struct {
	TableRef      string            `json:"table_ref"`
	Notes         string            `json:"notes"`
	Items         []itemRequest     `json:"items"`
	Discounts     []discountRequest `json:"discounts"`
	Complimentary bool              `json:"is_complimentary"`
	Payments      []paymentRequest  `json:"payments"`
	ExpectedTotal *decimal.Decimal  `json:"expected_total"`
}

type transitionRequest struct {
	Status      enum.OrderStatus `json:"status"`
	Reason      string           `json:"reason"`
	OverridePIN string           `json:"override_pin"`
}

type cancelRequest struct {
	Reason      string `json:"reason"`
	OverridePIN string `json:"override_pin"`
}

func toItemRequests(items []itemRequest) []order.ItemRequest {
	out := make([]order.ItemRequest, len(items))
	for i, it := range items {
		out[i] = order.ItemRequest{
			ProductRef:    it.ProductRef,
			Quantity:      it.Quantity,
			DiscountKind:  it.DiscountKind,
			DiscountValue: it.DiscountValue,
			Notes:         it.Notes,
		}
	}
	return out
}

func toPaymentInputs(payments []paymentRequest) []order.PaymentInput {
	out := make([]order.PaymentInput, len(payments))
	for i, p := range payments {
		out[i] = order.PaymentInput{Method: p.Method, Amount: p.Amount, Reference: p.Reference}
	}
	return out
}

// --- Handlers ---

// Checkout handles POST /orders/checkout.
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.CreateCheckout(r.Context(), order.CheckoutRequest{
		Actor:           actor,
		Channel:         req.Channel,
		CustomerRef:     req.CustomerRef,
		TableRef:        req.TableRef,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		Items:           toItemRequests(req.Items),
		ExpectedTotal:   req.ExpectedTotal,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// POS handles POST /orders/pos.
func (h *OrderHandler) POS(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req posRequest
	if !decodeBody(w, r, &req) {
		return
	}

	discounts := make([]order.DiscountRequest, len(req.Discounts))
	for i, d := range req.Discounts {
		discounts[i] = order.DiscountRequest{Kind: d.Kind, Value: d.Value, Reason: d.Reason}
	}
	o, err := h.orders.CreatePOS(r.Context(), order.POSRequest{
		Actor:         actor,
		TableRef:      req.TableRef,
		Notes:         req.Notes,
		Items:         toItemRequests(req.Items),
		Discounts:     discounts,
		Complimentary: req.Complimentary,
		Payments:      toPaymentInputs(req.Payments),
		ExpectedTotal: req.ExpectedTotal,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.Get(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// List handles GET /orders with optional status, channel, from, to, limit
// and offset query parameters.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	f := order.ListFilter{Limit: defaultListLimit}
	if s := q.Get("status"); s != "" {
		f.Status = enum.OrderStatus(s)
		if !f.Status.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
	}
	if c := q.Get("channel"); c != "" {
		f.Channel = enum.Channel(c)
		if !f.Channel.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid channel"})
			return
		}
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + p.name + " (want RFC 3339)"})
			return
		}
		*p.dst = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		f.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		f.Offset = n
	}

	orders, err := h.orders.List(r.Context(), f, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transition handles POST /orders/{id}/transitions.
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.Transition(r.Context(), id, req.Status, actor, order.TransitionOptions{
		Reason:      req.Reason,
		OverridePIN: req.OverridePIN,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// Cancel handles POST /orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.Cancel(r.Context(), id, actor, order.TransitionOptions{
		Reason:      req.Reason,
		OverridePIN: req.OverridePIN,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// MarkKOTPrinted handles POST /orders/{id}/kot.
func (h *OrderHandler) MarkKOTPrinted(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.MarkKOTPrinted(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
