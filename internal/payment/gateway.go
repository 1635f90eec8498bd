package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// GatewayOrder is the gateway's view of a payment intent.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Gateway creates payment orders at the external payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error)
}

// GatewayConfig configures HTTPGateway.
type GatewayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// HTTPGateway talks to a Razorpay-style orders API.
type HTTPGateway struct {
	cfg    GatewayConfig
	client *http.Client
}

// NewHTTPGateway creates an HTTPGateway with a bounded, traced HTTP client.
func NewHTTPGateway(cfg GatewayConfig) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPGateway{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// CreateOrder registers a payment intent of amountMinor at the gateway.
// Every failure is reported as ErrGatewayUnavailable.
func (g *HTTPGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error) {
	if g.cfg.BaseURL == "" || g.cfg.KeyID == "" || g.cfg.KeySecret == "" {
		return nil, errors.Wrap(ErrGatewayUnavailable, "gateway credentials are not configured")
	}

	body, err := json.Marshal(createOrderRequest{Amount: amountMinor, Currency: currency, Receipt: receipt})
	if err != nil {
		return nil, errors.Wrap(err, "marshal gateway request")
	}
	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(ErrGatewayUnavailable, "build request: %v", err)
	}
	req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrGatewayUnavailable, "call gateway: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Wrapf(ErrGatewayUnavailable, "gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out GatewayOrder
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrapf(ErrGatewayUnavailable, "decode response: %v", err)
	}
	if out.ID == "" {
		return nil, errors.Wrap(ErrGatewayUnavailable, "gateway response has no order id")
	}
	return &out, nil
}
