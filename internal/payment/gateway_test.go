package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwari-pos/ordering/internal/payment"
)

func TestHTTPGatewayCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 23600, body["amount"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "order_1",
			"amount":   body["amount"],
			"currency": body["currency"],
			"receipt":  body["receipt"],
		})
	}))
	defer srv.Close()

	gw := payment.NewHTTPGateway(payment.GatewayConfig{BaseURL: srv.URL + "/", KeyID: "key_id", KeySecret: "key_secret"})
	got, err := gw.CreateOrder(context.Background(), 23600, "INR", "202601010001")
	require.NoError(t, err)
	assert.Equal(t, "order_1", got.ID)
	assert.EqualValues(t, 23600, got.Amount)
	assert.Equal(t, "INR", got.Currency)
}

func TestHTTPGatewayFailures(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		handler http.HandlerFunc
	}{
		{"server error", "gateway returned 500: boom", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"bad json", "decode response", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{"))
		}},
		{"missing id", "no order id", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"amount":100,"currency":"INR"}`))
		}},
		{"timeout", "call gateway", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			gw := payment.NewHTTPGateway(payment.GatewayConfig{
				BaseURL:   srv.URL,
				KeyID:     "key_id",
				KeySecret: "key_secret",
				Timeout:   200 * time.Millisecond,
			})
			_, err := gw.CreateOrder(context.Background(), 100, "INR", "r")
			require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHTTPGatewayNotConfigured(t *testing.T) {
	gw := payment.NewHTTPGateway(payment.GatewayConfig{})
	_, err := gw.CreateOrder(context.Background(), 100, "INR", "r")
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}
