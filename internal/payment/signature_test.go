package payment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiwari-pos/ordering/internal/payment"
)

func TestSign(t *testing.T) {
	secret := []byte("test_secret")

	assert.Equal(t,
		"444ab3353f39d9a6cd042ce01e598f3a2819f46159b58f0ff40d4eed15d8e158",
		payment.Sign(secret, "order_1", "pay_1"),
	)
	assert.Equal(t,
		"c66b65112a06a997d28de56faf1f474a27f59c87fd1299f55840129af934466a",
		payment.Sign(secret, "order_1", "pay_2"),
	)
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("test_secret")
	valid := "444ab3353f39d9a6cd042ce01e598f3a2819f46159b58f0ff40d4eed15d8e158"

	tests := []struct {
		name      string
		secret    []byte
		orderID   string
		paymentID string
		signature string
		want      bool
	}{
		{"valid", secret, "order_1", "pay_1", valid, true},
		{"other payment", secret, "order_1", "pay_2", valid, false},
		{"swapped ids", secret, "pay_1", "order_1", valid, false},
		{"wrong secret", []byte("other"), "order_1", "pay_1", valid, false},
		{"empty secret", nil, "order_1", "pay_1", valid, false},
		{"empty signature", secret, "order_1", "pay_1", "", false},
		{"not hex", secret, "order_1", "pay_1", "zz" + valid[2:], false},
		{"truncated", secret, "order_1", "pay_1", valid[:62], false},
		{"uppercase hex", secret, "order_1", "pay_1", "444AB3353F39D9A6CD042CE01E598F3A2819F46159B58F0FF40D4EED15D8E158", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := payment.VerifySignature(tt.secret, tt.orderID, tt.paymentID, tt.signature)
			assert.Equal(t, tt.want, got)
		})
	}
}
