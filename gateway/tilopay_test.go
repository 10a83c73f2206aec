package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/model"
)

func newTestTilopay(baseURL string) *Tilopay {
	return NewTilopay(TilopayConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		SecretKey:   "test-secret",
		PlatformKey: "platform-key",
		FrontendURL: "http://front",
		BackendURL:  "http://back",
	}, zap.NewNop())
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	tp := newTestTilopay("http://unused")
	body := []byte(`{"order_id":"tlp-1","status":"completed"}`)

	assert.True(t, tp.VerifySignature(body, sign("test-secret", body)))
	assert.False(t, tp.VerifySignature(body, sign("wrong-secret", body)))
	assert.False(t, tp.VerifySignature(body, "not-a-signature"))
	assert.False(t, tp.VerifySignature([]byte("tampered"), sign("test-secret", body)))
}

func TestCreateOrder_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "platform-key", r.Header.Get("X-Platform-Key"))
		w.Write([]byte(`{"order_id":"tlp-123","payment_url":"https://pay/tlp-123","expires_at":"2026-01-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	tp := newTestTilopay(srv.URL)
	resp, err := tp.CreateOrder(context.Background(), CreateOrderRequest{
		OrderID:     "ord-1",
		OrderNumber: "AB12CD34",
		Amount:      decimal.RequireFromString("26.40"),
		Method:      model.PaymentMethodCard,
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "tlp-123", resp.ExternalOrderID)
	assert.Equal(t, "https://pay/tlp-123", resp.PaymentURL)
}

func TestCreateOrder_GatewayRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(422)
		w.Write([]byte(`{"error":"invalid submerchant key"}`))
	}))
	defer srv.Close()

	tp := newTestTilopay(srv.URL)
	_, err := tp.CreateOrder(context.Background(), CreateOrderRequest{
		OrderID: "ord-1",
		Amount:  decimal.RequireFromString("10.00"),
		Method:  model.PaymentMethodCard,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.GatewayRejected, apperr.KindOf(err))
	assert.False(t, apperr.Retryable(err))
}

func TestCreateOrder_TransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	tp := newTestTilopay(srv.URL)
	_, err := tp.CreateOrder(context.Background(), CreateOrderRequest{
		OrderID: "ord-1",
		Amount:  decimal.RequireFromString("10.00"),
		Method:  model.PaymentMethodCard,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.GatewayUnavailable, apperr.KindOf(err))
	assert.True(t, apperr.Retryable(err))
}

func TestRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders/tlp-123/refund", r.URL.Path)
		w.Write([]byte(`{"refund_id":"rf-1"}`))
	}))
	defer srv.Close()

	tp := newTestTilopay(srv.URL)
	resp, err := tp.Refund(context.Background(), "tlp-123", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "rf-1", resp.RefundID)
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders/tlp-123", r.URL.Path)
		w.Write([]byte(`{"status":"completed"}`))
	}))
	defer srv.Close()

	tp := newTestTilopay(srv.URL)
	resp, err := tp.GetStatus(context.Background(), "tlp-123")
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
}
