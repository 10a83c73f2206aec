package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/model"
)

const requestTimeout = 30 * time.Second

type TilopayConfig struct {
	BaseURL     string
	APIKey      string
	SecretKey   string
	PlatformKey string
	FrontendURL string
	BackendURL  string
}

type Tilopay struct {
	cfg    TilopayConfig
	client *http.Client
	logger *zap.Logger
}

func NewTilopay(cfg TilopayConfig, logger *zap.Logger) *Tilopay {
	return &Tilopay{
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
		logger: logger,
	}
}

func (t *Tilopay) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	payload := map[string]interface{}{
		"currency":     "USD",
		"amount":       req.Amount,
		"details":      fmt.Sprintf("Order #%s - EasyDeals", req.OrderNumber),
		"orderId":      req.OrderID,
		"redirect_url": fmt.Sprintf("%s/payment/success?order_id=%s", t.cfg.FrontendURL, req.OrderID),
		"cancel_url":   fmt.Sprintf("%s/payment/cancel?order_id=%s", t.cfg.FrontendURL, req.OrderID),
		"webhook_url":  t.cfg.BackendURL + "/api/payments/gateway/webhook",
		"capture":      true,
		"split":        req.Split,
		"customer":     req.Customer,
		"expires_at":   req.ExpiresAt.Format(time.RFC3339),
	}
	for k, v := range methodConfig(req.Method, req.WalletPhone) {
		payload[k] = v
	}

	raw, err := t.post(ctx, "/v2/orders", payload)
	if err != nil {
		return nil, err
	}

	var body struct {
		OrderID    string `json:"order_id"`
		PaymentURL string `json:"payment_url"`
		ExpiresAt  string `json:"expires_at"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperr.Wrap(apperr.GatewayRejected, "malformed gateway response", err)
	}

	expires := req.ExpiresAt
	if ts, err := time.Parse(time.RFC3339, body.ExpiresAt); err == nil {
		expires = ts
	}

	return &CreateOrderResponse{
		ExternalOrderID: body.OrderID,
		PaymentURL:      body.PaymentURL,
		ExpiresAt:       expires,
		Raw:             raw,
	}, nil
}

func methodConfig(method model.PaymentMethod, walletPhone string) map[string]interface{} {
	switch method {
	case model.PaymentMethodWallet:
		return map[string]interface{}{
			"payment_methods": []string{"yappy"},
			"yappy_config": map[string]interface{}{
				"phone":         walletPhone,
				"auto_redirect": true,
			},
		}
	case model.PaymentMethodCard:
		return map[string]interface{}{
			"payment_methods": []string{"card"},
			"card_config": map[string]interface{}{
				"save_card": false,
				"capture":   true,
			},
		}
	default:
		return map[string]interface{}{
			"payment_methods": []string{"card", "yappy"},
		}
	}
}

// VerifySignature checks the webhook HMAC-SHA256 over the raw request
// body using a constant-time comparison.
func (t *Tilopay) VerifySignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(t.cfg.SecretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (t *Tilopay) GetStatus(ctx context.Context, externalOrderID string) (*StatusResponse, error) {
	raw, err := t.get(ctx, "/v2/orders/"+externalOrderID)
	if err != nil {
		return nil, err
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperr.Wrap(apperr.GatewayRejected, "malformed gateway response", err)
	}
	return &StatusResponse{Status: body.Status, Raw: raw}, nil
}

func (t *Tilopay) Refund(ctx context.Context, externalOrderID string, amount *decimal.Decimal, reason string) (*RefundResponse, error) {
	if reason == "" {
		reason = "Refund requested by customer"
	}
	payload := map[string]interface{}{"reason": reason}
	if amount != nil {
		payload["amount"] = *amount
	}

	raw, err := t.post(ctx, "/v2/orders/"+externalOrderID+"/refund", payload)
	if err != nil {
		return nil, err
	}

	var body struct {
		RefundID string `json:"refund_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperr.Wrap(apperr.GatewayRejected, "malformed gateway response", err)
	}
	return &RefundResponse{RefundID: body.RefundID, Raw: raw}, nil
}

func (t *Tilopay) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "marshal gateway payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

func (t *Tilopay) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build gateway request", err)
	}
	return t.do(req)
}

func (t *Tilopay) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("X-Platform-Key", t.cfg.PlatformKey)

	resp, err := t.client.Do(req)
	if err != nil {
		// Transport failure: nothing was allocated on the gateway side,
		// the caller may retry.
		t.logger.Error("tilopay request failed", zap.String("path", req.URL.Path), zap.Error(err))
		return nil, apperr.Wrap(apperr.GatewayUnavailable, "payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.GatewayUnavailable, "read gateway response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.logger.Error("tilopay rejected request",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return nil, apperr.Newf(apperr.GatewayRejected, "gateway returned %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}
