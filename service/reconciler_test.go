package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/cache"
	"github.com/henryq1230/easydeals-backend/gateway"
	"github.com/henryq1230/easydeals-backend/model"
	"github.com/henryq1230/easydeals-backend/split"
)

func TestMapGatewayStatus(t *testing.T) {
	tests := []struct {
		in   string
		want model.PaymentStatus
	}{
		{"processing", model.PaymentStatusProcessing},
		{"completed", model.PaymentStatusCompleted},
		{"failed", model.PaymentStatusFailed},
		{"expired", model.PaymentStatusExpired},
	}
	for _, tt := range tests {
		got, err := mapGatewayStatus(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := mapGatewayStatus("settled")
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestValidatePaymentTransition(t *testing.T) {
	ok := [][2]model.PaymentStatus{
		{model.PaymentStatusPending, model.PaymentStatusProcessing},
		{model.PaymentStatusPending, model.PaymentStatusCompleted},
		{model.PaymentStatusPending, model.PaymentStatusFailed},
		{model.PaymentStatusPending, model.PaymentStatusExpired},
		{model.PaymentStatusProcessing, model.PaymentStatusCompleted},
		{model.PaymentStatusProcessing, model.PaymentStatusFailed},
		{model.PaymentStatusProcessing, model.PaymentStatusExpired},
		{model.PaymentStatusCompleted, model.PaymentStatusRefunded},
	}
	for _, tr := range ok {
		assert.NoError(t, validatePaymentTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	bad := [][2]model.PaymentStatus{
		{model.PaymentStatusCompleted, model.PaymentStatusFailed},
		{model.PaymentStatusCompleted, model.PaymentStatusPending},
		{model.PaymentStatusFailed, model.PaymentStatusCompleted},
		{model.PaymentStatusExpired, model.PaymentStatusCompleted},
		{model.PaymentStatusRefunded, model.PaymentStatusCompleted},
		{model.PaymentStatusRefunded, model.PaymentStatusRefunded},
		{model.PaymentStatusPending, model.PaymentStatusRefunded},
		{model.PaymentStatusProcessing, model.PaymentStatusPending},
	}
	for _, tr := range bad {
		err := validatePaymentTransition(tr[0], tr[1])
		require.Error(t, err, "%s -> %s", tr[0], tr[1])
		assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	}
}

func TestPaymentIsTerminal(t *testing.T) {
	terminal := []model.PaymentStatus{
		model.PaymentStatusCompleted,
		model.PaymentStatusFailed,
		model.PaymentStatusExpired,
		model.PaymentStatusRefunded,
	}
	for _, s := range terminal {
		assert.True(t, (&model.Payment{Status: s}).IsTerminal(), "%s", s)
	}
	assert.False(t, (&model.Payment{Status: model.PaymentStatusPending}).IsTerminal())
	assert.False(t, (&model.Payment{Status: model.PaymentStatusProcessing}).IsTerminal())
}

func TestClassifyDelivery(t *testing.T) {
	tests := []struct {
		name   string
		status model.PaymentStatus
		target model.PaymentStatus
		want   deliveryOutcome
	}{
		{"first completion applies", model.PaymentStatusPending, model.PaymentStatusCompleted, deliveryApply},
		{"processing applies", model.PaymentStatusPending, model.PaymentStatusProcessing, deliveryApply},
		{"completion after processing applies", model.PaymentStatusProcessing, model.PaymentStatusCompleted, deliveryApply},
		{"redelivered completion is duplicate", model.PaymentStatusCompleted, model.PaymentStatusCompleted, deliveryDuplicate},
		{"redelivered failure is duplicate", model.PaymentStatusFailed, model.PaymentStatusFailed, deliveryDuplicate},
		{"redelivered expiry is duplicate", model.PaymentStatusExpired, model.PaymentStatusExpired, deliveryDuplicate},
		{"processing after completion is stale", model.PaymentStatusCompleted, model.PaymentStatusProcessing, deliveryStale},
		{"failure after completion is stale", model.PaymentStatusCompleted, model.PaymentStatusFailed, deliveryStale},
		{"completion after expiry is stale", model.PaymentStatusExpired, model.PaymentStatusCompleted, deliveryStale},
		{"repeated processing is stale", model.PaymentStatusProcessing, model.PaymentStatusProcessing, deliveryStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &model.Payment{Status: tt.status}
			assert.Equal(t, tt.want, classifyDelivery(p, tt.target))
		})
	}
}

// Every webhook delivery counts toward the audit trail, duplicates
// included; a poll-driven reconciliation does not.
func TestRecordDelivery(t *testing.T) {
	raw := []byte(`{"order_id":"tlp-1","status":"completed"}`)

	p := &model.Payment{WebhookAttempts: 2}
	recordDelivery(p, raw, true)
	assert.Equal(t, 3, p.WebhookAttempts)
	assert.True(t, p.WebhookReceived)
	assert.Equal(t, datatypes.JSON(raw), p.WebhookData)

	q := &model.Payment{}
	recordDelivery(q, raw, false)
	assert.Zero(t, q.WebhookAttempts)
	assert.False(t, q.WebhookReceived)
	assert.Nil(t, q.WebhookData)
}

type stubGateway struct {
	validSignature bool
}

func (g stubGateway) CreateOrder(context.Context, gateway.CreateOrderRequest) (*gateway.CreateOrderResponse, error) {
	return nil, nil
}

func (g stubGateway) VerifySignature([]byte, string) bool { return g.validSignature }

func (g stubGateway) GetStatus(context.Context, string) (*gateway.StatusResponse, error) {
	return nil, nil
}

func (g stubGateway) Refund(context.Context, string, *decimal.Decimal, string) (*gateway.RefundResponse, error) {
	return nil, nil
}

// The nil db guarantees these paths reject before any storage access:
// a test reaching the database would panic.
func newWebhookService(g gateway.Gateway) *PaymentService {
	return NewPaymentService(nil, g, split.Config{}, time.Hour, NopNotifier{}, cache.Disabled(), zap.NewNop())
}

func TestHandleWebhook_InvalidSignatureMutatesNothing(t *testing.T) {
	s := newWebhookService(stubGateway{validSignature: false})
	body := []byte(`{"order_id":"tlp-1","status":"completed"}`)

	result, err := s.HandleWebhook(context.Background(), body, "forged")
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
	assert.Nil(t, result)
}

func TestHandleWebhook_MalformedPayload(t *testing.T) {
	s := newWebhookService(stubGateway{validSignature: true})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{not json`},
		{"missing status", `{"order_id":"tlp-1"}`},
		{"missing order id", `{"status":"completed"}`},
		{"unknown status", `{"order_id":"tlp-1","status":"settled"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.HandleWebhook(context.Background(), []byte(tt.body), "sig")
			require.Error(t, err)
			assert.Equal(t, apperr.Validation, apperr.KindOf(err))
			assert.Nil(t, result)
		})
	}
}
