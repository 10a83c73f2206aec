package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/henryq1230/easydeals-backend/model"
	"github.com/henryq1230/easydeals-backend/split"
)

// CreateOrderRequest is the settlement contract handed to the processor:
// the amount, the already-computed split entries and the method-specific
// customer details.
type CreateOrderRequest struct {
	OrderID     string
	OrderNumber string
	Amount      decimal.Decimal
	Method      model.PaymentMethod
	Split       []split.Entry
	Customer    Customer
	WalletPhone string
	ExpiresAt   time.Time
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CreateOrderResponse struct {
	ExternalOrderID string
	PaymentURL      string
	ExpiresAt       time.Time
	Raw             []byte
}

type StatusResponse struct {
	Status string
	Raw    []byte
}

type RefundResponse struct {
	RefundID string
	Raw      []byte
}

// Gateway is the boundary to the external card / mobile-wallet
// processor. Implementations must distinguish transport failures
// (apperr.GatewayUnavailable, retryable — no external id allocated)
// from processor-reported business errors (apperr.GatewayRejected).
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error)
	VerifySignature(rawBody []byte, signature string) bool
	GetStatus(ctx context.Context, externalOrderID string) (*StatusResponse, error)
	Refund(ctx context.Context, externalOrderID string, amount *decimal.Decimal, reason string) (*RefundResponse, error)
}
