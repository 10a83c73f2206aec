package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "mobile_wallet"
	PaymentMethodCash   PaymentMethod = "cash"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusExpired    PaymentStatus = "expired"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Payment is one-to-one with Order. Amount is fixed at creation and must
// equal Order.Total.
type Payment struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	Order   Order     `gorm:"foreignKey:OrderID" json:"-"`

	CustomerID uint `gorm:"index" json:"customer_id"`

	Method PaymentMethod   `gorm:"size:20" json:"method"`
	Amount decimal.Decimal `gorm:"type:numeric(10,2)" json:"amount"`
	Status PaymentStatus   `gorm:"size:20;default:pending;index" json:"status"`

	// External gateway references. ExternalOrderID is the id the gateway
	// echoes back in webhooks; nullable so cash payments do not collide
	// on the unique index.
	ExternalOrderID *string `gorm:"size:100;uniqueIndex" json:"external_order_id"`
	RedirectURL     string  `gorm:"size:500" json:"redirect_url"`
	WalletPhone     string  `gorm:"size:15" json:"wallet_phone"`

	SplitPayload   datatypes.JSON `json:"split_payload"`
	SplitResponses datatypes.JSON `json:"split_responses"`

	WebhookReceived bool           `gorm:"default:false" json:"webhook_received"`
	WebhookData     datatypes.JSON `json:"webhook_data"`
	WebhookAttempts int            `gorm:"default:0" json:"webhook_attempts"`

	InitiatedAt *time.Time `json:"initiated_at"`
	CompletedAt *time.Time `json:"completed_at"`
	ExpiresAt   *time.Time `json:"expires_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Commissions []Commission `gorm:"constraint:OnDelete:CASCADE" json:"commissions,omitempty"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusRefunded:
		return true
	}
	return false
}

type CommissionType string

const (
	CommissionTypePlatform CommissionType = "platform"
	CommissionTypeDriver   CommissionType = "driver"
	CommissionTypeBusiness CommissionType = "business"
)

type CommissionStatus string

const (
	CommissionStatusPending    CommissionStatus = "pending"
	CommissionStatusProcessing CommissionStatus = "processing"
	CommissionStatusCompleted  CommissionStatus = "completed"
	CommissionStatusFailed     CommissionStatus = "failed"
	CommissionStatusReversed   CommissionStatus = "reversed"
)

// Commission records one payout share of a payment. Rows are created as
// pending at split-computation time; the payout worker advances them.
type Commission struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentID uuid.UUID `gorm:"type:uuid;index" json:"payment_id"`
	OrderID   uuid.UUID `gorm:"type:uuid;index" json:"order_id"`

	CommissionType CommissionType `gorm:"size:20" json:"commission_type"`
	RecipientID    *uint          `json:"recipient_id"`
	SubmerchantKey string         `gorm:"size:100" json:"submerchant_key"`

	Amount     decimal.Decimal  `gorm:"type:numeric(8,2)" json:"amount"`
	Percentage decimal.Decimal  `gorm:"type:numeric(5,4)" json:"percentage"`
	Status     CommissionStatus `gorm:"size:20;default:pending;index" json:"status"`

	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (c *Commission) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
