package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Business struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	OwnerID uint   `gorm:"index" json:"owner_id"`
	Owner   User   `gorm:"foreignKey:OwnerID" json:"-"`
	Name    string `gorm:"size:200" json:"name"`

	DeliveryFee decimal.Decimal `gorm:"type:numeric(8,2)" json:"delivery_fee"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	BusinessID  uint            `gorm:"index" json:"business_id"`
	Name        string          `gorm:"size:200" json:"name"`
	Price       decimal.Decimal `gorm:"type:numeric(8,2)" json:"price"`
	IsAvailable bool            `gorm:"default:true" json:"is_available"`

	CreatedAt time.Time `json:"created_at"`
}

// Submerchant is the gateway-registered payee identity for a business
// owner or driver. Read-only input to the split computer.
type Submerchant struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UserID         uint   `gorm:"uniqueIndex" json:"user_id"`
	SubmerchantKey string `gorm:"size:100;uniqueIndex" json:"submerchant_key"`

	BusinessName  string `gorm:"size:200" json:"business_name"`
	BusinessEmail string `gorm:"size:255" json:"business_email"`
	BusinessPhone string `gorm:"size:15" json:"business_phone"`

	IsActive   bool `gorm:"default:true" json:"is_active"`
	IsVerified bool `gorm:"default:false" json:"is_verified"`

	CommissionPercentage decimal.Decimal `gorm:"type:numeric(5,4)" json:"commission_percentage"`

	AcceptsCards  bool `gorm:"default:true" json:"accepts_cards"`
	AcceptsWallet bool `gorm:"default:true" json:"accepts_wallet"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
