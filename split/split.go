package split

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/model"
)

type Config struct {
	// DefaultPlatformRate applies when the business has no submerchant
	// configuration of its own.
	DefaultPlatformRate    decimal.Decimal
	DriverCutRate          decimal.Decimal
	PlatformSubmerchantKey string
}

// Participant is the read-only submerchant view of a payable party.
type Participant struct {
	UserID         uint
	SubmerchantKey string
	CommissionRate decimal.Decimal
	Active         bool
	Verified       bool
}

type Input struct {
	OrderNumber string
	Total       decimal.Decimal
	DeliveryFee decimal.Decimal
	Business    *Participant
	Driver      *Participant
}

type Entry struct {
	Type           model.CommissionType
	RecipientID    *uint
	SubmerchantKey string          `json:"submerchant_key"`
	Amount         decimal.Decimal `json:"amount"`
	Percentage     decimal.Decimal `json:"-"`
	Description    string          `json:"description"`
}

// Compute builds the ordered split entries for a payment. Each amount is
// rounded half-up to 2 decimal places. The platform entry is emitted
// last as total minus everything already emitted, so the entries always
// sum exactly to the payment amount and any rounding residue lands on
// the platform.
func Compute(cfg Config, in Input) ([]Entry, error) {
	if cfg.PlatformSubmerchantKey == "" {
		return nil, apperr.New(apperr.Configuration, "platform submerchant key not configured")
	}

	platformRate := cfg.DefaultPlatformRate
	if in.Business != nil && in.Business.SubmerchantKey != "" {
		platformRate = in.Business.CommissionRate
	}

	var entries []Entry
	emitted := decimal.Zero

	if in.Business != nil && in.Business.Active && in.Business.Verified {
		businessShare := in.Total.Sub(in.Total.Mul(platformRate)).Round(2)
		uid := in.Business.UserID
		entries = append(entries, Entry{
			Type:           model.CommissionTypeBusiness,
			RecipientID:    &uid,
			SubmerchantKey: in.Business.SubmerchantKey,
			Amount:         businessShare,
			Percentage:     decimal.NewFromInt(1).Sub(platformRate),
			Description:    fmt.Sprintf("Sale - order #%s", in.OrderNumber),
		})
		emitted = emitted.Add(businessShare)
	}

	if in.Driver != nil && in.Driver.Active && in.DeliveryFee.IsPositive() {
		driverShare := in.DeliveryFee.Mul(cfg.DriverCutRate).Round(2)
		uid := in.Driver.UserID
		entries = append(entries, Entry{
			Type:           model.CommissionTypeDriver,
			RecipientID:    &uid,
			SubmerchantKey: in.Driver.SubmerchantKey,
			Amount:         driverShare,
			Percentage:     cfg.DriverCutRate,
			Description:    fmt.Sprintf("Delivery - order #%s", in.OrderNumber),
		})
		emitted = emitted.Add(driverShare)
	}

	// Residual goes to the platform, absorbing rounding drift.
	entries = append(entries, Entry{
		Type:           model.CommissionTypePlatform,
		SubmerchantKey: cfg.PlatformSubmerchantKey,
		Amount:         in.Total.Sub(emitted),
		Percentage:     platformRate,
		Description:    fmt.Sprintf("Platform commission - order #%s", in.OrderNumber),
	})

	return entries, nil
}

// Sum is the total of all entry amounts. Always equals Input.Total for
// entries produced by Compute.
func Sum(entries []Entry) decimal.Decimal {
	s := decimal.Zero
	for _, e := range entries {
		s = s.Add(e.Amount)
	}
	return s
}
