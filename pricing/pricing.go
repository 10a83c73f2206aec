package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/model"
)

// Config carries the platform-wide rates. Injected, never ambient.
type Config struct {
	TaxRate            decimal.Decimal
	CommissionRate     decimal.Decimal
	DefaultDeliveryFee decimal.Decimal
}

type Item struct {
	ProductID uint
	Quantity  int
	UnitPrice decimal.Decimal
}

type Quote struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Tax         decimal.Decimal
	Commission  decimal.Decimal
	Total       decimal.Decimal
}

// Calculate prices an order. businessDeliveryFee overrides the platform
// default when the order belongs to a business; transport orders always
// use the default. Commission is informational and not added to Total.
func Calculate(cfg Config, orderType model.OrderType, items []Item, businessDeliveryFee *decimal.Decimal) (Quote, error) {
	if orderType == model.OrderTypeDelivery && len(items) == 0 {
		return Quote{}, apperr.New(apperr.Validation, "delivery order requires at least one item")
	}
	if orderType == model.OrderTypeTransport && len(items) > 0 {
		return Quote{}, apperr.New(apperr.Validation, "transport order cannot carry items")
	}

	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return Quote{}, apperr.Newf(apperr.Validation, "invalid quantity %d for product %d", it.Quantity, it.ProductID)
		}
		if it.UnitPrice.IsNegative() {
			return Quote{}, apperr.Newf(apperr.Validation, "negative unit price for product %d", it.ProductID)
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	deliveryFee := cfg.DefaultDeliveryFee
	if businessDeliveryFee != nil {
		deliveryFee = *businessDeliveryFee
	}

	tax := subtotal.Mul(cfg.TaxRate).Round(2)
	commission := subtotal.Mul(cfg.CommissionRate).Round(2)
	total := subtotal.Add(deliveryFee).Add(tax)

	return Quote{
		Subtotal:    subtotal,
		DeliveryFee: deliveryFee,
		Tax:         tax,
		Commission:  commission,
		Total:       total,
	}, nil
}
