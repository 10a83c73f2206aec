package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderType string

const (
	OrderTypeDelivery  OrderType = "delivery"
	OrderTypeTransport OrderType = "transport"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusAssigned  OrderStatus = "assigned"
	OrderStatusPickedUp  OrderStatus = "picked_up"
	OrderStatusOnTheWay  OrderStatus = "on_the_way"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber string    `gorm:"size:20;uniqueIndex" json:"order_number"`

	CustomerID uint      `gorm:"index" json:"customer_id"`
	Customer   User      `gorm:"foreignKey:CustomerID" json:"-"`
	BusinessID *uint     `gorm:"index" json:"business_id"`
	Business   *Business `gorm:"foreignKey:BusinessID" json:"business,omitempty"`
	DriverID   *uint     `gorm:"index" json:"driver_id"`
	Driver     *User     `gorm:"foreignKey:DriverID" json:"-"`

	OrderType OrderType   `gorm:"size:20" json:"order_type"`
	Status    OrderStatus `gorm:"size:20;default:pending;index" json:"status"`

	PickupAddressID   *uint `json:"pickup_address_id"`
	DeliveryAddressID uint  `json:"delivery_address_id"`

	Subtotal    decimal.Decimal `gorm:"type:numeric(10,2)" json:"subtotal"`
	DeliveryFee decimal.Decimal `gorm:"type:numeric(8,2)" json:"delivery_fee"`
	Tax         decimal.Decimal `gorm:"type:numeric(8,2)" json:"tax"`
	Commission  decimal.Decimal `gorm:"type:numeric(8,2)" json:"commission"`
	Total       decimal.Decimal `gorm:"type:numeric(10,2)" json:"total"`

	Notes string `gorm:"type:text" json:"notes"`

	EstimatedDeliveryTime *time.Time `json:"estimated_delivery_time"`
	DeliveredAt           *time.Time `json:"delivered_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items         []OrderItem          `gorm:"constraint:OnDelete:CASCADE" json:"items,omitempty"`
	StatusHistory []OrderStatusHistory `gorm:"constraint:OnDelete:CASCADE" json:"status_history,omitempty"`
	Payment       *Payment             `gorm:"constraint:OnDelete:CASCADE" json:"payment,omitempty"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

type OrderItem struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID uuid.UUID `gorm:"type:uuid;index" json:"order_id"`

	ProductID uint    `json:"product_id"`
	Product   Product `gorm:"foreignKey:ProductID" json:"-"`

	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:numeric(8,2)" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"type:numeric(8,2)" json:"total_price"`

	SpecialInstructions string `gorm:"type:text" json:"special_instructions"`
}

// TotalPrice is derived, never accepted from clients.
func (i *OrderItem) BeforeSave(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	return nil
}

// OrderStatusHistory is append-only: one row per successful transition,
// written in the same transaction as the status mutation.
type OrderStatusHistory struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	OrderID uuid.UUID `gorm:"type:uuid;index" json:"order_id"`

	Status      OrderStatus `gorm:"size:20" json:"status"`
	ChangedByID uint        `json:"changed_by_id"`
	ChangedBy   User        `gorm:"foreignKey:ChangedByID" json:"-"`
	Notes       string      `gorm:"type:text" json:"notes"`

	Timestamp time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

type RatingType string

const (
	RatingTypeDriver   RatingType = "driver"
	RatingTypeBusiness RatingType = "business"
	RatingTypeCustomer RatingType = "customer"
)

type Rating struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	OrderID uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"order_id"`

	RatingType      RatingType `gorm:"size:20" json:"rating_type"`
	RaterID         uint       `json:"rater_id"`
	RatedUserID     *uint      `json:"rated_user_id"`
	RatedBusinessID *uint      `json:"rated_business_id"`

	Rating  int    `json:"rating"`
	Comment string `gorm:"type:text" json:"comment"`

	CreatedAt time.Time `json:"created_at"`
}
