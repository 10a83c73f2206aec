package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/cache"
	"github.com/henryq1230/easydeals-backend/model"
	"github.com/henryq1230/easydeals-backend/pricing"
)

const orderNumberMaxAttempts = 5

type OrderService struct {
	db       *gorm.DB
	payments *PaymentService
	machine  StateMachine
	pricing  pricing.Config
	notifier Notifier
	cache    *cache.Cache
	logger   *zap.Logger
}

func NewOrderService(db *gorm.DB, payments *PaymentService, machine StateMachine, pricingCfg pricing.Config, notifier Notifier, c *cache.Cache, logger *zap.Logger) *OrderService {
	return &OrderService{
		db:       db,
		payments: payments,
		machine:  machine,
		pricing:  pricingCfg,
		notifier: notifier,
		cache:    c,
		logger:   logger,
	}
}

type CreateOrderItemInput struct {
	ProductID           uint   `json:"product_id"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"special_instructions"`
}

type CreateOrderInput struct {
	OrderType         model.OrderType        `json:"order_type"`
	BusinessID        *uint                  `json:"business_id"`
	PickupAddressID   *uint                  `json:"pickup_address_id"`
	DeliveryAddressID uint                   `json:"delivery_address_id"`
	Items             []CreateOrderItemInput `json:"items"`
	Notes             string                 `json:"notes"`
	PaymentMethod     model.PaymentMethod    `json:"payment_method"`
	WalletPhone       string                 `json:"wallet_phone"`
}

// Create prices and persists a new order. For cash the payment completes
// and the order confirms in the same transaction; otherwise payment
// initiation runs after the order exists, so a gateway failure leaves a
// retryable pending order and no Payment row. The returned order is
// non-nil whenever it was persisted, even if initiation failed.
func (s *OrderService) Create(ctx context.Context, customer *model.User, in CreateOrderInput) (*model.Order, *PaymentInitiation, error) {
	switch in.PaymentMethod {
	case model.PaymentMethodCard, model.PaymentMethodCash:
	case model.PaymentMethodWallet:
		if in.WalletPhone == "" {
			return nil, nil, apperr.New(apperr.Validation, "wallet phone required for mobile_wallet payments")
		}
	default:
		return nil, nil, apperr.Newf(apperr.Validation, "unknown payment method %q", in.PaymentMethod)
	}

	var business *model.Business
	if in.BusinessID != nil {
		business = &model.Business{}
		if err := s.db.WithContext(ctx).First(business, *in.BusinessID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, apperr.Newf(apperr.NotFound, "business %d not found", *in.BusinessID)
			}
			return nil, nil, apperr.Wrap(apperr.Internal, "load business", err)
		}
	}
	if in.OrderType == model.OrderTypeDelivery && business == nil {
		return nil, nil, apperr.New(apperr.Validation, "delivery order requires a business")
	}

	if err := s.db.WithContext(ctx).First(&model.Address{}, in.DeliveryAddressID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.Newf(apperr.NotFound, "delivery address %d not found", in.DeliveryAddressID)
		}
		return nil, nil, apperr.Wrap(apperr.Internal, "load delivery address", err)
	}

	priceItems, orderItems, err := s.snapshotItems(ctx, business, in.Items)
	if err != nil {
		return nil, nil, err
	}

	var businessFee *decimal.Decimal
	if business != nil {
		fee := business.DeliveryFee
		businessFee = &fee
	}
	quote, err := pricing.Calculate(s.pricing, in.OrderType, priceItems, businessFee)
	if err != nil {
		return nil, nil, err
	}

	order := &model.Order{
		CustomerID:        customer.ID,
		BusinessID:        in.BusinessID,
		OrderType:         in.OrderType,
		Status:            model.OrderStatusPending,
		PickupAddressID:   in.PickupAddressID,
		DeliveryAddressID: in.DeliveryAddressID,
		Subtotal:          quote.Subtotal,
		DeliveryFee:       quote.DeliveryFee,
		Tax:               quote.Tax,
		Commission:        quote.Commission,
		Total:             quote.Total,
		Notes:             in.Notes,
		Items:             orderItems,
	}
	order.Business = business

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.generateOrderNumber(tx)
		if err != nil {
			return err
		}
		order.OrderNumber = number

		if err := tx.Create(order).Error; err != nil {
			return apperr.Wrap(apperr.Internal, "create order", err)
		}

		if in.PaymentMethod == model.PaymentMethodCash {
			return s.payments.completeCashPayment(tx, order, customer)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.invalidateOrderCaches(ctx, order)
	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(order.Status)),
		zap.String("total", order.Total.String()))

	if business != nil {
		s.notifier.Notify(Notification{
			RecipientID: business.OwnerID,
			Title:       "New order",
			Message:     fmt.Sprintf("Order #%s received", order.OrderNumber),
			Category:    "order_status",
			Data:        map[string]interface{}{"order_id": order.ID.String(), "status": order.Status},
		})
	}

	if in.PaymentMethod == model.PaymentMethodCash {
		return order, nil, nil
	}

	initiation, err := s.payments.Initiate(ctx, customer, order, in.PaymentMethod, in.WalletPhone)
	if err != nil {
		// The order stays pending; payment can be retried against it.
		s.logger.Error("payment initiation failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		return order, nil, err
	}
	return order, initiation, nil
}

func (s *OrderService) snapshotItems(ctx context.Context, business *model.Business, items []CreateOrderItemInput) ([]pricing.Item, []model.OrderItem, error) {
	priceItems := make([]pricing.Item, 0, len(items))
	orderItems := make([]model.OrderItem, 0, len(items))

	for _, it := range items {
		var product model.Product
		if err := s.db.WithContext(ctx).First(&product, it.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, apperr.Newf(apperr.NotFound, "product %d not found", it.ProductID)
			}
			return nil, nil, apperr.Wrap(apperr.Internal, "load product", err)
		}
		if business == nil || product.BusinessID != business.ID {
			return nil, nil, apperr.Newf(apperr.Validation, "product %d does not belong to this business", it.ProductID)
		}
		if !product.IsAvailable {
			return nil, nil, apperr.Newf(apperr.Validation, "product %d is not available", it.ProductID)
		}

		priceItems = append(priceItems, pricing.Item{
			ProductID: product.ID,
			Quantity:  it.Quantity,
			UnitPrice: product.Price,
		})
		orderItems = append(orderItems, model.OrderItem{
			ProductID:           product.ID,
			Quantity:            it.Quantity,
			UnitPrice:           product.Price,
			SpecialInstructions: it.SpecialInstructions,
		})
	}
	return priceItems, orderItems, nil
}

func (s *OrderService) generateOrderNumber(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < orderNumberMaxAttempts; attempt++ {
		number := newOrderNumber()
		var count int64
		if err := tx.Model(&model.Order{}).Where("order_number = ?", number).Count(&count).Error; err != nil {
			return "", apperr.Wrap(apperr.Internal, "check order number", err)
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", apperr.New(apperr.Internal, "could not allocate a unique order number")
}

// UpdateStatus runs one state-machine transition. The order row is
// locked for the duration so a racing webhook reconciliation observes a
// consistent state, and the history row commits atomically with the
// status change.
func (s *OrderService) UpdateStatus(ctx context.Context, actor *model.User, orderID uuid.UUID, target model.OrderStatus, notes string) (*model.Order, error) {
	var order model.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.NotFound, "order %s not found", orderID)
			}
			return apperr.Wrap(apperr.Internal, "load order", err)
		}
		if order.BusinessID != nil {
			order.Business = &model.Business{}
			if err := tx.First(order.Business, *order.BusinessID).Error; err != nil {
				return apperr.Wrap(apperr.Internal, "load order business", err)
			}
		}

		if err := s.machine.Authorize(actor, &order, target); err != nil {
			return err
		}
		return applyOrderTransition(tx, &order, actor.ID, target, notes)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateOrderCaches(ctx, &order)
	s.logger.Info("order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(target)),
		zap.Uint("changed_by", actor.ID))

	if actor.ID != order.CustomerID {
		s.notifier.Notify(Notification{
			RecipientID: order.CustomerID,
			Title:       "Order update",
			Message:     fmt.Sprintf("Order #%s is now %s", order.OrderNumber, target),
			Category:    "order_status",
			Data:        map[string]interface{}{"order_id": order.ID.String(), "status": target},
		})
	}
	return &order, nil
}

// applyOrderTransition mutates the order status and appends the single
// history row inside the caller's transaction. Partial application of
// the pair is a correctness violation, so both writes share tx.
func applyOrderTransition(tx *gorm.DB, order *model.Order, actorID uint, target model.OrderStatus, notes string) error {
	updates := map[string]interface{}{"status": target}
	if target == model.OrderStatusDelivered {
		now := time.Now()
		order.DeliveredAt = &now
		updates["delivered_at"] = &now
	}

	if err := tx.Model(order).Updates(updates).Error; err != nil {
		return apperr.Wrap(apperr.Internal, "update order status", err)
	}
	order.Status = target

	history := model.OrderStatusHistory{
		OrderID:     order.ID,
		Status:      target,
		ChangedByID: actorID,
		Notes:       notes,
	}
	if err := tx.Create(&history).Error; err != nil {
		return apperr.Wrap(apperr.Internal, "append status history", err)
	}
	return nil
}

type RateOrderInput struct {
	RatingType model.RatingType `json:"rating_type"`
	Rating     int              `json:"rating"`
	Comment    string           `json:"comment"`
}

func (s *OrderService) Rate(ctx context.Context, actor *model.User, orderID uuid.UUID, in RateOrderInput) (*model.Rating, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.New(apperr.Validation, "rating must be between 1 and 5")
	}

	var order model.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "order %s not found", orderID)
		}
		return nil, apperr.Wrap(apperr.Internal, "load order", err)
	}

	if order.Status != model.OrderStatusDelivered {
		return nil, apperr.New(apperr.Validation, "only delivered orders can be rated")
	}
	if order.CustomerID != actor.ID {
		return nil, apperr.New(apperr.Forbidden, "only the customer may rate this order")
	}

	rating := &model.Rating{
		OrderID:         order.ID,
		RatingType:      in.RatingType,
		RaterID:         actor.ID,
		RatedUserID:     order.DriverID,
		RatedBusinessID: order.BusinessID,
		Rating:          in.Rating,
		Comment:         in.Comment,
	}
	if err := s.db.WithContext(ctx).Create(rating).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.New(apperr.Conflict, "order already rated")
		}
		return nil, apperr.Wrap(apperr.Internal, "create rating", err)
	}
	return rating, nil
}

type OrderFilter struct {
	Status    model.OrderStatus
	OrderType model.OrderType
}

// List returns orders scoped to the actor's role, newest first.
func (s *OrderService) List(ctx context.Context, actor *model.User, filter OrderFilter) ([]model.Order, error) {
	cacheKey := ""
	if filter == (OrderFilter{}) {
		cacheKey = fmt.Sprintf("orders:%d", actor.ID)
		if actor.UserType == model.UserTypeAdmin {
			cacheKey = "orders:all"
		}
		var cached []model.Order
		if s.cache.GetJSON(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	q := s.db.WithContext(ctx).Preload("Items").Order("created_at DESC")
	switch actor.UserType {
	case model.UserTypeClient:
		q = q.Where("customer_id = ?", actor.ID)
	case model.UserTypeDriver:
		q = q.Where("driver_id = ?", actor.ID)
	case model.UserTypeBusiness:
		q = q.Joins("JOIN businesses ON businesses.id = orders.business_id").
			Where("businesses.owner_id = ?", actor.ID)
	case model.UserTypeAdmin:
	default:
		return []model.Order{}, nil
	}

	if filter.Status != "" {
		q = q.Where("orders.status = ?", filter.Status)
	}
	if filter.OrderType != "" {
		q = q.Where("orders.order_type = ?", filter.OrderType)
	}

	var orders []model.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list orders", err)
	}

	if cacheKey != "" {
		s.cache.SetJSON(ctx, cacheKey, orders, 5*time.Minute)
	}
	return orders, nil
}

func (s *OrderService) Get(ctx context.Context, actor *model.User, orderID uuid.UUID) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusHistory").
		Preload("Payment").
		Preload("Business").
		First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "order %s not found", orderID)
		}
		return nil, apperr.Wrap(apperr.Internal, "load order", err)
	}

	if !canViewOrder(actor, &order) {
		return nil, apperr.New(apperr.Forbidden, "not allowed to view this order")
	}
	return &order, nil
}

func canViewOrder(actor *model.User, order *model.Order) bool {
	switch actor.UserType {
	case model.UserTypeAdmin:
		return true
	case model.UserTypeClient:
		return order.CustomerID == actor.ID
	case model.UserTypeDriver:
		return order.DriverID != nil && *order.DriverID == actor.ID
	case model.UserTypeBusiness:
		return order.Business != nil && order.Business.OwnerID == actor.ID
	}
	return false
}

func (s *OrderService) invalidateOrderCaches(ctx context.Context, order *model.Order) {
	keys := []string{"orders:all", fmt.Sprintf("orders:%d", order.CustomerID)}
	if order.DriverID != nil {
		keys = append(keys, fmt.Sprintf("orders:%d", *order.DriverID))
	}
	if order.Business != nil {
		keys = append(keys, fmt.Sprintf("orders:%d", order.Business.OwnerID))
	}
	s.cache.Del(ctx, keys...)
}
