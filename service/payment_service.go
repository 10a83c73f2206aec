package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/cache"
	"github.com/henryq1230/easydeals-backend/gateway"
	"github.com/henryq1230/easydeals-backend/model"
	"github.com/henryq1230/easydeals-backend/split"
)

type PaymentService struct {
	db       *gorm.DB
	gateway  gateway.Gateway
	split    split.Config
	expiry   time.Duration
	notifier Notifier
	cache    *cache.Cache
	logger   *zap.Logger
}

func NewPaymentService(db *gorm.DB, gw gateway.Gateway, splitCfg split.Config, expiry time.Duration, notifier Notifier, c *cache.Cache, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		db:       db,
		gateway:  gw,
		split:    splitCfg,
		expiry:   expiry,
		notifier: notifier,
		cache:    c,
		logger:   logger,
	}
}

// PaymentInitiation is what the client needs to complete a non-cash
// payment: where to send the customer and until when.
type PaymentInitiation struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	PaymentURL string    `json:"payment_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// InitiateForOrder loads the order and runs Initiate. Used by the
// standalone payment endpoint; order creation calls Initiate directly.
func (s *PaymentService) InitiateForOrder(ctx context.Context, actor *model.User, orderID uuid.UUID, method model.PaymentMethod, walletPhone string) (*PaymentInitiation, error) {
	var order model.Order
	if err := s.db.WithContext(ctx).Preload("Business").Preload("Customer").First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "order %s not found", orderID)
		}
		return nil, apperr.Wrap(apperr.Internal, "load order", err)
	}
	if order.CustomerID != actor.ID {
		return nil, apperr.New(apperr.Forbidden, "only the customer may pay for this order")
	}
	if method == model.PaymentMethodCash {
		return nil, apperr.New(apperr.Validation, "cash payments are settled at order creation")
	}
	if method == model.PaymentMethodWallet && walletPhone == "" {
		return nil, apperr.New(apperr.Validation, "wallet phone required for mobile_wallet payments")
	}
	return s.Initiate(ctx, actor, &order, method, walletPhone)
}

// Initiate creates a gateway payment for an order. The gateway call
// happens before any Payment row exists: a transport failure therefore
// leaves no partial state and the caller can retry. Only after the
// gateway allocated an external id are the Payment and its pending
// Commission rows written, in one transaction.
func (s *PaymentService) Initiate(ctx context.Context, customer *model.User, order *model.Order, method model.PaymentMethod, walletPhone string) (*PaymentInitiation, error) {
	var existing model.Payment
	err := s.db.WithContext(ctx).Where("order_id = ?", order.ID).First(&existing).Error
	switch {
	case err == nil:
		if existing.Status == model.PaymentStatusCompleted || existing.Status == model.PaymentStatusRefunded {
			return nil, apperr.Newf(apperr.Conflict, "order %s is already paid", order.OrderNumber)
		}
		return nil, apperr.Newf(apperr.Conflict, "order %s already has a payment in progress", order.OrderNumber)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.Wrap(apperr.Internal, "check existing payment", err)
	}

	splitInput, err := s.buildSplitInput(ctx, order)
	if err != nil {
		return nil, err
	}
	entries, err := split.Compute(s.split, *splitInput)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.expiry)
	resp, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Amount:      order.Total,
		Method:      method,
		Split:       entries,
		Customer: gateway.Customer{
			Name:  customer.FirstName + " " + customer.LastName,
			Email: customer.Email,
			Phone: customer.Phone,
		},
		WalletPhone: walletPhone,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, err
	}

	splitPayload, err := json.Marshal(entries)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "marshal split payload", err)
	}

	now := time.Now()
	payment := &model.Payment{
		OrderID:         order.ID,
		CustomerID:      customer.ID,
		Method:          method,
		Amount:          order.Total,
		Status:          model.PaymentStatusPending,
		ExternalOrderID: &resp.ExternalOrderID,
		RedirectURL:     resp.PaymentURL,
		WalletPhone:     walletPhone,
		SplitPayload:    datatypes.JSON(splitPayload),
		InitiatedAt:     &now,
		ExpiresAt:       &resp.ExpiresAt,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			return wrapPaymentCreateErr(order.OrderNumber, err)
		}
		return createCommissions(tx, payment, order, entries)
	})
	if err != nil {
		return nil, err
	}

	s.invalidatePaymentCaches(ctx, payment)
	s.logger.Info("payment initiated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("external_order_id", resp.ExternalOrderID),
		zap.String("method", string(method)))

	return &PaymentInitiation{
		PaymentID:  payment.ID,
		PaymentURL: resp.PaymentURL,
		ExpiresAt:  resp.ExpiresAt,
	}, nil
}

// completeCashPayment settles a cash order inside the order creation
// transaction: the Payment is born completed and the order confirms
// synchronously.
func (s *PaymentService) completeCashPayment(tx *gorm.DB, order *model.Order, customer *model.User) error {
	now := time.Now()
	payment := &model.Payment{
		OrderID:     order.ID,
		CustomerID:  customer.ID,
		Method:      model.PaymentMethodCash,
		Amount:      order.Total,
		Status:      model.PaymentStatusCompleted,
		InitiatedAt: &now,
		CompletedAt: &now,
	}
	if err := tx.Create(payment).Error; err != nil {
		return apperr.Wrap(apperr.Internal, "create cash payment", err)
	}
	return applyOrderTransition(tx, order, customer.ID, model.OrderStatusConfirmed, "cash payment received")
}

func (s *PaymentService) buildSplitInput(ctx context.Context, order *model.Order) (*split.Input, error) {
	in := &split.Input{
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
		DeliveryFee: order.DeliveryFee,
	}

	if order.Business != nil {
		p, err := s.lookupParticipant(ctx, order.Business.OwnerID)
		if err != nil {
			return nil, err
		}
		in.Business = p
	}
	if order.DriverID != nil {
		p, err := s.lookupParticipant(ctx, *order.DriverID)
		if err != nil {
			return nil, err
		}
		in.Driver = p
	}
	return in, nil
}

// lookupParticipant resolves a user's submerchant configuration, caching
// it briefly since it changes rarely but is read on every initiation.
func (s *PaymentService) lookupParticipant(ctx context.Context, userID uint) (*split.Participant, error) {
	cacheKey := fmt.Sprintf("submerchant:%d", userID)

	var sub model.Submerchant
	if !s.cache.GetJSON(ctx, cacheKey, &sub) {
		err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "load submerchant", err)
		}
		s.cache.SetJSON(ctx, cacheKey, sub, 5*time.Minute)
	}

	return &split.Participant{
		UserID:         sub.UserID,
		SubmerchantKey: sub.SubmerchantKey,
		CommissionRate: sub.CommissionPercentage,
		Active:         sub.IsActive,
		Verified:       sub.IsVerified,
	}, nil
}

// wrapPaymentCreateErr maps the unique-index violation on order_id to
// the same Conflict the pre-insert check produces, so two racing
// initiations both see 409.
func wrapPaymentCreateErr(orderNumber string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Newf(apperr.Conflict, "order %s already has a payment in progress", orderNumber)
	}
	return apperr.Wrap(apperr.Internal, "create payment", err)
}

func createCommissions(tx *gorm.DB, payment *model.Payment, order *model.Order, entries []split.Entry) error {
	for _, e := range entries {
		commission := model.Commission{
			PaymentID:      payment.ID,
			OrderID:        order.ID,
			CommissionType: e.Type,
			RecipientID:    e.RecipientID,
			SubmerchantKey: e.SubmerchantKey,
			Amount:         e.Amount,
			Percentage:     e.Percentage,
			Status:         model.CommissionStatusPending,
		}
		if err := tx.Create(&commission).Error; err != nil {
			return apperr.Wrap(apperr.Internal, "create commission", err)
		}
	}
	return nil
}

// Refund moves a completed payment to refunded. The order itself is not
// reverted; reopening an order is a manual administrative action.
func (s *PaymentService) Refund(ctx context.Context, actor *model.User, paymentID uuid.UUID, amount *decimal.Decimal, reason string) (*model.Payment, error) {
	var payment model.Payment
	if err := s.db.WithContext(ctx).Preload("Order.Business").First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "payment %s not found", paymentID)
		}
		return nil, apperr.Wrap(apperr.Internal, "load payment", err)
	}

	if !canRefund(actor, &payment) {
		return nil, apperr.New(apperr.Forbidden, "not allowed to refund this payment")
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, apperr.Newf(apperr.Conflict, "only completed payments can be refunded, payment is %s", payment.Status)
	}

	if payment.Method != model.PaymentMethodCash {
		if payment.ExternalOrderID == nil {
			return nil, apperr.New(apperr.Internal, "gateway payment missing external order id")
		}
		if _, err := s.gateway.Refund(ctx, *payment.ExternalOrderID, amount, reason); err != nil {
			return nil, err
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&payment).Update("status", model.PaymentStatusRefunded).Error; err != nil {
			return apperr.Wrap(apperr.Internal, "update payment status", err)
		}
		return tx.Model(&model.Commission{}).
			Where("payment_id = ? AND status = ?", payment.ID, model.CommissionStatusPending).
			Update("status", model.CommissionStatusReversed).Error
	})
	if err != nil {
		return nil, err
	}
	payment.Status = model.PaymentStatusRefunded

	s.invalidatePaymentCaches(ctx, &payment)
	s.logger.Info("payment refunded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", payment.OrderID.String()),
		zap.Uint("refunded_by", actor.ID))

	s.notifier.Notify(Notification{
		RecipientID: payment.CustomerID,
		Title:       "Payment refunded",
		Message:     fmt.Sprintf("Your payment for order #%s was refunded", payment.Order.OrderNumber),
		Category:    "payment",
		Data:        map[string]interface{}{"payment_id": payment.ID.String()},
	})
	return &payment, nil
}

func canRefund(actor *model.User, payment *model.Payment) bool {
	if actor.UserType == model.UserTypeAdmin {
		return true
	}
	return actor.UserType == model.UserTypeBusiness &&
		payment.Order.Business != nil &&
		payment.Order.Business.OwnerID == actor.ID
}

// SyncStatus polls the gateway and reconciles the payment exactly like a
// webhook delivery would. Admin-only escape hatch for lost webhooks.
func (s *PaymentService) SyncStatus(ctx context.Context, paymentID uuid.UUID) (*ReconcileResult, error) {
	var payment model.Payment
	if err := s.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "payment %s not found", paymentID)
		}
		return nil, apperr.Wrap(apperr.Internal, "load payment", err)
	}
	if payment.ExternalOrderID == nil {
		return nil, apperr.New(apperr.Validation, "payment has no gateway reference")
	}

	resp, err := s.gateway.GetStatus(ctx, *payment.ExternalOrderID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, *payment.ExternalOrderID, resp.Status, resp.Raw, false)
}

func (s *PaymentService) Get(ctx context.Context, actor *model.User, paymentID uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := s.db.WithContext(ctx).Preload("Order.Business").Preload("Commissions").First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "payment %s not found", paymentID)
		}
		return nil, apperr.Wrap(apperr.Internal, "load payment", err)
	}

	switch actor.UserType {
	case model.UserTypeAdmin:
	case model.UserTypeClient:
		if payment.CustomerID != actor.ID {
			return nil, apperr.New(apperr.Forbidden, "not allowed to view this payment")
		}
	case model.UserTypeBusiness:
		if payment.Order.Business == nil || payment.Order.Business.OwnerID != actor.ID {
			return nil, apperr.New(apperr.Forbidden, "not allowed to view this payment")
		}
	default:
		return nil, apperr.New(apperr.Forbidden, "not allowed to view this payment")
	}
	return &payment, nil
}

func (s *PaymentService) List(ctx context.Context, actor *model.User) ([]model.Payment, error) {
	cacheKey := fmt.Sprintf("payments:%d", actor.ID)
	if actor.UserType == model.UserTypeAdmin {
		cacheKey = "payments:all"
	}
	var cached []model.Payment
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached, nil
	}

	q := s.db.WithContext(ctx).Order("created_at DESC")
	switch actor.UserType {
	case model.UserTypeClient:
		q = q.Where("customer_id = ?", actor.ID)
	case model.UserTypeBusiness:
		q = q.Joins("JOIN orders ON orders.id = payments.order_id").
			Joins("JOIN businesses ON businesses.id = orders.business_id").
			Where("businesses.owner_id = ?", actor.ID)
	case model.UserTypeAdmin:
	default:
		return []model.Payment{}, nil
	}

	var payments []model.Payment
	if err := q.Find(&payments).Error; err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list payments", err)
	}
	s.cache.SetJSON(ctx, cacheKey, payments, 5*time.Minute)
	return payments, nil
}

type PaymentStats struct {
	Total     int64           `json:"total_payments"`
	Completed int64           `json:"completed_payments"`
	Pending   int64           `json:"pending_payments"`
	Failed    int64           `json:"failed_payments"`
	Refunded  int64           `json:"refunded_payments"`
	Amount    decimal.Decimal `json:"total_amount"`
}

func (s *PaymentService) Stats(ctx context.Context, actor *model.User) (*PaymentStats, error) {
	if actor.UserType != model.UserTypeAdmin && actor.UserType != model.UserTypeBusiness {
		return nil, apperr.New(apperr.Forbidden, "not allowed to view payment stats")
	}

	payments, err := s.List(ctx, actor)
	if err != nil {
		return nil, err
	}

	stats := &PaymentStats{Amount: decimal.Zero}
	for _, p := range payments {
		stats.Total++
		switch p.Status {
		case model.PaymentStatusCompleted:
			stats.Completed++
			stats.Amount = stats.Amount.Add(p.Amount)
		case model.PaymentStatusPending, model.PaymentStatusProcessing:
			stats.Pending++
		case model.PaymentStatusFailed, model.PaymentStatusExpired:
			stats.Failed++
		case model.PaymentStatusRefunded:
			stats.Refunded++
		}
	}
	return stats, nil
}

func (s *PaymentService) invalidatePaymentCaches(ctx context.Context, payment *model.Payment) {
	s.cache.Del(ctx, "payments:all", fmt.Sprintf("payments:%d", payment.CustomerID))
}
