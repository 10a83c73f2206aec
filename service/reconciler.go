package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/model"
)

// WebhookPayload is the gateway's callback body. order_id is the
// external id the gateway allocated at initiation.
type WebhookPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type ReconcileResult struct {
	Payment   *model.Payment
	Duplicate bool
	Ignored   bool
	notify    []Notification
}

// HandleWebhook reconciles a gateway callback against the payment and
// order state machines. Signature verification happens before anything
// is read or written; an unknown external id never creates a payment.
// Once the signature and payment lookup succeed the delivery is always
// acknowledged: duplicates and out-of-order statuses are recorded in
// the audit fields without mutating the payment.
func (s *PaymentService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*ReconcileResult, error) {
	if !s.gateway.VerifySignature(rawBody, signature) {
		s.logger.Warn("webhook signature verification failed")
		return nil, apperr.New(apperr.Unauthorized, "invalid webhook signature")
	}

	var payload WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "malformed webhook payload", err)
	}
	if payload.OrderID == "" || payload.Status == "" {
		return nil, apperr.New(apperr.Validation, "webhook payload missing order_id or status")
	}

	return s.reconcile(ctx, payload.OrderID, payload.Status, rawBody, true)
}

// reconcile applies one gateway-reported status to the stored payment.
// The payment row is locked FOR UPDATE so concurrent deliveries for the
// same external id serialize and each observes the prior outcome.
func (s *PaymentService) reconcile(ctx context.Context, externalOrderID, gatewayStatus string, raw []byte, viaWebhook bool) (*ReconcileResult, error) {
	target, err := mapGatewayStatus(gatewayStatus)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment model.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_order_id = ?", externalOrderID).
			First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Newf(apperr.NotFound, "no payment for gateway order %s", externalOrderID)
		}
		if err != nil {
			return apperr.Wrap(apperr.Internal, "load payment", err)
		}

		// Audit trail is recorded no matter how the delivery resolves.
		recordDelivery(&payment, raw, viaWebhook)
		result.Payment = &payment

		switch classifyDelivery(&payment, target) {
		case deliveryDuplicate:
			// Redelivery of a settled outcome: acknowledge, count the
			// attempt, change nothing else and notify nobody.
			result.Duplicate = true
			return saveWebhookAudit(tx, &payment, viaWebhook)
		case deliveryStale:
			// Out-of-order or conflicting delivery. The attempt is
			// recorded and acknowledged so the gateway stops
			// redelivering, but the stored status stands.
			result.Ignored = true
			return saveWebhookAudit(tx, &payment, viaWebhook)
		}

		payment.Status = target
		if target == model.PaymentStatusCompleted {
			now := time.Now()
			payment.CompletedAt = &now
		}
		if err := tx.Save(&payment).Error; err != nil {
			return apperr.Wrap(apperr.Internal, "update payment", err)
		}

		if target == model.PaymentStatusCompleted {
			if err := s.confirmOrder(tx, &payment, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Ignored {
		s.logger.Warn("stale gateway delivery recorded",
			zap.String("external_order_id", externalOrderID),
			zap.String("gateway_status", gatewayStatus),
			zap.String("payment_status", string(result.Payment.Status)))
		return result, nil
	}

	s.invalidatePaymentCaches(ctx, result.Payment)
	s.logger.Info("payment reconciled",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("external_order_id", externalOrderID),
		zap.String("status", string(result.Payment.Status)),
		zap.Bool("duplicate", result.Duplicate),
		zap.Int("webhook_attempts", result.Payment.WebhookAttempts))

	// Notifications go out only after the transaction committed, and
	// never for absorbed duplicates.
	for _, n := range result.notify {
		s.notifier.Notify(n)
	}
	return result, nil
}

// confirmOrder drives the linked order to confirmed in the same
// transaction as the payment mutation, but only from pending; a
// cancelled or already-progressed order is left alone.
func (s *PaymentService) confirmOrder(tx *gorm.DB, payment *model.Payment, result *ReconcileResult) error {
	var order model.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", payment.OrderID).Error
	if err != nil {
		return apperr.Wrap(apperr.Internal, "load order for confirmation", err)
	}

	if order.Status != model.OrderStatusPending {
		s.logger.Info("payment completed but order not confirmable",
			zap.String("order_id", order.ID.String()),
			zap.String("order_status", string(order.Status)))
		return nil
	}

	if err := applyOrderTransition(tx, &order, payment.CustomerID, model.OrderStatusConfirmed, "payment confirmed by gateway"); err != nil {
		return err
	}

	result.notify = append(result.notify, Notification{
		RecipientID: payment.CustomerID,
		Title:       "Payment received",
		Message:     fmt.Sprintf("Order #%s is confirmed", order.OrderNumber),
		Category:    "payment",
		Data:        map[string]interface{}{"order_id": order.ID.String(), "payment_id": payment.ID.String()},
	})
	if order.BusinessID != nil {
		var business model.Business
		if err := tx.First(&business, *order.BusinessID).Error; err == nil {
			result.notify = append(result.notify, Notification{
				RecipientID: business.OwnerID,
				Title:       "Order paid",
				Message:     fmt.Sprintf("Order #%s was paid and is confirmed", order.OrderNumber),
				Category:    "order_status",
				Data:        map[string]interface{}{"order_id": order.ID.String()},
			})
		}
	}
	return nil
}

type deliveryOutcome int

const (
	deliveryApply deliveryOutcome = iota
	deliveryDuplicate
	deliveryStale
)

// classifyDelivery decides how a gateway-reported status applies to the
// stored payment: apply it, absorb it as a duplicate of the already
// settled outcome, or record it without mutation because the transition
// is invalid.
func classifyDelivery(payment *model.Payment, target model.PaymentStatus) deliveryOutcome {
	if payment.Status == target && payment.IsTerminal() {
		return deliveryDuplicate
	}
	if validatePaymentTransition(payment.Status, target) != nil {
		return deliveryStale
	}
	return deliveryApply
}

// recordDelivery stamps the webhook audit fields. Poll-driven
// reconciliation (SyncStatus) skips it so webhook_attempts keeps
// counting actual gateway deliveries.
func recordDelivery(payment *model.Payment, raw []byte, viaWebhook bool) {
	if !viaWebhook {
		return
	}
	payment.WebhookAttempts++
	payment.WebhookReceived = true
	payment.WebhookData = datatypes.JSON(raw)
}

func saveWebhookAudit(tx *gorm.DB, payment *model.Payment, viaWebhook bool) error {
	if !viaWebhook {
		return nil
	}
	err := tx.Model(payment).Updates(map[string]interface{}{
		"webhook_attempts": payment.WebhookAttempts,
		"webhook_received": true,
		"webhook_data":     payment.WebhookData,
	}).Error
	if err != nil {
		return apperr.Wrap(apperr.Internal, "record webhook delivery", err)
	}
	return nil
}

func mapGatewayStatus(s string) (model.PaymentStatus, error) {
	switch s {
	case "processing":
		return model.PaymentStatusProcessing, nil
	case "completed":
		return model.PaymentStatusCompleted, nil
	case "failed":
		return model.PaymentStatusFailed, nil
	case "expired":
		return model.PaymentStatusExpired, nil
	default:
		return "", apperr.Newf(apperr.Validation, "unknown gateway status %q", s)
	}
}

// validatePaymentTransition enforces the payment lifecycle:
// pending -> processing -> completed | failed | expired, and
// completed -> refunded. Everything else is a conflict.
func validatePaymentTransition(from, to model.PaymentStatus) error {
	allowed := map[model.PaymentStatus][]model.PaymentStatus{
		model.PaymentStatusPending: {
			model.PaymentStatusProcessing,
			model.PaymentStatusCompleted,
			model.PaymentStatusFailed,
			model.PaymentStatusExpired,
		},
		model.PaymentStatusProcessing: {
			model.PaymentStatusCompleted,
			model.PaymentStatusFailed,
			model.PaymentStatusExpired,
		},
		model.PaymentStatusCompleted: {
			model.PaymentStatusRefunded,
		},
	}

	for _, s := range allowed[from] {
		if s == to {
			return nil
		}
	}
	return apperr.Newf(apperr.Conflict, "payment cannot move from %s to %s", from, to)
}
