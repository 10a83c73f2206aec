package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/henryq1230/easydeals-backend/model"
)

const PayoutTopic = "commissions.payout"

// PayoutResultEvent is published by the external payout worker after it
// executes (or fails to execute) a split transfer.
type PayoutResultEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		CommissionID string `json:"commission_id"`
		Status       string `json:"status"`
		PaidAt       string `json:"paid_at"`
	} `json:"data"`
}

// PayoutResultHandler advances Commission rows from pending to their
// payout outcome. Idempotent: a redelivered event for a commission
// already in that status is a no-op.
func PayoutResultHandler(db *gorm.DB, logger *zap.Logger) func([]byte) {
	return func(msg []byte) {
		var event PayoutResultEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			logger.Error("invalid payout event payload", zap.Error(err))
			return
		}

		commissionID, err := uuid.Parse(event.Data.CommissionID)
		if err != nil {
			logger.Error("invalid commission id in payout event",
				zap.String("commission_id", event.Data.CommissionID))
			return
		}

		status := model.CommissionStatus(event.Data.Status)
		switch status {
		case model.CommissionStatusProcessing, model.CommissionStatusCompleted,
			model.CommissionStatusFailed, model.CommissionStatusReversed:
		default:
			logger.Error("unknown commission status in payout event",
				zap.String("commission_id", event.Data.CommissionID),
				zap.String("status", event.Data.Status))
			return
		}

		updates := map[string]interface{}{"status": status}
		if status == model.CommissionStatusCompleted {
			paidAt := time.Now()
			if ts, err := time.Parse(time.RFC3339, event.Data.PaidAt); err == nil {
				paidAt = ts
			}
			updates["paid_at"] = &paidAt
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res := db.WithContext(ctx).Model(&model.Commission{}).
			Where("id = ? AND status != ?", commissionID, status).
			Updates(updates)
		if res.Error != nil {
			logger.Error("failed to update commission",
				zap.String("commission_id", commissionID.String()),
				zap.Error(res.Error))
			return
		}
		if res.RowsAffected == 0 {
			logger.Info("payout event already applied or commission missing",
				zap.String("commission_id", commissionID.String()))
			return
		}

		logger.Info("commission payout recorded",
			zap.String("commission_id", commissionID.String()),
			zap.String("status", string(status)))
	}
}
