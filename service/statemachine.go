package service

import (
	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/model"
)

// statusSequence is the nominal linear order lifecycle. Cancellation is
// reachable from any non-terminal state and is not part of the sequence.
var statusSequence = []model.OrderStatus{
	model.OrderStatusPending,
	model.OrderStatusConfirmed,
	model.OrderStatusPreparing,
	model.OrderStatusReady,
	model.OrderStatusAssigned,
	model.OrderStatusPickedUp,
	model.OrderStatusOnTheWay,
	model.OrderStatusDelivered,
}

var validStatuses = func() map[model.OrderStatus]bool {
	m := map[model.OrderStatus]bool{model.OrderStatusCancelled: true}
	for _, s := range statusSequence {
		m[s] = true
	}
	return m
}()

// roleTargets bounds which target statuses each role may request. Admins
// bypass the table entirely.
var roleTargets = map[model.UserType]map[model.OrderStatus]bool{
	model.UserTypeBusiness: {
		model.OrderStatusConfirmed: true,
		model.OrderStatusPreparing: true,
		model.OrderStatusReady:     true,
		model.OrderStatusCancelled: true,
	},
	model.UserTypeDriver: {
		model.OrderStatusPickedUp:  true,
		model.OrderStatusOnTheWay:  true,
		model.OrderStatusDelivered: true,
	},
	model.UserTypeClient: {
		model.OrderStatusCancelled: true,
	},
}

// StateMachine validates order status transitions. StrictSequence
// additionally enforces forward adjacency along the nominal lifecycle;
// it defaults to off, matching the role-table-only policy the platform
// launched with.
type StateMachine struct {
	StrictSequence bool
}

// Authorize checks a requested transition for the acting user without
// mutating anything. It returns nil when the transition may proceed.
func (m StateMachine) Authorize(actor *model.User, order *model.Order, target model.OrderStatus) error {
	if !validStatuses[target] {
		return apperr.Newf(apperr.Validation, "invalid order status %q", target)
	}

	if order.IsTerminal() {
		return apperr.Newf(apperr.Conflict, "order %s is %s and accepts no further transitions", order.OrderNumber, order.Status)
	}

	if err := m.authorizeRole(actor, order, target); err != nil {
		return err
	}

	if m.StrictSequence && target != model.OrderStatusCancelled {
		if !isNextInSequence(order.Status, target) {
			return apperr.Newf(apperr.Conflict, "cannot move order %s from %s to %s", order.OrderNumber, order.Status, target)
		}
	}
	return nil
}

func (m StateMachine) authorizeRole(actor *model.User, order *model.Order, target model.OrderStatus) error {
	if actor.UserType == model.UserTypeAdmin {
		return nil
	}

	allowed := roleTargets[actor.UserType]
	if allowed == nil || !allowed[target] {
		return apperr.Newf(apperr.Forbidden, "role %s may not set status %s", actor.UserType, target)
	}

	// The role table only applies to the actor attached to this order.
	switch actor.UserType {
	case model.UserTypeBusiness:
		if order.Business == nil || order.Business.OwnerID != actor.ID {
			return apperr.New(apperr.Forbidden, "not the owner of this order's business")
		}
	case model.UserTypeDriver:
		if order.DriverID == nil || *order.DriverID != actor.ID {
			return apperr.New(apperr.Forbidden, "not the driver assigned to this order")
		}
	case model.UserTypeClient:
		if order.CustomerID != actor.ID {
			return apperr.New(apperr.Forbidden, "not the customer of this order")
		}
	}
	return nil
}

func isNextInSequence(from, to model.OrderStatus) bool {
	for i, s := range statusSequence {
		if s == from {
			return i+1 < len(statusSequence) && statusSequence[i+1] == to
		}
	}
	return false
}
