package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/model"
)

func uintPtr(v uint) *uint { return &v }

func testOrder(status model.OrderStatus) *model.Order {
	return &model.Order{
		OrderNumber: "TEST0001",
		CustomerID:  1,
		BusinessID:  uintPtr(5),
		Business:    &model.Business{ID: 5, OwnerID: 2},
		DriverID:    uintPtr(3),
		Status:      status,
	}
}

var (
	admin    = &model.User{ID: 9, UserType: model.UserTypeAdmin}
	owner    = &model.User{ID: 2, UserType: model.UserTypeBusiness}
	driver   = &model.User{ID: 3, UserType: model.UserTypeDriver}
	customer = &model.User{ID: 1, UserType: model.UserTypeClient}
	stranger = &model.User{ID: 99, UserType: model.UserTypeClient}
)

func TestAuthorize_RoleTable(t *testing.T) {
	m := StateMachine{}

	tests := []struct {
		name     string
		actor    *model.User
		from     model.OrderStatus
		target   model.OrderStatus
		wantKind apperr.Kind
	}{
		{"admin any target", admin, model.OrderStatusPending, model.OrderStatusDelivered, 0},
		{"admin cancel", admin, model.OrderStatusOnTheWay, model.OrderStatusCancelled, 0},
		{"owner confirms", owner, model.OrderStatusPending, model.OrderStatusConfirmed, 0},
		{"owner prepares", owner, model.OrderStatusConfirmed, model.OrderStatusPreparing, 0},
		{"owner readies", owner, model.OrderStatusPreparing, model.OrderStatusReady, 0},
		{"owner cancels", owner, model.OrderStatusPending, model.OrderStatusCancelled, 0},
		{"owner cannot mark picked up", owner, model.OrderStatusReady, model.OrderStatusPickedUp, apperr.Forbidden},
		{"driver picks up", driver, model.OrderStatusAssigned, model.OrderStatusPickedUp, 0},
		{"driver on the way", driver, model.OrderStatusPickedUp, model.OrderStatusOnTheWay, 0},
		{"driver delivers", driver, model.OrderStatusOnTheWay, model.OrderStatusDelivered, 0},
		{"driver cannot confirm", driver, model.OrderStatusPending, model.OrderStatusConfirmed, apperr.Forbidden},
		{"customer cancels", customer, model.OrderStatusPending, model.OrderStatusCancelled, 0},
		{"customer cannot confirm", customer, model.OrderStatusPending, model.OrderStatusConfirmed, apperr.Forbidden},
		{"stranger cannot cancel", stranger, model.OrderStatusPending, model.OrderStatusCancelled, apperr.Forbidden},
		{"unknown status", admin, model.OrderStatusPending, model.OrderStatus("shipped"), apperr.Validation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Authorize(tt.actor, testOrder(tt.from), tt.target)
			if tt.wantKind == 0 {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			}
		})
	}
}

// Terminal orders accept no further transitions, from any role.
func TestAuthorize_TerminalStates(t *testing.T) {
	m := StateMachine{}
	actors := []*model.User{admin, owner, driver, customer}
	targets := []model.OrderStatus{
		model.OrderStatusPending, model.OrderStatusConfirmed, model.OrderStatusPreparing,
		model.OrderStatusReady, model.OrderStatusAssigned, model.OrderStatusPickedUp,
		model.OrderStatusOnTheWay, model.OrderStatusDelivered, model.OrderStatusCancelled,
	}

	for _, terminal := range []model.OrderStatus{model.OrderStatusDelivered, model.OrderStatusCancelled} {
		for _, actor := range actors {
			for _, target := range targets {
				err := m.Authorize(actor, testOrder(terminal), target)
				require.Error(t, err, "from=%s actor=%s target=%s", terminal, actor.UserType, target)
				assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
			}
		}
	}
}

// Ownership binds the role table to the specific order: a business
// owner of some other business gets Forbidden, not the table's verdict.
func TestAuthorize_OwnershipChecks(t *testing.T) {
	m := StateMachine{}

	otherOwner := &model.User{ID: 77, UserType: model.UserTypeBusiness}
	otherDriver := &model.User{ID: 78, UserType: model.UserTypeDriver}

	err := m.Authorize(otherOwner, testOrder(model.OrderStatusPending), model.OrderStatusConfirmed)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	err = m.Authorize(otherDriver, testOrder(model.OrderStatusAssigned), model.OrderStatusPickedUp)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	unassigned := testOrder(model.OrderStatusReady)
	unassigned.DriverID = nil
	err = m.Authorize(driver, unassigned, model.OrderStatusPickedUp)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestAuthorize_StrictSequence(t *testing.T) {
	m := StateMachine{StrictSequence: true}

	// Adjacent step passes.
	assert.NoError(t, m.Authorize(admin, testOrder(model.OrderStatusPending), model.OrderStatusConfirmed))

	// Skipping ahead is a conflict even for admins.
	err := m.Authorize(admin, testOrder(model.OrderStatusPending), model.OrderStatusDelivered)
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	// Cancellation bypasses the sequence.
	assert.NoError(t, m.Authorize(admin, testOrder(model.OrderStatusOnTheWay), model.OrderStatusCancelled))
}

func TestNewOrderNumber(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := newOrderNumber()
		require.Len(t, n, orderNumberLength)
		for _, ch := range n {
			assert.Contains(t, orderNumberAlphabet, string(ch))
		}
		seen[n] = true
	}
	// Not a uniqueness guarantee, but 100 draws from 36^8 should not
	// all collide; the real guarantee is the retry loop plus the
	// unique index.
	assert.Greater(t, len(seen), 90)
}
