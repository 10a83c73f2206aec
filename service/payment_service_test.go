package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/henryq1230/easydeals-backend/apperr"
)

// Two racing initiations both pass the pre-insert check; the loser hits
// the order_id unique index and must surface the same Conflict.
func TestWrapPaymentCreateErr(t *testing.T) {
	err := wrapPaymentCreateErr("AB12CD34", gorm.ErrDuplicatedKey)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	err = wrapPaymentCreateErr("AB12CD34", errors.New("connection reset"))
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}
