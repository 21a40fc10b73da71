package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))

	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "idx_reservation_user_promo" (SQLSTATE 23505)`)))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062 (23000): Duplicate entry '1-2' for key 'idx_reservation_user_promo'")))
	assert.True(t, IsDuplicateKeyErr(errors.New("constraint failed: UNIQUE constraint failed: pending_promotions.user_id, pending_promotions.promotion_id (2067)")))
}
