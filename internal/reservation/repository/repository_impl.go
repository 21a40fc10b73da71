package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/reservation/domain"
	"github.com/pillstack/backoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reservation *domain.Reservation) error {
	return db.WithContext(ctx).Create(reservation).Error
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, reservations []*domain.Reservation, batchSize int) error {
	if len(reservations) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return db.WithContext(ctx).CreateInBatches(reservations, batchSize).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Reservation, error) {
	var reservation domain.Reservation
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *repo) FindOldestPending(ctx context.Context, db *gorm.DB, userID snowflake.ID, cutoff time.Time) (*domain.Reservation, error) {
	var reservation domain.Reservation
	stmt := db.WithContext(ctx).
		Where("user_id = ? AND applied_at IS NULL AND status IN ?", userID,
			[]domain.Status{domain.StatusReserved, domain.StatusSelected})
	if !cutoff.IsZero() {
		stmt = stmt.Where("created_at >= ?", cutoff)
	}
	err := stmt.
		Order("created_at asc, id asc").
		First(&reservation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *repo) HasPending(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("user_id = ? AND applied_at IS NULL AND status IN ?", userID,
			[]domain.Status{domain.StatusReserved, domain.StatusSelected}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindExistingUserIDs(ctx context.Context, db *gorm.DB, promotionID snowflake.ID, userIDs []snowflake.ID) ([]snowflake.ID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("promotion_id = ? AND user_id IN ?", promotionID, userIDs).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID snowflake.ID, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE pending_promotions
		 SET status = ?, applied_at = ?, payment_id = ?, updated_at = ?
		 WHERE id = ? AND applied_at IS NULL AND status IN (?, ?)`,
		domain.StatusApplied, at, paymentID, at,
		id, domain.StatusReserved, domain.StatusSelected,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE pending_promotions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND applied_at IS NULL AND status IN (?, ?)`,
		domain.StatusCancelled, at,
		id, domain.StatusReserved, domain.StatusSelected,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) TouchPending(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE pending_promotions
		 SET updated_at = ?
		 WHERE id = ? AND applied_at IS NULL AND status IN (?, ?)`,
		at, id, domain.StatusReserved, domain.StatusSelected,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB) ([]domain.PendingRow, error) {
	var rows []domain.PendingRow
	err := db.WithContext(ctx).Raw(
		`SELECT pp.*,
		        u.pharmacy_name, u.pharmacist_name, u.business_number,
		        sp.promotion_name, sp.code AS promotion_code
		 FROM pending_promotions pp
		 JOIN users u ON u.id = pp.user_id
		 JOIN subscription_promotions sp ON sp.id = pp.promotion_id
		 WHERE pp.applied_at IS NULL AND pp.status IN (?, ?)
		 ORDER BY pp.created_at DESC`,
		domain.StatusReserved, domain.StatusSelected,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListApplied(ctx context.Context, db *gorm.DB, cursor *pagination.Cursor, limit int) ([]*domain.AppliedRow, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT pp.*,
	        u.pharmacy_name, u.business_number,
	        sp.promotion_name, sp.code AS promotion_code,
	        p.amount AS payment_amount, p.approved_at AS payment_at
	 FROM pending_promotions pp
	 JOIN users u ON u.id = pp.user_id
	 JOIN subscription_promotions sp ON sp.id = pp.promotion_id
	 LEFT JOIN billing_payments p ON p.id = pp.payment_id
	 WHERE pp.applied_at IS NOT NULL`
	args := []any{}

	if cursor != nil && cursor.CreatedAt != "" && cursor.ID != "" {
		at, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}
		query += ` AND (pp.applied_at < ? OR (pp.applied_at = ? AND pp.id < ?))`
		args = append(args, at, at, id)
	}

	query += ` ORDER BY pp.applied_at DESC, pp.id DESC LIMIT ?`
	args = append(args, limit+1)

	var rows []*domain.AppliedRow
	err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
