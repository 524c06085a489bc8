package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/psecars/merch-backend/pkg/db"
	"github.com/psecars/merch-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FetchUnpublished returns the oldest unpublished rows that still have attempts left.
// Inside a Postgres transaction the rows are locked and rows locked by another
// publisher are skipped.
func (r *Repository) FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	q := dbpkg.ForUpdateSkipLocked(r.db.WithContext(ctx)).
		Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	err := q.Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at":    at,
			"last_attempt_at": at,
			"last_error":      nil,
		}).Error
}

// MarkFailed counts one failed attempt made at the given time.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, err error, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":      models.OutboxErrorText(err),
			"last_attempt_at": at,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
		}).Error
}

// DeletePublishedBefore removes up to limit published rows older than cutoff,
// oldest first. A non-positive limit removes every match.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	conn := tx.WithContext(ctx)
	expired := "published_at IS NOT NULL AND published_at < ?"
	if limit <= 0 {
		res := conn.Where(expired, cutoff).Delete(&models.OutboxEvent{})
		return res.RowsAffected, res.Error
	}
	batch := conn.Model(&models.OutboxEvent{}).
		Select("id").
		Where(expired, cutoff).
		Order("published_at").
		Limit(limit)
	res := conn.Where("id IN (?)", batch).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
