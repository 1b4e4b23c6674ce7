package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

// BlockedTimeRepository persists one-off teacher unavailability.
type BlockedTimeRepository struct {
	db *sqlx.DB
}

// NewBlockedTimeRepository constructs the repository.
func NewBlockedTimeRepository(db *sqlx.DB) *BlockedTimeRepository {
	return &BlockedTimeRepository{db: db}
}

func (r *BlockedTimeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListOverlapping returns blocked ranges intersecting [from, to).
func (r *BlockedTimeRepository) ListOverlapping(ctx context.Context, exec sqlx.ExtContext, teacherID string, from, to time.Time) ([]models.BlockedTime, error) {
	const query = `SELECT id, teacher_id, start_time, end_time, reason, created_at
FROM blocked_times WHERE teacher_id = $1 AND start_time < $3 AND end_time > $2 ORDER BY start_time ASC`
	var blocked []models.BlockedTime
	if err := sqlx.SelectContext(ctx, r.exec(exec), &blocked, query, teacherID, from, to); err != nil {
		return nil, classify(err, "list blocked times")
	}
	return blocked, nil
}

// Create stores a blocked range.
func (r *BlockedTimeRepository) Create(ctx context.Context, exec sqlx.ExtContext, blocked *models.BlockedTime) error {
	if blocked.ID == "" {
		blocked.ID = uuid.NewString()
	}
	if blocked.CreatedAt.IsZero() {
		blocked.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO blocked_times (id, teacher_id, start_time, end_time, reason, created_at)
VALUES (:id, :teacher_id, :start_time, :end_time, :reason, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, blocked); err != nil {
		return classify(err, "insert blocked time")
	}
	return nil
}

// Delete removes a blocked range of the teacher. It reports whether a row was removed.
func (r *BlockedTimeRepository) Delete(ctx context.Context, exec sqlx.ExtContext, teacherID, id string) (bool, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM blocked_times WHERE id = $1 AND teacher_id = $2`, id, teacherID)
	if err != nil {
		return false, classify(err, "delete blocked time")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, classify(err, "delete blocked time rows affected")
	}
	return affected > 0, nil
}
