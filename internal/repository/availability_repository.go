package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

// AvailabilityRepository persists recurring weekly teacher availability.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByTeacher returns all weekly windows of a teacher ordered by day and start time.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) ([]models.TeacherAvailability, error) {
	const query = `SELECT id, teacher_id, day_of_week, start_time, end_time, is_active, created_at, updated_at
FROM teacher_availability WHERE teacher_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var windows []models.TeacherAvailability
	if err := sqlx.SelectContext(ctx, r.exec(exec), &windows, query, teacherID); err != nil {
		return nil, classify(err, "list teacher availability")
	}
	return windows, nil
}

// ReplaceForTeacher swaps the complete weekly configuration of a teacher.
func (r *AvailabilityRepository) ReplaceForTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string, windows []models.TeacherAvailability) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM teacher_availability WHERE teacher_id = $1`, teacherID); err != nil {
		return classify(err, "clear teacher availability")
	}

	const insert = `
INSERT INTO teacher_availability (id, teacher_id, day_of_week, start_time, end_time, is_active, created_at, updated_at)
VALUES (:id, :teacher_id, :day_of_week, :start_time, :end_time, :is_active, :created_at, :updated_at)`

	now := time.Now().UTC()
	for i := range windows {
		w := &windows[i]
		if w.ID == "" {
			w.ID = uuid.NewString()
		}
		w.TeacherID = teacherID
		w.CreatedAt = now
		w.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, insert, w); err != nil {
			return classify(err, "insert teacher availability")
		}
	}
	return nil
}
