package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

// TeacherRepository reads teacher booking settings and the teacher/student roster.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

func (r *TeacherRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetSettings returns the teacher's booking settings. sql.ErrNoRows means the teacher is unknown.
func (r *TeacherRepository) GetSettings(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.TeacherSettings, error) {
	const query = `SELECT teacher_id, timezone, booking_horizon_days, min_notice_minutes
FROM teacher_settings WHERE teacher_id = $1`
	var settings models.TeacherSettings
	if err := sqlx.GetContext(ctx, r.exec(exec), &settings, query, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(err, "get teacher settings")
	}
	return &settings, nil
}

// IsRostered reports whether the student is an active student of the teacher.
func (r *TeacherRepository) IsRostered(ctx context.Context, exec sqlx.ExtContext, teacherID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM teacher_students WHERE teacher_id = $1 AND student_id = $2 AND active = TRUE)`
	var ok bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &ok, query, teacherID, studentID); err != nil {
		return false, classify(err, "check teacher roster")
	}
	return ok, nil
}
