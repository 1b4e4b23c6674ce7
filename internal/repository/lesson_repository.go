package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

const lessonColumns = `id, teacher_id, student_id, starts_at, ends_at, duration_minutes, status, recurring_slot_id, version, notes, homework, created_at, updated_at`

// LessonRepository persists lessons. Overlap between non-cancelled lessons of a teacher
// is rejected by the lessons_no_overlap exclusion constraint; duplicate recurring
// occurrences by the lessons_slot_occurrence unique index.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

func (r *LessonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

func prepareLesson(lesson *models.Lesson) {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	if lesson.Status == "" {
		lesson.Status = models.LessonStatusScheduled
	}
	if lesson.Version == 0 {
		lesson.Version = 1
	}
	lesson.EndsAt = lesson.StartsAt.Add(time.Duration(lesson.Duration) * time.Minute)
}

const insertLessonQuery = `
INSERT INTO lessons (id, teacher_id, student_id, starts_at, ends_at, duration_minutes, status, recurring_slot_id, version, notes, homework, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :starts_at, :ends_at, :duration_minutes, :status, :recurring_slot_id, :version, :notes, :homework, :created_at, :updated_at)`

// Insert stores a lesson. A racing overlapping insert surfaces as *ConstraintError.
func (r *LessonRepository) Insert(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	prepareLesson(lesson)
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), insertLessonQuery, lesson); err != nil {
		return classify(err, "insert lesson")
	}
	return nil
}

// InsertIfAbsent stores a lesson unless an overlapping or duplicate row already exists.
// It reports whether a row was written.
func (r *LessonRepository) InsertIfAbsent(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) (bool, error) {
	prepareLesson(lesson)
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), insertLessonQuery+`
ON CONFLICT DO NOTHING`, lesson)
	if err != nil {
		return false, classify(err, "insert lesson if absent")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, classify(err, "insert lesson rows affected")
	}
	return affected > 0, nil
}

// FindOverlapping returns the teacher's non-cancelled lessons intersecting [start, end).
func (r *LessonRepository) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, teacherID string, start, end time.Time) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons
WHERE teacher_id = $1 AND status <> 'CANCELLED' AND starts_at < $3 AND ends_at > $2 ORDER BY starts_at ASC`
	var lessons []models.Lesson
	if err := sqlx.SelectContext(ctx, r.exec(exec), &lessons, query, teacherID, start, end); err != nil {
		return nil, classify(err, "find overlapping lessons")
	}
	return lessons, nil
}

// FindByID returns a lesson or sql.ErrNoRows.
func (r *LessonRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(err, "find lesson")
	}
	return &lesson, nil
}

// ListSlotOccurrences returns the start instants of every lesson, in any status, that a
// recurring slot already materialized within [from, to).
func (r *LessonRepository) ListSlotOccurrences(ctx context.Context, exec sqlx.ExtContext, teacherID, slotID string, from, to time.Time) ([]time.Time, error) {
	const query = `SELECT starts_at FROM lessons
WHERE teacher_id = $1 AND recurring_slot_id = $2 AND starts_at >= $3 AND starts_at < $4 ORDER BY starts_at ASC`
	var starts []time.Time
	if err := sqlx.SelectContext(ctx, r.exec(exec), &starts, query, teacherID, slotID, from, to); err != nil {
		return nil, classify(err, "list slot occurrences")
	}
	return starts, nil
}

// FindSlotOccurrence returns the lesson a recurring slot materialized at start, or
// sql.ErrNoRows.
func (r *LessonRepository) FindSlotOccurrence(ctx context.Context, exec sqlx.ExtContext, teacherID, slotID string, start time.Time) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons
WHERE teacher_id = $1 AND recurring_slot_id = $2 AND starts_at = $3`
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson, query, teacherID, slotID, start); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(err, "find slot occurrence")
	}
	return &lesson, nil
}

// UpdateOptimistic applies patch only when the stored version equals expectedVersion,
// bumping the version by one. sql.ErrNoRows means no row matched id and version.
func (r *LessonRepository) UpdateOptimistic(ctx context.Context, exec sqlx.ExtContext, id string, expectedVersion int, patch models.LessonPatch) (*models.Lesson, error) {
	sets := []string{"version = version + 1", "updated_at = $3"}
	args := []interface{}{id, expectedVersion, time.Now().UTC()}
	if patch.Notes != nil {
		args = append(args, *patch.Notes)
		sets = append(sets, fmt.Sprintf("notes = $%d", len(args)))
	}
	if patch.Homework != nil {
		args = append(args, *patch.Homework)
		sets = append(sets, fmt.Sprintf("homework = $%d", len(args)))
	}
	if patch.Status != nil {
		args = append(args, string(*patch.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `UPDATE lessons SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 AND version = $2 RETURNING ` + lessonColumns
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(err, "update lesson")
	}
	return &lesson, nil
}

// CancelFutureBySlot cancels the SCHEDULED lessons of a slot starting at or after from.
func (r *LessonRepository) CancelFutureBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string, from time.Time) (int64, error) {
	const query = `UPDATE lessons SET status = 'CANCELLED', version = version + 1, updated_at = $3
WHERE recurring_slot_id = $1 AND status = 'SCHEDULED' AND starts_at >= $2`
	res, err := r.exec(exec).ExecContext(ctx, query, slotID, from, time.Now().UTC())
	if err != nil {
		return 0, classify(err, "cancel slot lessons")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, "cancel slot lessons rows affected")
	}
	return affected, nil
}

// ListByTeacher returns the teacher's lessons matching the filter ordered by start.
func (r *LessonRepository) ListByTeacher(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	conditions := []string{"teacher_id = $1"}
	args := []interface{}{filter.TeacherID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("starts_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("starts_at < $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE %s ORDER BY starts_at ASC LIMIT %d`, lessonColumns, strings.Join(conditions, " AND "), limit)

	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, classify(err, "list teacher lessons")
	}
	return lessons, nil
}
