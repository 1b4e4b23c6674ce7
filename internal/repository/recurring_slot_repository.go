package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

const slotColumns = `id, teacher_id, student_id, day_of_week, start_time, duration_minutes, timezone, start_date, monthly_rate_cents, status, cancelled_at, cancel_reason, refund_cents, created_at, updated_at`

// RecurringSlotRepository persists weekly recurring commitments.
type RecurringSlotRepository struct {
	db *sqlx.DB
}

// NewRecurringSlotRepository constructs the repository.
func NewRecurringSlotRepository(db *sqlx.DB) *RecurringSlotRepository {
	return &RecurringSlotRepository{db: db}
}

func (r *RecurringSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create stores a new slot. An ACTIVE slot overlapping another ACTIVE slot of the same
// teacher and weekday surfaces as *ConstraintError.
func (r *RecurringSlotRepository) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.RecurringSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
	if slot.Status == "" {
		slot.Status = models.SlotStatusActive
	}
	const query = `
INSERT INTO recurring_slots (id, teacher_id, student_id, day_of_week, start_time, duration_minutes, timezone, start_date, monthly_rate_cents, status, cancelled_at, cancel_reason, refund_cents, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :day_of_week, :start_time, :duration_minutes, :timezone, :start_date, :monthly_rate_cents, :status, :cancelled_at, :cancel_reason, :refund_cents, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return classify(err, "insert recurring slot")
	}
	return nil
}

// FindByID returns a slot or sql.ErrNoRows.
func (r *RecurringSlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error) {
	return r.find(ctx, exec, `SELECT `+slotColumns+` FROM recurring_slots WHERE id = $1`, id)
}

// FindByIDForUpdate locks the slot row for the rest of the transaction so concurrent
// cancellations serialize.
func (r *RecurringSlotRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error) {
	return r.find(ctx, exec, `SELECT `+slotColumns+` FROM recurring_slots WHERE id = $1 FOR UPDATE`, id)
}

func (r *RecurringSlotRepository) find(ctx context.Context, exec sqlx.ExtContext, query, id string) (*models.RecurringSlot, error) {
	var slot models.RecurringSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(err, "find recurring slot")
	}
	return &slot, nil
}

// ListActive returns every ACTIVE slot grouped by teacher.
func (r *RecurringSlotRepository) ListActive(ctx context.Context) ([]models.RecurringSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM recurring_slots WHERE status = 'ACTIVE' ORDER BY teacher_id ASC, start_date ASC`
	var slots []models.RecurringSlot
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, classify(err, "list active recurring slots")
	}
	return slots, nil
}

// ListActiveByTeacherDay returns the teacher's ACTIVE slots on a weekday.
func (r *RecurringSlotRepository) ListActiveByTeacherDay(ctx context.Context, exec sqlx.ExtContext, teacherID string, dayOfWeek int) ([]models.RecurringSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM recurring_slots
WHERE teacher_id = $1 AND day_of_week = $2 AND status = 'ACTIVE' ORDER BY start_time ASC`
	var slots []models.RecurringSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, teacherID, dayOfWeek); err != nil {
		return nil, classify(err, "list teacher recurring slots")
	}
	return slots, nil
}

// MarkCancelled flips an ACTIVE slot to CANCELLED and records the refund.
func (r *RecurringSlotRepository) MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, cancelledAt time.Time, reason *string, refundCents int64) error {
	const query = `UPDATE recurring_slots
SET status = 'CANCELLED', cancelled_at = $2, cancel_reason = $3, refund_cents = $4, updated_at = $2
WHERE id = $1 AND status = 'ACTIVE'`
	res, err := r.exec(exec).ExecContext(ctx, query, id, cancelledAt, reason, refundCents)
	if err != nil {
		return classify(err, "cancel recurring slot")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err, "cancel recurring slot rows affected")
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
