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

// SubscriptionRepository persists slot subscriptions and their monthly billing rows.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository constructs the repository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create stores a subscription.
func (r *SubscriptionRepository) Create(ctx context.Context, exec sqlx.ExtContext, sub *models.SlotSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if sub.Status == "" {
		sub.Status = models.SubscriptionStatusActive
	}
	const query = `
INSERT INTO slot_subscriptions (id, slot_id, status, period_start, period_end, cancelled_at, created_at)
VALUES (:id, :slot_id, :status, :period_start, :period_end, :cancelled_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, sub); err != nil {
		return classify(err, "insert slot subscription")
	}
	return nil
}

// CancelActiveBySlot cancels every ACTIVE subscription of a slot, closing its period.
func (r *SubscriptionRepository) CancelActiveBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string, at time.Time) (int64, error) {
	const query = `UPDATE slot_subscriptions SET status = 'CANCELLED', cancelled_at = $2, period_end = $2
WHERE slot_id = $1 AND status = 'ACTIVE'`
	res, err := r.exec(exec).ExecContext(ctx, query, slotID, at)
	if err != nil {
		return 0, classify(err, "cancel slot subscriptions")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, "cancel slot subscriptions rows affected")
	}
	return affected, nil
}

// IncrementExpected adds one expected lesson to the month's billing row of the slot's
// ACTIVE subscription, creating the row as PENDING when missing.
func (r *SubscriptionRepository) IncrementExpected(ctx context.Context, exec sqlx.ExtContext, slotID, month string) error {
	const query = `
INSERT INTO monthly_billings (id, subscription_id, month, expected_lessons, actual_lessons, status, created_at, updated_at)
SELECT $1, s.id, $3, 1, 0, 'PENDING', $4, $4 FROM slot_subscriptions s WHERE s.slot_id = $2 AND s.status = 'ACTIVE'
ON CONFLICT (subscription_id, month) DO UPDATE
SET expected_lessons = monthly_billings.expected_lessons + 1, updated_at = EXCLUDED.updated_at`
	if _, err := r.exec(exec).ExecContext(ctx, query, uuid.NewString(), slotID, month, time.Now().UTC()); err != nil {
		return classify(err, "increment expected lessons")
	}
	return nil
}

// IncrementActual records one delivered lesson for the slot's billing month.
func (r *SubscriptionRepository) IncrementActual(ctx context.Context, exec sqlx.ExtContext, slotID, month string) error {
	const query = `UPDATE monthly_billings b SET actual_lessons = b.actual_lessons + 1, updated_at = $3
FROM slot_subscriptions s WHERE b.subscription_id = s.id AND s.slot_id = $1 AND b.month = $2`
	if _, err := r.exec(exec).ExecContext(ctx, query, slotID, month, time.Now().UTC()); err != nil {
		return classify(err, "increment actual lessons")
	}
	return nil
}

// FindBilling returns the billing row of the slot's ACTIVE subscription for month, or
// nil when none exists.
func (r *SubscriptionRepository) FindBilling(ctx context.Context, exec sqlx.ExtContext, slotID, month string) (*models.MonthlyBilling, error) {
	const query = `SELECT b.id, b.subscription_id, b.month, b.expected_lessons, b.actual_lessons, b.status, b.created_at, b.updated_at
FROM monthly_billings b JOIN slot_subscriptions s ON s.id = b.subscription_id
WHERE s.slot_id = $1 AND s.status = 'ACTIVE' AND b.month = $2
ORDER BY b.created_at DESC LIMIT 1`
	var billing models.MonthlyBilling
	if err := sqlx.GetContext(ctx, r.exec(exec), &billing, query, slotID, month); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err, "find monthly billing")
	}
	return &billing, nil
}
