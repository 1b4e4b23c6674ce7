package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

func TestSubscriptionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubscriptionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slot_subscriptions")).WillReturnResult(sqlmock.NewResult(1, 1))

	sub := &models.SlotSubscription{SlotID: "slot-1", PeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.Create(context.Background(), nil, sub))
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryIncrementExpectedUpserts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubscriptionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (subscription_id, month) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "slot-1", "2025-01", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementExpected(context.Background(), nil, "slot-1", "2025-01"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryIncrementActual(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubscriptionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE monthly_billings b SET actual_lessons = b.actual_lessons + 1")).
		WithArgs("slot-1", "2025-01", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementActual(context.Background(), nil, "slot-1", "2025-01"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryCancelActiveBySlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubscriptionRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slot_subscriptions SET status = 'CANCELLED'")).
		WithArgs("slot-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.CancelActiveBySlot(context.Background(), nil, "slot-1", at)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryFindBilling(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubscriptionRepository(db)

	now := time.Now().UTC()
	cols := []string{"id", "subscription_id", "month", "expected_lessons", "actual_lessons", "status", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM monthly_billings b JOIN slot_subscriptions s")).
		WithArgs("slot-1", "2025-01").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("b-1", "sub-1", "2025-01", 4, 2, "PAID", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM monthly_billings b JOIN slot_subscriptions s")).
		WithArgs("slot-1", "2025-02").
		WillReturnError(sql.ErrNoRows)

	billing, err := repo.FindBilling(context.Background(), nil, "slot-1", "2025-01")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusPaid, billing.Status)
	assert.Equal(t, 4, billing.ExpectedLessons)

	billing, err = repo.FindBilling(context.Background(), nil, "slot-1", "2025-02")
	require.NoError(t, err)
	assert.Nil(t, billing)
	assert.NoError(t, mock.ExpectationsWereMet())
}
