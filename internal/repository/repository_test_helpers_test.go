package repository

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var lessonColumnNames = []string{"id", "teacher_id", "student_id", "starts_at", "ends_at", "duration_minutes", "status", "recurring_slot_id", "version", "notes", "homework", "created_at", "updated_at"}

var slotColumnNames = []string{"id", "teacher_id", "student_id", "day_of_week", "start_time", "duration_minutes", "timezone", "start_date", "monthly_rate_cents", "status", "cancelled_at", "cancel_reason", "refund_cents", "created_at", "updated_at"}
