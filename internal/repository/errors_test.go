package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

func TestClassifyConstraintViolations(t *testing.T) {
	for _, code := range []pq.ErrorCode{"23P01", "23505"} {
		err := classify(&pq.Error{Code: code, Constraint: "lessons_no_overlap"}, "insert lesson")

		var ce *ConstraintError
		assert.True(t, errors.As(err, &ce), string(code))
		assert.Equal(t, "lessons_no_overlap", ce.Constraint)
		assert.True(t, IsConstraintViolation(fmt.Errorf("wrapped: %w", err)))
		assert.False(t, appErrors.IsRetryable(err))
	}
}

func TestClassifyTransientErrors(t *testing.T) {
	cases := []error{
		&pq.Error{Code: "40001"},
		&pq.Error{Code: "08006"},
		&pq.Error{Code: "57P01"},
		driver.ErrBadConn,
		context.DeadlineExceeded,
	}
	for _, in := range cases {
		err := classify(in, "op")
		assert.True(t, appErrors.IsRetryable(err), "%v", in)
		assert.False(t, IsConstraintViolation(err))
	}
}

func TestClassifyOtherErrors(t *testing.T) {
	assert.Nil(t, classify(nil, "op"))

	err := classify(&pq.Error{Code: "42601"}, "select")
	assert.False(t, appErrors.IsRetryable(err))
	assert.False(t, IsConstraintViolation(err))
	assert.Contains(t, err.Error(), "select")
}
