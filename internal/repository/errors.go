package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

// Postgres SQLSTATE codes the scheduler reacts to.
const (
	pqExclusionViolation    = "23P01"
	pqUniqueViolation       = "23505"
	pqSerializationFailure  = "40001"
	pqDeadlockDetected      = "40P01"
	pqAdminShutdown         = "57P01"
	pqTooManyConnections    = "53300"
	pqConnectionExceptionCl = "08"
)

// ConstraintError reports that a write was rejected by the overlap exclusion
// constraint or a unique index.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %s violated: %v", e.Constraint, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsConstraintViolation reports whether err came from a rejected overlapping or duplicate row.
func IsConstraintViolation(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

// classify converts driver errors into the repository's error vocabulary. Connection
// loss and serialization failures become TRANSIENT_STORE_ERROR so callers can retry them.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqExclusionViolation || pqErr.Code == pqUniqueViolation:
			return &ConstraintError{Constraint: pqErr.Constraint, Err: fmt.Errorf("%s: %w", op, err)}
		case pqErr.Code == pqSerializationFailure,
			pqErr.Code == pqDeadlockDetected,
			pqErr.Code == pqAdminShutdown,
			pqErr.Code == pqTooManyConnections,
			pqErr.Code.Class() == pqConnectionExceptionCl:
			return transient(err, op)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return transient(err, op)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func transient(err error, op string) error {
	return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, op)
}
