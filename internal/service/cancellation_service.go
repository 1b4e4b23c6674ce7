package service

import (
	"time"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

// RefundInput is everything the refund calculation depends on.
type RefundInput struct {
	MonthlyRateCents int64
	// CancelDate is the first cancelled day, expressed in the slot's timezone.
	CancelDate time.Time
	// Billing is the cancel month's billing row of the active subscription, if any.
	Billing *models.MonthlyBilling
}

// CancellationService computes refunds for cancelled recurring slots.
type CancellationService struct{}

// NewCancellationService constructs the service.
func NewCancellationService() *CancellationService {
	return &CancellationService{}
}

// ComputeRefund returns the refund in cents for cancelling from in.CancelDate. Only a
// PAID month is refunded. The refund is the smaller of the share of days left in the
// calendar month (the cancel day included) and the share of the month's expected
// lessons not yet delivered; with no expected lessons recorded only the day share
// applies. Amounts are rounded down.
func (s *CancellationService) ComputeRefund(in RefundInput) int64 {
	if in.MonthlyRateCents <= 0 || in.Billing == nil || in.Billing.Status != models.BillingStatusPaid {
		return 0
	}

	y, m, d := in.CancelDate.Date()
	daysInMonth := time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
	remainingDays := daysInMonth - d + 1
	refund := in.MonthlyRateCents * int64(remainingDays) / int64(daysInMonth)

	expected := in.Billing.ExpectedLessons
	if expected > 0 {
		delivered := in.Billing.ActualLessons
		if delivered > expected {
			delivered = expected
		}
		if delivered < 0 {
			delivered = 0
		}
		byLessons := in.MonthlyRateCents * int64(expected-delivered) / int64(expected)
		if byLessons < refund {
			refund = byLessons
		}
	}
	return refund
}
