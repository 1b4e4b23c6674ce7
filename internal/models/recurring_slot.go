package models

import "time"

// SlotStatus enumerates recurring slot states.
type SlotStatus string

const (
	SlotStatusActive    SlotStatus = "ACTIVE"
	SlotStatusCancelled SlotStatus = "CANCELLED"
)

// RecurringSlot is an indefinite weekly commitment between a teacher and a student.
// StartDate is the first occurrence; later occurrences repeat weekly at the same local
// wall-clock time in Timezone.
type RecurringSlot struct {
	ID               string     `db:"id" json:"id"`
	TeacherID        string     `db:"teacher_id" json:"teacher_id"`
	StudentID        string     `db:"student_id" json:"student_id"`
	DayOfWeek        int        `db:"day_of_week" json:"day_of_week"`
	StartTime        string     `db:"start_time" json:"start_time"`
	Duration         int        `db:"duration_minutes" json:"duration"`
	Timezone         string     `db:"timezone" json:"timezone"`
	StartDate        time.Time  `db:"start_date" json:"start_date"`
	MonthlyRateCents int64      `db:"monthly_rate_cents" json:"monthly_rate_cents"`
	Status           SlotStatus `db:"status" json:"status"`
	CancelledAt      *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason     *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	RefundCents      int64      `db:"refund_cents" json:"refund_cents"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Location returns the slot's timezone, UTC when unknown.
func (s RecurringSlot) Location() *time.Location {
	if loc, err := time.LoadLocation(s.Timezone); err == nil && s.Timezone != "" {
		return loc
	}
	return time.UTC
}

// SubscriptionStatus enumerates slot subscription states.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// SlotSubscription is the billing agreement attached to a recurring slot.
type SlotSubscription struct {
	ID          string             `db:"id" json:"id"`
	SlotID      string             `db:"slot_id" json:"slot_id"`
	Status      SubscriptionStatus `db:"status" json:"status"`
	PeriodStart time.Time          `db:"period_start" json:"period_start"`
	PeriodEnd   *time.Time         `db:"period_end" json:"period_end,omitempty"`
	CancelledAt *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// BillingStatus enumerates monthly billing states.
type BillingStatus string

const (
	BillingStatusPending BillingStatus = "PENDING"
	BillingStatusPaid    BillingStatus = "PAID"
	BillingStatusOverdue BillingStatus = "OVERDUE"
)

// MonthlyBilling tracks expected vs delivered lessons for one subscription month.
// Month is formatted YYYY-MM.
type MonthlyBilling struct {
	ID              string        `db:"id" json:"id"`
	SubscriptionID  string        `db:"subscription_id" json:"subscription_id"`
	Month           string        `db:"month" json:"month"`
	ExpectedLessons int           `db:"expected_lessons" json:"expected_lessons"`
	ActualLessons   int           `db:"actual_lessons" json:"actual_lessons"`
	Status          BillingStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// BillingMonth formats the billing cycle key for an instant in loc.
func BillingMonth(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01")
}
