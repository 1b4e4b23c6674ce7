package dto

import (
	"time"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

// BookingRequest asks for a single lesson or, when IsRecurring, a weekly slot whose
// first occurrence is Date. Date is RFC3339 or a local "2006-01-02T15:04" wall-clock
// time interpreted in Timezone (the teacher's timezone when empty).
type BookingRequest struct {
	TeacherID        string `json:"teacherId" validate:"required"`
	StudentID        string `json:"studentId" validate:"required"`
	Date             string `json:"date" validate:"required"`
	Duration         int    `json:"duration" validate:"required,oneof=30 60"`
	Timezone         string `json:"timezone" validate:"omitempty,max=64"`
	IsRecurring      bool   `json:"isRecurring"`
	MonthlyRateCents int64  `json:"monthlyRateCents" validate:"omitempty,min=0"`
}

// SkippedOccurrence reports a recurring week that could not be materialized.
type SkippedOccurrence struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// RecurringBookingResult is returned when a recurring slot is booked.
type RecurringBookingResult struct {
	Slot    *models.RecurringSlot `json:"slot"`
	Lessons []models.Lesson       `json:"lessons"`
	Skipped []SkippedOccurrence   `json:"skipped"`
}

// CancelSlotRequest cancels a recurring slot from CancelDate (YYYY-MM-DD in the slot's
// timezone, or RFC3339) onward.
type CancelSlotRequest struct {
	CancelDate string `json:"cancelDate" validate:"required"`
	Reason     string `json:"reason" validate:"omitempty,max=500"`
}

// CancelSlotResult describes the outcome of a cancellation. AlreadyCancelled is set
// when the slot was cancelled by an earlier call; nothing was changed then.
type CancelSlotResult struct {
	Slot                   *models.RecurringSlot `json:"slot"`
	RefundCents            int64                 `json:"refundCents"`
	CancelledLessons       int64                 `json:"cancelledLessons"`
	CancelledSubscriptions int64                 `json:"cancelledSubscriptions"`
	AlreadyCancelled       bool                  `json:"alreadyCancelled"`
}
