package dto

import (
	"time"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

// AvailabilityWindowRequest is one weekly window in a replace request.
type AvailabilityWindowRequest struct {
	DayOfWeek *int   `json:"dayOfWeek" validate:"required,min=0,max=6"`
	StartTime string `json:"startTime" validate:"required,len=5"`
	EndTime   string `json:"endTime" validate:"required,len=5"`
	IsActive  *bool  `json:"isActive"`
}

// ReplaceAvailabilityRequest replaces a teacher's weekly availability.
type ReplaceAvailabilityRequest struct {
	Windows []AvailabilityWindowRequest `json:"windows" validate:"max=100,dive"`
}

// CreateBlockedTimeRequest blocks a concrete range. Times are RFC3339.
type CreateBlockedTimeRequest struct {
	StartTime time.Time `json:"startTime" validate:"required"`
	EndTime   time.Time `json:"endTime" validate:"required"`
	Reason    string    `json:"reason" validate:"omitempty,max=255"`
}

// OpenWindowsResponse lists the bookable windows of a teacher on a date.
type OpenWindowsResponse struct {
	TeacherID string          `json:"teacherId"`
	Date      string          `json:"date"`
	Timezone  string          `json:"timezone"`
	Windows   []models.Window `json:"windows"`
}
