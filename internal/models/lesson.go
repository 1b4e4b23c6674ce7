package models

import "time"

// LessonStatus enumerates lesson lifecycle states.
type LessonStatus string

const (
	LessonStatusScheduled LessonStatus = "SCHEDULED"
	LessonStatusCompleted LessonStatus = "COMPLETED"
	LessonStatusCancelled LessonStatus = "CANCELLED"
)

// Valid reports whether the status is one of the known values.
func (s LessonStatus) Valid() bool {
	switch s {
	case LessonStatusScheduled, LessonStatusCompleted, LessonStatusCancelled:
		return true
	}
	return false
}

// Allowed lesson lengths in minutes.
const (
	LessonDurationShort = 30
	LessonDurationLong  = 60
)

// Lesson is a single booked session. EndsAt is persisted so the overlap exclusion
// constraint can index [StartsAt, EndsAt).
type Lesson struct {
	ID              string       `db:"id" json:"id"`
	TeacherID       string       `db:"teacher_id" json:"teacher_id"`
	StudentID       string       `db:"student_id" json:"student_id"`
	StartsAt        time.Time    `db:"starts_at" json:"date"`
	EndsAt          time.Time    `db:"ends_at" json:"ends_at"`
	Duration        int          `db:"duration_minutes" json:"duration"`
	Status          LessonStatus `db:"status" json:"status"`
	RecurringSlotID *string      `db:"recurring_slot_id" json:"recurring_slot_id,omitempty"`
	Version         int          `db:"version" json:"version"`
	Notes           string       `db:"notes" json:"notes"`
	Homework        string       `db:"homework" json:"homework"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// LessonPatch lists the fields an optimistic update may change.
type LessonPatch struct {
	Notes    *string
	Homework *string
	Status   *LessonStatus
}

// Empty reports whether the patch changes nothing.
func (p LessonPatch) Empty() bool {
	return p.Notes == nil && p.Homework == nil && p.Status == nil
}

// LessonFilter narrows lesson listings for a teacher.
type LessonFilter struct {
	TeacherID string
	From      time.Time
	To        time.Time
	Status    LessonStatus
	Limit     int
}
