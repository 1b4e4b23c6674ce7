package models

import "time"

// NotificationType names the scheduler events sent to the notification collaborator.
type NotificationType string

const (
	NotificationLessonBooked  NotificationType = "LESSON_BOOKED"
	NotificationSlotBooked    NotificationType = "RECURRING_SLOT_BOOKED"
	NotificationSlotCancelled NotificationType = "RECURRING_SLOT_CANCELLED"
)

// Notification is a fire-and-forget message about a scheduling event.
type Notification struct {
	Type      NotificationType `json:"type"`
	TeacherID string           `json:"teacher_id"`
	StudentID string           `json:"student_id"`
	SlotID    string           `json:"slot_id,omitempty"`
	LessonIDs []string         `json:"lesson_ids,omitempty"`
	At        time.Time        `json:"at"`
}
