package dto

// UpdateLessonRequest patches a lesson guarded by the version the client last read.
type UpdateLessonRequest struct {
	ExpectedVersion int     `json:"expectedVersion" validate:"required,min=1"`
	Notes           *string `json:"notes" validate:"omitempty,max=4000"`
	Homework        *string `json:"homework" validate:"omitempty,max=4000"`
	Status          *string `json:"status" validate:"omitempty,oneof=SCHEDULED COMPLETED CANCELLED"`
}

// LessonQuery filters a teacher's lesson listing. From/To are YYYY-MM-DD.
type LessonQuery struct {
	From   string `form:"from"`
	To     string `form:"to"`
	Status string `form:"status" validate:"omitempty,oneof=SCHEDULED COMPLETED CANCELLED"`
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
