package dto

import "time"

// GenerationSummary reports one run of the lesson generation job.
type GenerationSummary struct {
	TeachersProcessed int       `json:"teachersProcessed"`
	LessonsGenerated  int       `json:"lessonsGenerated"`
	SlotsSkipped      int       `json:"slotsSkipped"`
	TeachersFailed    []string  `json:"teachersFailed"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
}
