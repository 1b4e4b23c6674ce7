package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

func strPtr(v string) *string { return &v }

func statusPtr(v models.LessonStatus) *models.LessonStatus { return &v }

func bookFixtureLesson(t *testing.T, f *schedulerFixture) *models.Lesson {
	t.Helper()
	lesson, err := f.bookings.BookSingleLesson(context.Background(), studentActor, singleBooking("s-1", "2025-01-13T14:00:00Z", 60))
	require.NoError(t, err)
	return lesson
}

func TestUpdateLessonOptimisticBumpsVersion(t *testing.T) {
	f := newSchedulerFixture(t)
	lesson := bookFixtureLesson(t, f)

	updated, err := f.lessons.UpdateLessonOptimistic(context.Background(), teacherActor, lesson.ID, 1, models.LessonPatch{Notes: strPtr("bring the workbook")})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "bring the workbook", updated.Notes)

	_, err = f.lessons.UpdateLessonOptimistic(context.Background(), teacherActor, lesson.ID, 1, models.LessonPatch{Homework: strPtr("chapter 3")})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrVersionConflict.Code))
	assert.Contains(t, err.Error(), "version 2")
	assert.Equal(t, "", f.store.lesson(lesson.ID).Homework)
}

func TestUpdateLessonOptimisticConcurrentWritersSingleWinner(t *testing.T) {
	f := newSchedulerFixture(t)
	lesson := bookFixtureLesson(t, f)

	const writers = 6
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.lessons.UpdateLessonOptimistic(context.Background(), teacherActor, lesson.ID, 1, models.LessonPatch{Notes: strPtr("note")})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, appErrors.HasCode(err, appErrors.ErrVersionConflict.Code))
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, f.store.lesson(lesson.ID).Version)
}

func TestUpdateLessonOptimisticRejections(t *testing.T) {
	f := newSchedulerFixture(t)
	lesson := bookFixtureLesson(t, f)

	_, err := f.lessons.UpdateLessonOptimistic(context.Background(), teacherActor, "lesson-missing", 1, models.LessonPatch{Notes: strPtr("x")})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	_, err = f.lessons.UpdateLessonOptimistic(context.Background(), teacherActor, lesson.ID, 1, models.LessonPatch{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = f.lessons.UpdateLessonOptimistic(context.Background(), studentActor, lesson.ID, 1, models.LessonPatch{Status: statusPtr(models.LessonStatusCompleted)})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = f.lessons.UpdateLessonOptimistic(context.Background(), models.Actor{ID: "t-2", Role: models.RoleTeacher}, lesson.ID, 1, models.LessonPatch{Notes: strPtr("x")})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = f.lessons.UpdateLessonOptimistic(context.Background(), teacherActor, lesson.ID, 1, models.LessonPatch{Status: statusPtr(models.LessonStatusCancelled)})
	require.NoError(t, err)
	_, err = f.lessons.UpdateLessonOptimistic(context.Background(), teacherActor, lesson.ID, 2, models.LessonPatch{Status: statusPtr(models.LessonStatusCompleted)})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestUpdateLessonCompletionCountsDelivery(t *testing.T) {
	f := newSchedulerFixture(t)
	booked, err := f.recurring.BookRecurringSlot(context.Background(), studentActor, recurringBooking("s-1", "2025-01-06T14:00:00Z"))
	require.NoError(t, err)
	first := booked.Lessons[0]

	_, err = f.lessons.Update(context.Background(), teacherActor, first.ID, dto.UpdateLessonRequest{ExpectedVersion: 1, Status: strPtr("COMPLETED")})
	require.NoError(t, err)

	billing, ok := f.store.billingFor(booked.Slot.ID, "2025-01")
	require.True(t, ok)
	assert.Equal(t, 1, billing.ActualLessons)
	assert.Equal(t, 4, billing.ExpectedLessons)

	_, err = f.lessons.Update(context.Background(), teacherActor, first.ID, dto.UpdateLessonRequest{ExpectedVersion: 2, Notes: strPtr("great progress")})
	require.NoError(t, err)
	billing, _ = f.store.billingFor(booked.Slot.ID, "2025-01")
	assert.Equal(t, 1, billing.ActualLessons)
}

func TestUpdateLessonValidatesRequest(t *testing.T) {
	f := newSchedulerFixture(t)
	lesson := bookFixtureLesson(t, f)

	_, err := f.lessons.Update(context.Background(), teacherActor, lesson.ID, dto.UpdateLessonRequest{Notes: strPtr("x")})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = f.lessons.Update(context.Background(), teacherActor, lesson.ID, dto.UpdateLessonRequest{ExpectedVersion: 1, Status: strPtr("DONE")})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestLessonServiceGetAndList(t *testing.T) {
	f := newSchedulerFixture(t)
	lesson := bookFixtureLesson(t, f)
	_, err := f.bookings.BookSingleLesson(context.Background(), adminActor, singleBooking("s-2", "2025-01-20T14:00:00Z", 30))
	require.NoError(t, err)

	got, err := f.lessons.Get(context.Background(), studentActor, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, lesson.ID, got.ID)

	_, err = f.lessons.Get(context.Background(), models.Actor{ID: "s-2", Role: models.RoleStudent}, lesson.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	all, err := f.lessons.ListByTeacher(context.Background(), teacherActor, "t-1", dto.LessonQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	window, err := f.lessons.ListByTeacher(context.Background(), teacherActor, "t-1", dto.LessonQuery{From: "2025-01-14", To: "2025-01-21"})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, utc(2025, time.January, 20, 14, 0), window[0].StartsAt)

	_, err = f.lessons.ListByTeacher(context.Background(), teacherActor, "t-1", dto.LessonQuery{From: "2025-01-21", To: "2025-01-14"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = f.lessons.ListByTeacher(context.Background(), studentActor, "t-1", dto.LessonQuery{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}
