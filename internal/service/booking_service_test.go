package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/repository"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

func singleBooking(student, date string, duration int) dto.BookingRequest {
	return dto.BookingRequest{TeacherID: "t-1", StudentID: student, Date: date, Duration: duration}
}

func TestBookSingleLessonSuccess(t *testing.T) {
	f := newSchedulerFixture(t)

	lesson, err := f.bookings.BookSingleLesson(context.Background(), studentActor, singleBooking("s-1", "2025-01-13T14:00:00Z", 60))
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusScheduled, lesson.Status)
	assert.Equal(t, 1, lesson.Version)
	assert.Equal(t, utc(2025, time.January, 13, 15, 0), lesson.EndsAt)
	assert.Nil(t, lesson.RecurringSlotID)
	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, models.NotificationLessonBooked, f.notifier.sent[0].Type)
}

func TestBookSingleLessonParsesLocalTimeInRequestedZone(t *testing.T) {
	f := newSchedulerFixture(t)
	req := singleBooking("s-1", "2025-01-13T15:00", 60)
	req.Timezone = "Europe/Berlin"

	lesson, err := f.bookings.BookSingleLesson(context.Background(), studentActor, req)
	require.NoError(t, err)
	assert.Equal(t, utc(2025, time.January, 13, 14, 0), lesson.StartsAt)
}

func TestBookSingleLessonRejections(t *testing.T) {
	f := newSchedulerFixture(t)
	_, err := f.bookings.BookSingleLesson(context.Background(), studentActor, singleBooking("s-1", "2025-01-13T14:00:00Z", 60))
	require.NoError(t, err)

	cases := []struct {
		name  string
		actor models.Actor
		req   dto.BookingRequest
		code  string
	}{
		{name: "overlap", actor: adminActor, req: singleBooking("s-2", "2025-01-13T14:30:00Z", 30), code: appErrors.ErrAlreadyBooked.Code},
		{name: "outside availability", actor: adminActor, req: singleBooking("s-2", "2025-01-13T18:00:00Z", 60), code: appErrors.ErrNotAvailable.Code},
		{name: "past", actor: adminActor, req: singleBooking("s-2", "2024-12-30T14:00:00Z", 60), code: appErrors.ErrOutOfWindow.Code},
		{name: "beyond horizon", actor: adminActor, req: singleBooking("s-2", "2025-06-02T14:00:00Z", 60), code: appErrors.ErrOutOfWindow.Code},
		{name: "other student", actor: studentActor, req: singleBooking("s-2", "2025-01-13T15:00:00Z", 60), code: appErrors.ErrForbidden.Code},
		{name: "not on roster", actor: adminActor, req: singleBooking("s-9", "2025-01-13T15:00:00Z", 60), code: appErrors.ErrForbidden.Code},
		{name: "unknown teacher", actor: adminActor, req: dto.BookingRequest{TeacherID: "t-9", StudentID: "s-1", Date: "2025-01-13T15:00:00Z", Duration: 60}, code: appErrors.ErrNotFound.Code},
		{name: "invalid duration", actor: adminActor, req: singleBooking("s-2", "2025-01-13T15:00:00Z", 45), code: appErrors.ErrValidation.Code},
		{name: "invalid date", actor: adminActor, req: singleBooking("s-2", "next monday", 60), code: appErrors.ErrValidation.Code},
		{name: "invalid timezone", actor: adminActor, req: dto.BookingRequest{TeacherID: "t-1", StudentID: "s-2", Date: "2025-01-13T15:00", Duration: 60, Timezone: "Mars/Olympus"}, code: appErrors.ErrValidation.Code},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.bookings.BookSingleLesson(context.Background(), tc.actor, tc.req)
			assert.True(t, appErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	lessons, err := memLessons{s: f.store}.ListByTeacher(context.Background(), models.LessonFilter{TeacherID: "t-1"})
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
}

// Transactions against memStore run one at a time, so losers here are rejected by the
// pre-insert check. The insert race itself is covered by the constraint tests below.
func TestBookSingleLessonConcurrentCallersSingleWinner(t *testing.T) {
	f := newSchedulerFixture(t)
	f.store.addTeacher("t-1", "UTC", "s-1", "s-2", "s-3", "s-4", "s-5", "s-6", "s-7", "s-8")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			date := "2025-01-13T14:00:00Z"
			if i%2 == 1 {
				date = "2025-01-13T14:30:00Z"
			}
			_, errs[i] = f.bookings.BookSingleLesson(context.Background(), adminActor, singleBooking(fmt.Sprintf("s-%d", i+1), date, 60))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, appErrors.HasCode(err, appErrors.ErrAlreadyBooked.Code) || appErrors.HasCode(err, appErrors.ErrSlotTaken.Code), "got %v", err)
	}
	assert.Equal(t, 1, wins)
}

type constraintWriter struct{ calls int }

func (w *constraintWriter) Insert(context.Context, sqlx.ExtContext, *models.Lesson) error {
	w.calls++
	return &repository.ConstraintError{Constraint: "lessons_no_overlap", Err: errors.New("conflicting key value violates exclusion constraint")}
}

func (w *constraintWriter) InsertIfAbsent(context.Context, sqlx.ExtContext, *models.Lesson) (bool, error) {
	return false, nil
}

func TestBookSingleLessonConstraintViolationIsSlotTaken(t *testing.T) {
	f := newSchedulerFixture(t)
	writer := &constraintWriter{}
	detector := NewConflictDetector(memAvailability{s: f.store}, memBlocked{s: f.store}, memLessons{s: f.store}, f.clock, 90, 0)
	creator := NewLessonCreator(detector, writer, memSubs{s: f.store}, memTx{s: f.store}, f.clock, nil)
	bookings := NewBookingService(memTeachers{s: f.store}, creator, nil, nil, f.clock, testPolicies, time.Second, nil, nil)

	_, err := bookings.BookSingleLesson(context.Background(), studentActor, singleBooking("s-1", "2025-01-13T14:00:00Z", 60))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotTaken.Code))
	assert.Equal(t, 1, writer.calls)
}

// flakyTx fails the first n transactions with a transient store error.
type flakyTx struct {
	inner    memTx
	failures int
	attempts int
}

func (f *flakyTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	f.attempts++
	if f.attempts <= f.failures {
		return appErrors.Wrap(errors.New("connection reset"), appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, "begin transaction")
	}
	return f.inner.WithinTx(ctx, fn)
}

func TestBookSingleLessonRetriesTransientFailures(t *testing.T) {
	f := newSchedulerFixture(t)
	tx := &flakyTx{inner: memTx{s: f.store}, failures: 2}
	detector := NewConflictDetector(memAvailability{s: f.store}, memBlocked{s: f.store}, memLessons{s: f.store}, f.clock, 90, 0)
	creator := NewLessonCreator(detector, memLessons{s: f.store}, memSubs{s: f.store}, tx, f.clock, nil)
	bookings := NewBookingService(memTeachers{s: f.store}, creator, nil, nil, f.clock, testPolicies, time.Second, nil, nil)

	lesson, err := bookings.BookSingleLesson(context.Background(), studentActor, singleBooking("s-1", "2025-01-13T14:00:00Z", 60))
	require.NoError(t, err)
	assert.NotEmpty(t, lesson.ID)
	assert.Equal(t, 3, tx.attempts)

	tx.failures, tx.attempts = 5, 0
	_, err = bookings.BookSingleLesson(context.Background(), studentActor, singleBooking("s-1", "2025-01-13T15:00:00Z", 60))
	assert.True(t, appErrors.IsRetryable(err))
	assert.Equal(t, 3, tx.attempts)
}
