package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/repository"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

type transactor interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

type teacherDirectory interface {
	GetSettings(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.TeacherSettings, error)
	IsRostered(ctx context.Context, exec sqlx.ExtContext, teacherID, studentID string) (bool, error)
}

type lessonWriter interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error
	InsertIfAbsent(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) (bool, error)
}

type billingCounter interface {
	IncrementExpected(ctx context.Context, exec sqlx.ExtContext, slotID, month string) error
}

type createMode int

const (
	// createStrict surfaces a racing overlap as SLOT_TAKEN.
	createStrict createMode = iota
	// createIfAbsent silently keeps an existing occurrence.
	createIfAbsent
)

// lessonDraft is everything the creator needs to validate and persist one lesson.
type lessonDraft struct {
	Candidate
	StudentID       string
	RecurringSlotID *string
	Settings        models.TeacherSettings
	Location        *time.Location
	EnforceHorizon  bool
	Mode            createMode
}

// LessonCreator is the single path through which lessons are written: conflict check
// and insert share one transaction, and occurrences of recurring slots are counted
// towards their month's billing.
type LessonCreator struct {
	detector *ConflictDetector
	lessons  lessonWriter
	billing  billingCounter
	tx       transactor
	clock    clock.Clock
	logger   *zap.Logger
}

// NewLessonCreator constructs the creator.
func NewLessonCreator(detector *ConflictDetector, lessons lessonWriter, billing billingCounter, tx transactor, clk clock.Clock, logger *zap.Logger) *LessonCreator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewSystem("UTC")
	}
	return &LessonCreator{detector: detector, lessons: lessons, billing: billing, tx: tx, clock: clk, logger: logger}
}

// Create checks and writes the draft in its own transaction. created is false when
// an if-absent draft found its occurrence already present.
func (c *LessonCreator) Create(ctx context.Context, draft lessonDraft) (lesson *models.Lesson, created bool, err error) {
	err = c.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		var txErr error
		lesson, created, txErr = c.createInTx(ctx, exec, draft)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}
	return lesson, created, nil
}

func (c *LessonCreator) createInTx(ctx context.Context, exec sqlx.ExtContext, draft lessonDraft) (*models.Lesson, bool, error) {
	if err := c.detector.Check(ctx, exec, draft.Settings, draft.Candidate, CheckOptions{EnforceHorizon: draft.EnforceHorizon}); err != nil {
		return nil, false, err
	}

	lesson := &models.Lesson{
		TeacherID:       draft.TeacherID,
		StudentID:       draft.StudentID,
		StartsAt:        draft.Start.UTC(),
		Duration:        draft.Duration,
		Status:          models.LessonStatusScheduled,
		RecurringSlotID: draft.RecurringSlotID,
		Version:         1,
	}

	switch draft.Mode {
	case createIfAbsent:
		ok, err := c.lessons.InsertIfAbsent(ctx, exec, lesson)
		if err != nil {
			return nil, false, appErrors.Internal(err, "failed to create lesson")
		}
		if !ok {
			return nil, false, nil
		}
	default:
		if err := c.lessons.Insert(ctx, exec, lesson); err != nil {
			if repository.IsConstraintViolation(err) {
				c.logger.Info("lesson insert lost a race", zap.String("teacher_id", draft.TeacherID), zap.Time("start", lesson.StartsAt))
				return nil, false, appErrors.Wrap(err, appErrors.ErrSlotTaken.Code, appErrors.ErrSlotTaken.Status, appErrors.ErrSlotTaken.Message)
			}
			return nil, false, appErrors.Internal(err, "failed to create lesson")
		}
	}

	if lesson.RecurringSlotID != nil && c.billing != nil {
		loc := draft.Location
		if loc == nil {
			loc = draft.Settings.Location(c.clock.Location())
		}
		if err := c.billing.IncrementExpected(ctx, exec, *lesson.RecurringSlotID, models.BillingMonth(lesson.StartsAt, loc)); err != nil {
			return nil, false, appErrors.Internal(err, "failed to update monthly billing")
		}
	}
	return lesson, true, nil
}

// isSchedulingConflict reports whether err is a business rejection of a time, as
// opposed to a store or authorization failure.
func isSchedulingConflict(err error) bool {
	for _, code := range []string{
		appErrors.ErrNotAvailable.Code,
		appErrors.ErrAlreadyBooked.Code,
		appErrors.ErrSlotTaken.Code,
		appErrors.ErrOutOfWindow.Code,
	} {
		if appErrors.HasCode(err, code) {
			return true
		}
	}
	return false
}

func errorCode(err error) string {
	if err == nil {
		return "OK"
	}
	return appErrors.FromError(err).Code
}

func storeTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

// actsForTeacher reports whether the actor may manage the teacher's calendar.
func actsForTeacher(actor models.Actor, teacherID string) bool {
	return actor.Privileged() || (actor.Role == models.RoleTeacher && actor.ID == teacherID)
}
