package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

type lessonStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error)
	UpdateOptimistic(ctx context.Context, exec sqlx.ExtContext, id string, expectedVersion int, patch models.LessonPatch) (*models.Lesson, error)
	ListByTeacher(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
}

type slotReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error)
}

type deliveryRecorder interface {
	IncrementActual(ctx context.Context, exec sqlx.ExtContext, slotID, month string) error
}

// LessonService reads lessons and applies optimistic-locked edits to them.
type LessonService struct {
	lessons   lessonStore
	slots     slotReader
	billing   deliveryRecorder
	teachers  teacherDirectory
	tx        transactor
	metrics   *MetricsService
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
	policies  BookingPolicies
	timeout   time.Duration
}

// NewLessonService constructs the service.
func NewLessonService(lessons lessonStore, slots slotReader, billing deliveryRecorder, teachers teacherDirectory, tx transactor, metrics *MetricsService, clk clock.Clock, policies BookingPolicies, timeout time.Duration, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewSystem("UTC")
	}
	return &LessonService{
		lessons:   lessons,
		slots:     slots,
		billing:   billing,
		teachers:  teachers,
		tx:        tx,
		metrics:   metrics,
		clock:     clk,
		validator: validate,
		logger:    logger,
		policies:  policies,
		timeout:   storeTimeout(timeout),
	}
}

// Get returns a lesson visible to the actor.
func (s *LessonService) Get(ctx context.Context, actor models.Actor, id string) (*models.Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var lesson *models.Lesson
	err := s.policies.Read.Do(ctx, func(ctx context.Context) error {
		var err error
		lesson, err = s.lessons.FindByID(ctx, nil, id)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Internal(err, "failed to load lesson")
	}
	if !canTouchLesson(actor, lesson) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this lesson")
	}
	return lesson, nil
}

// Update validates an HTTP patch and applies it with UpdateLessonOptimistic.
func (s *LessonService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	patch := models.LessonPatch{Notes: req.Notes, Homework: req.Homework}
	if req.Status != nil {
		status := models.LessonStatus(*req.Status)
		patch.Status = &status
	}
	return s.UpdateLessonOptimistic(ctx, actor, id, req.ExpectedVersion, patch)
}

// UpdateLessonOptimistic applies patch only if the lesson is still at expectedVersion,
// returning VERSION_CONFLICT otherwise. The caller decides whether to reload and retry.
func (s *LessonService) UpdateLessonOptimistic(ctx context.Context, actor models.Actor, id string, expectedVersion int, patch models.LessonPatch) (*models.Lesson, error) {
	if expectedVersion < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expectedVersion must be at least 1")
	}
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown lesson status")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var updated *models.Lesson
	err := s.policies.Write.Do(ctx, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
			current, err := s.lessons.FindByID(ctx, exec, id)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
				}
				return appErrors.Internal(err, "failed to load lesson")
			}
			if !canTouchLesson(actor, current) {
				return appErrors.Clone(appErrors.ErrForbidden, "not allowed to edit this lesson")
			}
			if patch.Status != nil && actor.Role == models.RoleStudent {
				return appErrors.Clone(appErrors.ErrForbidden, "students cannot change lesson status")
			}
			if current.Version != expectedVersion {
				return versionConflict(expectedVersion, current.Version)
			}
			if patch.Status != nil && *patch.Status != current.Status && current.Status != models.LessonStatusScheduled {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lesson is %s and its status can no longer change", current.Status))
			}

			updated, err = s.lessons.UpdateOptimistic(ctx, exec, id, expectedVersion, patch)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrVersionConflict, "")
				}
				return appErrors.Internal(err, "failed to update lesson")
			}

			if current.Status == models.LessonStatusScheduled && updated.Status == models.LessonStatusCompleted && updated.RecurringSlotID != nil {
				return s.recordDelivery(ctx, exec, updated)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrVersionConflict) {
			s.metrics.RecordVersionConflict()
		}
		return nil, err
	}

	s.logger.Info("lesson updated", zap.String("lesson_id", id), zap.Int("version", updated.Version), zap.String("status", string(updated.Status)))
	return updated, nil
}

func (s *LessonService) recordDelivery(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	slot, err := s.slots.FindByID(ctx, exec, *lesson.RecurringSlotID)
	if err != nil {
		return appErrors.Internal(err, "failed to load recurring slot")
	}
	month := models.BillingMonth(lesson.StartsAt, slot.Location())
	if err := s.billing.IncrementActual(ctx, exec, slot.ID, month); err != nil {
		return appErrors.Internal(err, "failed to update monthly billing")
	}
	return nil
}

func versionConflict(expected, current int) error {
	return appErrors.Clone(appErrors.ErrVersionConflict, fmt.Sprintf("lesson is at version %d, not %d; reload and retry", current, expected))
}

// ListByTeacher returns the teacher's lessons in [from, to) interpreted in the
// teacher's timezone.
func (s *LessonService) ListByTeacher(ctx context.Context, actor models.Actor, teacherID string, query dto.LessonQuery) ([]models.Lesson, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson query")
	}
	if !actsForTeacher(actor, teacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list this teacher's lessons")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	settings, err := loadSettings(ctx, s.teachers, s.policies.Read, teacherID)
	if err != nil {
		return nil, err
	}
	loc := settings.Location(s.clock.Location())

	filter := models.LessonFilter{TeacherID: teacherID, Status: models.LessonStatus(query.Status)}
	if query.From != "" {
		if filter.From, err = time.ParseInLocation("2006-01-02", query.From, loc); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "from must be formatted YYYY-MM-DD")
		}
	}
	if query.To != "" {
		if filter.To, err = time.ParseInLocation("2006-01-02", query.To, loc); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "to must be formatted YYYY-MM-DD")
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}

	var lessons []models.Lesson
	err = s.policies.Read.Do(ctx, func(ctx context.Context) error {
		var err error
		lessons, err = s.lessons.ListByTeacher(ctx, filter)
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list lessons")
	}
	return lessons, nil
}

func canTouchLesson(actor models.Actor, lesson *models.Lesson) bool {
	if actor.Privileged() {
		return true
	}
	switch actor.Role {
	case models.RoleStudent:
		return actor.ID == lesson.StudentID
	case models.RoleTeacher:
		return actor.ID == lesson.TeacherID
	}
	return false
}
