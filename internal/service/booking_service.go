package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/retry"
)

type notifier interface {
	Notify(n models.Notification)
}

// BookingPolicies selects the retry policy per call site.
type BookingPolicies struct {
	Write retry.Policy
	Read  retry.Policy
}

// BookingService books one-off lessons.
type BookingService struct {
	teachers  teacherDirectory
	creator   *LessonCreator
	notifier  notifier
	metrics   *MetricsService
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
	policies  BookingPolicies
	timeout   time.Duration
}

// NewBookingService constructs the booking engine.
func NewBookingService(teachers teacherDirectory, creator *LessonCreator, notifier notifier, metrics *MetricsService, clk clock.Clock, policies BookingPolicies, timeout time.Duration, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewSystem("UTC")
	}
	return &BookingService{
		teachers:  teachers,
		creator:   creator,
		notifier:  notifier,
		metrics:   metrics,
		clock:     clk,
		validator: validate,
		logger:    logger,
		policies:  policies,
		timeout:   storeTimeout(timeout),
	}
}

// BookSingleLesson reserves one lesson. Of two concurrent overlapping calls at most
// one succeeds; the loser receives ALREADY_BOOKED or SLOT_TAKEN.
func (s *BookingService) BookSingleLesson(ctx context.Context, actor models.Actor, req dto.BookingRequest) (*models.Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	intent, err := prepareBooking(ctx, s.validator, s.teachers, s.clock, s.policies.Read, actor, req)
	if err != nil {
		s.metrics.RecordBooking("single", errorCode(err))
		return nil, err
	}

	var lesson *models.Lesson
	err = s.policies.Write.Do(ctx, func(ctx context.Context) error {
		var err error
		lesson, _, err = s.creator.Create(ctx, lessonDraft{
			Candidate:      Candidate{TeacherID: req.TeacherID, Start: intent.start, Duration: req.Duration},
			StudentID:      req.StudentID,
			Settings:       intent.settings,
			Location:       intent.loc,
			EnforceHorizon: true,
			Mode:           createStrict,
		})
		return err
	})
	s.metrics.RecordBooking("single", errorCode(err))
	if err != nil {
		logBookingFailure(s.logger, "single lesson booking rejected", req, err)
		return nil, err
	}

	s.logger.Info("lesson booked",
		zap.String("lesson_id", lesson.ID),
		zap.String("teacher_id", lesson.TeacherID),
		zap.String("student_id", lesson.StudentID),
		zap.Time("starts_at", lesson.StartsAt),
	)
	if s.notifier != nil {
		s.notifier.Notify(models.Notification{
			Type:      models.NotificationLessonBooked,
			TeacherID: lesson.TeacherID,
			StudentID: lesson.StudentID,
			LessonIDs: []string{lesson.ID},
			At:        s.clock.Now().UTC(),
		})
	}
	return lesson, nil
}

type bookingIntent struct {
	settings models.TeacherSettings
	loc      *time.Location
	start    time.Time
}

// prepareBooking validates the request, authorizes the actor, resolves the teacher
// and checks the roster.
func prepareBooking(ctx context.Context, validate *validator.Validate, teachers teacherDirectory, clk clock.Clock, policy retry.Policy, actor models.Actor, req dto.BookingRequest) (*bookingIntent, error) {
	if err := validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	if !canBookFor(actor, req) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to book for this student")
	}

	settings, err := loadSettings(ctx, teachers, policy, req.TeacherID)
	if err != nil {
		return nil, err
	}

	loc := settings.Location(clk.Location())
	if req.Timezone != "" {
		requested, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "timezone must be an IANA zone name")
		}
		loc = requested
	}
	start, err := parseBookingTime(req.Date, loc)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be RFC3339 or YYYY-MM-DDTHH:MM")
	}

	var rostered bool
	err = policy.Do(ctx, func(ctx context.Context) error {
		var err error
		rostered, err = teachers.IsRostered(ctx, nil, req.TeacherID, req.StudentID)
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check roster")
	}
	if !rostered {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not on the teacher's roster")
	}

	return &bookingIntent{settings: *settings, loc: settings.Location(clk.Location()), start: start}, nil
}

func canBookFor(actor models.Actor, req dto.BookingRequest) bool {
	switch {
	case actor.Privileged():
		return true
	case actor.Role == models.RoleStudent:
		return actor.ID == req.StudentID
	case actor.Role == models.RoleTeacher:
		return actor.ID == req.TeacherID
	}
	return false
}

var localBookingLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseBookingTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range localBookingLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func logBookingFailure(logger *zap.Logger, msg string, req dto.BookingRequest, err error) {
	fields := []zap.Field{
		zap.String("teacher_id", req.TeacherID),
		zap.String("student_id", req.StudentID),
		zap.String("date", req.Date),
		zap.String("code", errorCode(err)),
	}
	if isSchedulingConflict(err) {
		logger.Info(msg, fields...)
		return
	}
	logger.Warn(msg, append(fields, zap.Error(err))...)
}
