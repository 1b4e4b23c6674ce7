package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/repository"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

type recurringSlotStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, slot *models.RecurringSlot) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error)
	ListActiveByTeacherDay(ctx context.Context, exec sqlx.ExtContext, teacherID string, dayOfWeek int) ([]models.RecurringSlot, error)
	MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, cancelledAt time.Time, reason *string, refundCents int64) error
}

type subscriptionStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, sub *models.SlotSubscription) error
	CancelActiveBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string, at time.Time) (int64, error)
	FindBilling(ctx context.Context, exec sqlx.ExtContext, slotID, month string) (*models.MonthlyBilling, error)
}

type slotLessonStore interface {
	CancelFutureBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string, from time.Time) (int64, error)
	FindSlotOccurrence(ctx context.Context, exec sqlx.ExtContext, teacherID, slotID string, start time.Time) (*models.Lesson, error)
}

// RecurringSlotService books and cancels indefinite weekly slots.
type RecurringSlotService struct {
	slots        recurringSlotStore
	subs         subscriptionStore
	lessons      slotLessonStore
	teachers     teacherDirectory
	creator      *LessonCreator
	tx           transactor
	refunds      *CancellationService
	notifier     notifier
	metrics      *MetricsService
	clock        clock.Clock
	validator    *validator.Validate
	logger       *zap.Logger
	policies     BookingPolicies
	initialWeeks int
	timeout      time.Duration
}

// RecurringSlotConfig carries the tunables of RecurringSlotService.
type RecurringSlotConfig struct {
	InitialWeeks int
	StoreTimeout time.Duration
	Policies     BookingPolicies
}

// NewRecurringSlotService constructs the slot manager.
func NewRecurringSlotService(slots recurringSlotStore, subs subscriptionStore, lessons slotLessonStore, teachers teacherDirectory, creator *LessonCreator, tx transactor, refunds *CancellationService, notifier notifier, metrics *MetricsService, clk clock.Clock, cfg RecurringSlotConfig, validate *validator.Validate, logger *zap.Logger) *RecurringSlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewSystem("UTC")
	}
	if refunds == nil {
		refunds = NewCancellationService()
	}
	if cfg.InitialWeeks <= 0 {
		cfg.InitialWeeks = 4
	}
	return &RecurringSlotService{
		slots:        slots,
		subs:         subs,
		lessons:      lessons,
		teachers:     teachers,
		creator:      creator,
		tx:           tx,
		refunds:      refunds,
		notifier:     notifier,
		metrics:      metrics,
		clock:        clk,
		validator:    validate,
		logger:       logger,
		policies:     cfg.Policies,
		initialWeeks: cfg.InitialWeeks,
		timeout:      storeTimeout(cfg.StoreTimeout),
	}
}

// BookRecurringSlot creates an ACTIVE weekly slot whose first occurrence is req.Date,
// together with its subscription and first lesson, then materializes the following
// weeks up to the initial window. Weeks that conflict are reported in Skipped.
func (s *RecurringSlotService) BookRecurringSlot(ctx context.Context, actor models.Actor, req dto.BookingRequest) (*dto.RecurringBookingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(s.initialWeeks+1))
	defer cancel()

	intent, err := prepareBooking(ctx, s.validator, s.teachers, s.clock, s.policies.Read, actor, req)
	if err != nil {
		s.metrics.RecordBooking("recurring", errorCode(err))
		return nil, err
	}

	local := intent.start.In(intent.loc)
	slot := &models.RecurringSlot{
		TeacherID:        req.TeacherID,
		StudentID:        req.StudentID,
		DayOfWeek:        int(local.Weekday()),
		StartTime:        local.Format("15:04"),
		Duration:         req.Duration,
		Timezone:         intent.loc.String(),
		StartDate:        intent.start.UTC(),
		MonthlyRateCents: req.MonthlyRateCents,
		Status:           models.SlotStatusActive,
	}

	var first *models.Lesson
	err = s.policies.Write.Do(ctx, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
			if err := s.ensureNoActiveOverlap(ctx, exec, slot); err != nil {
				return err
			}
			if err := s.slots.Create(ctx, exec, slot); err != nil {
				if repository.IsConstraintViolation(err) {
					return appErrors.Wrap(err, appErrors.ErrAlreadyBooked.Code, appErrors.ErrAlreadyBooked.Status, "teacher already has a recurring slot at this time")
				}
				return appErrors.Internal(err, "failed to create recurring slot")
			}
			sub := &models.SlotSubscription{
				SlotID:      slot.ID,
				Status:      models.SubscriptionStatusActive,
				PeriodStart: time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, intent.loc).UTC(),
			}
			if err := s.subs.Create(ctx, exec, sub); err != nil {
				return appErrors.Internal(err, "failed to create slot subscription")
			}
			var err error
			first, _, err = s.creator.createInTx(ctx, exec, s.draft(slot, intent, intent.start, true, createStrict))
			return err
		})
	})
	if err != nil {
		s.metrics.RecordBooking("recurring", errorCode(err))
		logBookingFailure(s.logger, "recurring slot booking rejected", req, err)
		return nil, err
	}

	result := &dto.RecurringBookingResult{
		Slot:    slot,
		Lessons: []models.Lesson{*first},
		Skipped: []dto.SkippedOccurrence{},
	}
	for week := 1; week < s.initialWeeks; week++ {
		occurrence := weeklyOccurrence(slot.StartDate, week, intent.loc)
		var lesson *models.Lesson
		err := s.policies.Write.Do(ctx, func(ctx context.Context) error {
			var err error
			lesson, _, err = s.creator.Create(ctx, s.draft(slot, intent, occurrence, false, createIfAbsent))
			return err
		})
		if err == nil && lesson == nil {
			err = appErrors.Clone(appErrors.ErrAlreadyBooked, "occurrence already taken")
		}
		if err != nil && appErrors.HasCode(err, appErrors.ErrAlreadyBooked.Code) {
			// The generation job may have materialized this week first.
			if own := s.ownOccurrence(ctx, slot, occurrence); own != nil {
				lesson, err = own, nil
			}
		}
		if err != nil {
			if !isSchedulingConflict(err) {
				s.logger.Warn("failed to seed recurring occurrence", zap.String("slot_id", slot.ID), zap.Time("date", occurrence), zap.Error(err))
			}
			result.Skipped = append(result.Skipped, dto.SkippedOccurrence{Date: occurrence, Reason: errorCode(err)})
			continue
		}
		result.Lessons = append(result.Lessons, *lesson)
	}

	s.metrics.RecordBooking("recurring", errorCode(nil))
	s.logger.Info("recurring slot booked",
		zap.String("slot_id", slot.ID),
		zap.String("teacher_id", slot.TeacherID),
		zap.String("student_id", slot.StudentID),
		zap.Int("lessons", len(result.Lessons)),
		zap.Int("skipped", len(result.Skipped)),
	)
	if s.notifier != nil {
		ids := make([]string, 0, len(result.Lessons))
		for _, l := range result.Lessons {
			ids = append(ids, l.ID)
		}
		s.notifier.Notify(models.Notification{
			Type:      models.NotificationSlotBooked,
			TeacherID: slot.TeacherID,
			StudentID: slot.StudentID,
			SlotID:    slot.ID,
			LessonIDs: ids,
			At:        s.clock.Now().UTC(),
		})
	}
	return result, nil
}

func (s *RecurringSlotService) draft(slot *models.RecurringSlot, intent *bookingIntent, start time.Time, enforceHorizon bool, mode createMode) lessonDraft {
	slotID := slot.ID
	return lessonDraft{
		Candidate:       Candidate{TeacherID: slot.TeacherID, Start: start, Duration: slot.Duration},
		StudentID:       slot.StudentID,
		RecurringSlotID: &slotID,
		Settings:        intent.settings,
		Location:        intent.loc,
		EnforceHorizon:  enforceHorizon,
		Mode:            mode,
	}
}

// ownOccurrence returns the slot's non-cancelled lesson at start, or nil when the week is
// held by something else.
func (s *RecurringSlotService) ownOccurrence(ctx context.Context, slot *models.RecurringSlot, start time.Time) *models.Lesson {
	var lesson *models.Lesson
	err := s.policies.Read.Do(ctx, func(ctx context.Context) error {
		var err error
		lesson, err = s.lessons.FindSlotOccurrence(ctx, nil, slot.TeacherID, slot.ID, start.UTC())
		return err
	})
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to look up slot occurrence", zap.String("slot_id", slot.ID), zap.Time("date", start), zap.Error(err))
		}
		return nil
	}
	if lesson.Status == models.LessonStatusCancelled {
		return nil
	}
	return lesson
}

// ensureNoActiveOverlap rejects a slot whose weekly time range overlaps an ACTIVE slot
// of the same teacher on the same weekday. recurring_slots_no_overlap catches the
// concurrent case at insert.
func (s *RecurringSlotService) ensureNoActiveOverlap(ctx context.Context, exec sqlx.ExtContext, slot *models.RecurringSlot) error {
	existing, err := s.slots.ListActiveByTeacherDay(ctx, exec, slot.TeacherID, slot.DayOfWeek)
	if err != nil {
		return appErrors.Internal(err, "failed to load recurring slots")
	}
	start, err := models.ParseClock(slot.StartTime)
	if err != nil {
		return appErrors.Internal(err, "invalid slot start time")
	}
	end := start + slot.Duration
	for _, other := range existing {
		otherStart, err := models.ParseClock(other.StartTime)
		if err != nil {
			continue
		}
		if start < otherStart+other.Duration && otherStart < end {
			return appErrors.Clone(appErrors.ErrAlreadyBooked, fmt.Sprintf("teacher already has recurring slot %s at %s", other.ID, other.StartTime))
		}
	}
	return nil
}

// GetSlot returns a slot visible to the actor.
func (s *RecurringSlotService) GetSlot(ctx context.Context, actor models.Actor, slotID string) (*models.RecurringSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var slot *models.RecurringSlot
	err := s.policies.Read.Do(ctx, func(ctx context.Context) error {
		var err error
		slot, err = s.slots.FindByID(ctx, nil, slotID)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recurring slot not found")
		}
		return nil, appErrors.Internal(err, "failed to load recurring slot")
	}
	if !canManageSlot(actor, slot) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this recurring slot")
	}
	return slot, nil
}

// CancelSlot cancels a slot, its ACTIVE subscriptions and its SCHEDULED lessons on or
// after the cancel date in one transaction, recording the prorated refund. Cancelling
// an already cancelled slot returns the stored result with AlreadyCancelled set.
func (s *RecurringSlotService) CancelSlot(ctx context.Context, actor models.Actor, slotID string, req dto.CancelSlotRequest) (*dto.CancelSlotResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var result *dto.CancelSlotResult
	err := s.policies.Write.Do(ctx, func(ctx context.Context) error {
		result = nil
		return s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
			slot, err := s.slots.FindByIDForUpdate(ctx, exec, slotID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrNotFound, "recurring slot not found")
				}
				return appErrors.Internal(err, "failed to load recurring slot")
			}
			if !canManageSlot(actor, slot) {
				return appErrors.Clone(appErrors.ErrForbidden, "not allowed to cancel this recurring slot")
			}
			if slot.Status == models.SlotStatusCancelled {
				result = &dto.CancelSlotResult{Slot: slot, RefundCents: slot.RefundCents, AlreadyCancelled: true}
				return nil
			}

			loc := slot.Location()
			cancelFrom, err := parseCancelDate(req.CancelDate, loc)
			if err != nil {
				return appErrors.Clone(appErrors.ErrValidation, "cancelDate must be YYYY-MM-DD or RFC3339")
			}

			billing, err := s.subs.FindBilling(ctx, exec, slot.ID, models.BillingMonth(cancelFrom, loc))
			if err != nil {
				return appErrors.Internal(err, "failed to load monthly billing")
			}
			refund := s.refunds.ComputeRefund(RefundInput{
				MonthlyRateCents: slot.MonthlyRateCents,
				CancelDate:       cancelFrom.In(loc),
				Billing:          billing,
			})

			now := s.clock.Now().UTC()
			var reason *string
			if trimmed := strings.TrimSpace(req.Reason); trimmed != "" {
				reason = &trimmed
			}
			if err := s.slots.MarkCancelled(ctx, exec, slot.ID, now, reason, refund); err != nil {
				return appErrors.Internal(err, "failed to cancel recurring slot")
			}
			subs, err := s.subs.CancelActiveBySlot(ctx, exec, slot.ID, now)
			if err != nil {
				return appErrors.Internal(err, "failed to cancel slot subscriptions")
			}
			lessons, err := s.lessons.CancelFutureBySlot(ctx, exec, slot.ID, cancelFrom)
			if err != nil {
				return appErrors.Internal(err, "failed to cancel slot lessons")
			}

			slot.Status = models.SlotStatusCancelled
			slot.CancelledAt = &now
			slot.CancelReason = reason
			slot.RefundCents = refund
			slot.UpdatedAt = now
			result = &dto.CancelSlotResult{
				Slot:                   slot,
				RefundCents:            refund,
				CancelledLessons:       lessons,
				CancelledSubscriptions: subs,
			}
			return nil
		})
	})
	if err != nil {
		s.logger.Warn("recurring slot cancellation failed", zap.String("slot_id", slotID), zap.String("code", errorCode(err)), zap.Error(err))
		return nil, err
	}

	if result.AlreadyCancelled {
		s.logger.Info("recurring slot already cancelled", zap.String("slot_id", slotID))
		return result, nil
	}

	s.metrics.RecordCancellation(result.CancelledLessons, result.RefundCents)
	s.logger.Info("recurring slot cancelled",
		zap.String("slot_id", slotID),
		zap.Int64("lessons_cancelled", result.CancelledLessons),
		zap.Int64("refund_cents", result.RefundCents),
	)
	if s.notifier != nil {
		s.notifier.Notify(models.Notification{
			Type:      models.NotificationSlotCancelled,
			TeacherID: result.Slot.TeacherID,
			StudentID: result.Slot.StudentID,
			SlotID:    result.Slot.ID,
			At:        s.clock.Now().UTC(),
		})
	}
	return result, nil
}

func canManageSlot(actor models.Actor, slot *models.RecurringSlot) bool {
	if actor.Privileged() {
		return true
	}
	switch actor.Role {
	case models.RoleStudent:
		return actor.ID == slot.StudentID
	case models.RoleTeacher:
		return actor.ID == slot.TeacherID
	}
	return false
}

// weeklyOccurrence returns the week-th occurrence after first at the same local
// wall-clock time in loc, so DST changes do not shift the lesson.
func weeklyOccurrence(first time.Time, week int, loc *time.Location) time.Time {
	l := first.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day()+7*week, l.Hour(), l.Minute(), 0, 0, loc)
}

func parseCancelDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", raw, loc)
}
