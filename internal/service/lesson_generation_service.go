package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

type activeSlotLister interface {
	ListActive(ctx context.Context) ([]models.RecurringSlot, error)
}

type slotOccurrenceReader interface {
	ListSlotOccurrences(ctx context.Context, exec sqlx.ExtContext, teacherID, slotID string, from, to time.Time) ([]time.Time, error)
}

const week = 7 * 24 * time.Hour

// LessonGenerationConfig carries the tunables of the generation job.
type LessonGenerationConfig struct {
	HorizonWeeks int
	StoreTimeout time.Duration
	Policies     BookingPolicies
}

// LessonGenerationService extends every ACTIVE recurring slot with lessons up to the
// rolling horizon. Runs are idempotent: an occurrence that already exists is left alone.
type LessonGenerationService struct {
	slots        activeSlotLister
	occurrences  slotOccurrenceReader
	availability availabilityReader
	blocked      blockedTimeReader
	teachers     teacherDirectory
	creator      *LessonCreator
	metrics      *MetricsService
	clock        clock.Clock
	logger       *zap.Logger
	cfg          LessonGenerationConfig
}

// NewLessonGenerationService constructs the job.
func NewLessonGenerationService(slots activeSlotLister, occurrences slotOccurrenceReader, availability availabilityReader, blocked blockedTimeReader, teachers teacherDirectory, creator *LessonCreator, metrics *MetricsService, clk clock.Clock, cfg LessonGenerationConfig, logger *zap.Logger) *LessonGenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewSystem("UTC")
	}
	if cfg.HorizonWeeks <= 0 {
		cfg.HorizonWeeks = 12
	}
	cfg.StoreTimeout = storeTimeout(cfg.StoreTimeout)
	return &LessonGenerationService{
		slots:        slots,
		occurrences:  occurrences,
		availability: availability,
		blocked:      blocked,
		teachers:     teachers,
		creator:      creator,
		metrics:      metrics,
		clock:        clk,
		logger:       logger,
		cfg:          cfg,
	}
}

// Run processes every teacher with ACTIVE slots. A failing teacher is logged, listed in
// TeachersFailed and does not stop the others.
func (s *LessonGenerationService) Run(ctx context.Context) (*dto.GenerationSummary, error) {
	summary := &dto.GenerationSummary{TeachersFailed: []string{}, StartedAt: s.clock.Now().UTC()}

	var slots []models.RecurringSlot
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		slots, err = s.slots.ListActive(ctx)
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list active recurring slots")
	}

	var order []string
	byTeacher := make(map[string][]models.RecurringSlot)
	for _, slot := range slots {
		if _, ok := byTeacher[slot.TeacherID]; !ok {
			order = append(order, slot.TeacherID)
		}
		byTeacher[slot.TeacherID] = append(byTeacher[slot.TeacherID], slot)
	}

	for _, teacherID := range order {
		if ctx.Err() != nil {
			summary.TeachersFailed = append(summary.TeachersFailed, teacherID)
			continue
		}
		generated, skipped, err := s.processTeacher(ctx, teacherID, byTeacher[teacherID])
		summary.LessonsGenerated += generated
		summary.SlotsSkipped += skipped
		if err != nil {
			summary.TeachersFailed = append(summary.TeachersFailed, teacherID)
			s.logger.Error("lesson generation failed for teacher", zap.String("teacher_id", teacherID), zap.Error(err))
			continue
		}
		summary.TeachersProcessed++
	}

	summary.FinishedAt = s.clock.Now().UTC()
	s.metrics.RecordGenerationRun(summary.LessonsGenerated, summary.SlotsSkipped, len(summary.TeachersFailed), summary.FinishedAt.Sub(summary.StartedAt))
	s.logger.Info("lesson generation finished",
		zap.Int("teachers_processed", summary.TeachersProcessed),
		zap.Int("lessons_generated", summary.LessonsGenerated),
		zap.Int("slots_skipped", summary.SlotsSkipped),
		zap.Strings("teachers_failed", summary.TeachersFailed),
	)
	return summary, nil
}

func (s *LessonGenerationService) processTeacher(ctx context.Context, teacherID string, slots []models.RecurringSlot) (generated, skipped int, err error) {
	var settings *models.TeacherSettings
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		settings, err = s.teachers.GetSettings(ctx, nil, teacherID)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	loc := settings.Location(s.clock.Location())
	now := s.clock.Now()
	horizonEnd := startOfDay(now, loc).AddDate(0, 0, 7*s.cfg.HorizonWeeks)

	var availability []models.TeacherAvailability
	var blocked []models.BlockedTime
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		if availability, err = s.availability.ListByTeacher(ctx, nil, teacherID); err != nil {
			return err
		}
		blocked, err = s.blocked.ListOverlapping(ctx, nil, teacherID, now, horizonEnd)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	for _, slot := range slots {
		g, sk, err := s.processSlot(ctx, *settings, slot, loc, now, horizonEnd, availability, blocked)
		generated += g
		skipped += sk
		if err != nil {
			return generated, skipped, err
		}
	}
	return generated, skipped, nil
}

func (s *LessonGenerationService) processSlot(ctx context.Context, settings models.TeacherSettings, slot models.RecurringSlot, loc *time.Location, now, horizonEnd time.Time, availability []models.TeacherAvailability, blocked []models.BlockedTime) (generated, skipped int, err error) {
	var existing []time.Time
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		existing, err = s.occurrences.ListSlotOccurrences(ctx, nil, slot.TeacherID, slot.ID, slot.StartDate, horizonEnd)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	present := make(map[int64]struct{}, len(existing))
	for _, t := range existing {
		present[t.Unix()] = struct{}{}
	}

	slotLoc := slot.Location()
	duration := time.Duration(slot.Duration) * time.Minute
	first := 0
	if elapsed := now.Sub(slot.StartDate); elapsed > week {
		first = int(elapsed/week) - 1
	}

	for i := first; ; i++ {
		occurrence := weeklyOccurrence(slot.StartDate, i, slotLoc)
		if !occurrence.Before(horizonEnd) {
			break
		}
		if occurrence.Before(now) || occurrence.Before(slot.StartDate) {
			continue
		}

		windows := resolveDays(occurrence, occurrence.Add(duration-time.Nanosecond), loc, availability, blocked)
		if !fitsWindow(windows, occurrence, occurrence.Add(duration)) {
			skipped++
			s.logger.Debug("occurrence outside open windows", zap.String("slot_id", slot.ID), zap.Time("date", occurrence))
			continue
		}
		if _, ok := present[occurrence.Unix()]; ok {
			continue
		}

		slotID := slot.ID
		var created bool
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			_, created, err = s.creator.Create(ctx, lessonDraft{
				Candidate:       Candidate{TeacherID: slot.TeacherID, Start: occurrence, Duration: slot.Duration},
				StudentID:       slot.StudentID,
				RecurringSlotID: &slotID,
				Settings:        settings,
				Location:        slotLoc,
				Mode:            createIfAbsent,
			})
			return err
		})
		if err != nil {
			if isSchedulingConflict(err) {
				skipped++
				s.logger.Debug("occurrence conflicts", zap.String("slot_id", slot.ID), zap.Time("date", occurrence), zap.String("code", errorCode(err)))
				continue
			}
			return generated, skipped, err
		}
		if created {
			generated++
		}
	}
	return generated, skipped, nil
}

func (s *LessonGenerationService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.cfg.Policies.Write.Do(ctx, fn)
}
