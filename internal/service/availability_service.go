package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/retry"
)

type availabilityReader interface {
	ListByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) ([]models.TeacherAvailability, error)
}

type availabilityStore interface {
	availabilityReader
	ReplaceForTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string, windows []models.TeacherAvailability) error
}

type blockedTimeReader interface {
	ListOverlapping(ctx context.Context, exec sqlx.ExtContext, teacherID string, from, to time.Time) ([]models.BlockedTime, error)
}

type blockedTimeStore interface {
	blockedTimeReader
	Create(ctx context.Context, exec sqlx.ExtContext, blocked *models.BlockedTime) error
	Delete(ctx context.Context, exec sqlx.ExtContext, teacherID, id string) (bool, error)
}

// ResolveWindows computes the open windows of a teacher on the local calendar day of
// day in loc: the active weekly windows for that weekday, unioned, minus the union of
// blocked ranges. The result is ordered and non-overlapping; a weekday without
// configuration yields an empty slice.
func ResolveWindows(day time.Time, loc *time.Location, availability []models.TeacherAvailability, blocked []models.BlockedTime) []models.Window {
	return resolveDays(day, day, loc, availability, blocked)
}

// resolveDays resolves every local day from first to last inclusive as one merged set,
// so a window ending at 24:00 joins one starting at 00:00 the next day.
func resolveDays(first, last time.Time, loc *time.Location, availability []models.TeacherAvailability, blocked []models.BlockedTime) []models.Window {
	if loc == nil {
		loc = time.UTC
	}
	var raw []models.Window
	lastDay := startOfDay(last, loc)
	for d := startOfDay(first, loc); !d.After(lastDay); d = nextDay(d, loc) {
		raw = append(raw, weeklyWindowsOn(d, loc, availability)...)
	}
	if len(raw) == 0 {
		return []models.Window{}
	}

	cuts := make([]models.Window, 0, len(blocked))
	for _, b := range blocked {
		if b.EndTime.After(b.StartTime) {
			cuts = append(cuts, models.Window{Start: b.StartTime, End: b.EndTime})
		}
	}

	open := subtractWindows(mergeWindows(raw), mergeWindows(cuts))
	for i := range open {
		open[i].Start = open[i].Start.In(loc)
		open[i].End = open[i].End.In(loc)
	}
	return open
}

func weeklyWindowsOn(day time.Time, loc *time.Location, availability []models.TeacherAvailability) []models.Window {
	y, m, d := day.Date()
	weekday := int(day.Weekday())
	var windows []models.Window
	for _, a := range availability {
		if !a.IsActive || a.DayOfWeek != weekday {
			continue
		}
		start, err := models.ParseClock(a.StartTime)
		if err != nil {
			continue
		}
		end, err := models.ParseClock(a.EndTime)
		if err != nil || end <= start {
			continue
		}
		windows = append(windows, models.Window{
			Start: time.Date(y, m, d, 0, start, 0, 0, loc),
			End:   time.Date(y, m, d, 0, end, 0, 0, loc),
		})
	}
	return windows
}

// mergeWindows unions overlapping or touching ranges.
func mergeWindows(windows []models.Window) []models.Window {
	if len(windows) == 0 {
		return nil
	}
	sorted := make([]models.Window, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []models.Window{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// subtractWindows removes cuts from windows. Both inputs must be merged and sorted.
func subtractWindows(windows, cuts []models.Window) []models.Window {
	out := make([]models.Window, 0, len(windows))
	for _, w := range windows {
		cursor := w.Start
		for _, c := range cuts {
			if !c.End.After(cursor) {
				continue
			}
			if !c.Start.Before(w.End) {
				break
			}
			if c.Start.After(cursor) {
				out = append(out, models.Window{Start: cursor, End: c.Start})
			}
			cursor = c.End
			if !cursor.Before(w.End) {
				break
			}
		}
		if cursor.Before(w.End) {
			out = append(out, models.Window{Start: cursor, End: w.End})
		}
	}
	return out
}

func fitsWindow(windows []models.Window, start, end time.Time) bool {
	for _, w := range windows {
		if w.Contains(start, end) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func nextDay(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// AvailabilityService serves open windows and maintains weekly availability and
// blocked times. Weekly configuration reads go through the cache; writes invalidate it.
type AvailabilityService struct {
	availability availabilityStore
	blocked      blockedTimeStore
	teachers     teacherDirectory
	tx           transactor
	cache        *CacheService
	clock        clock.Clock
	validator    *validator.Validate
	logger       *zap.Logger
	readPolicy   retry.Policy
	timeout      time.Duration
	cacheTTL     time.Duration
}

// AvailabilityServiceConfig carries the tunables of AvailabilityService.
type AvailabilityServiceConfig struct {
	ReadPolicy   retry.Policy
	StoreTimeout time.Duration
	CacheTTL     time.Duration
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(availability availabilityStore, blocked blockedTimeStore, teachers teacherDirectory, tx transactor, cache *CacheService, clk clock.Clock, cfg AvailabilityServiceConfig, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewSystem("UTC")
	}
	return &AvailabilityService{
		availability: availability,
		blocked:      blocked,
		teachers:     teachers,
		tx:           tx,
		cache:        cache,
		clock:        clk,
		validator:    validate,
		logger:       logger,
		readPolicy:   cfg.ReadPolicy,
		timeout:      storeTimeout(cfg.StoreTimeout),
		cacheTTL:     cfg.CacheTTL,
	}
}

func availabilityCacheKey(teacherID string) string {
	return "availability:weekly:" + teacherID
}

// OpenWindows returns the bookable windows of a teacher on a YYYY-MM-DD date in the
// teacher's timezone.
func (s *AvailabilityService) OpenWindows(ctx context.Context, teacherID, date string) (*dto.OpenWindowsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	settings, err := loadSettings(ctx, s.teachers, s.readPolicy, teacherID)
	if err != nil {
		return nil, err
	}
	loc := settings.Location(s.clock.Location())

	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}

	weekly, err := s.weeklyAvailability(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	var blocked []models.BlockedTime
	err = s.readPolicy.Do(ctx, func(ctx context.Context) error {
		var err error
		blocked, err = s.blocked.ListOverlapping(ctx, nil, teacherID, day, nextDay(day, loc))
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load blocked times")
	}

	return &dto.OpenWindowsResponse{
		TeacherID: teacherID,
		Date:      date,
		Timezone:  loc.String(),
		Windows:   ResolveWindows(day, loc, weekly, blocked),
	}, nil
}

func (s *AvailabilityService) weeklyAvailability(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error) {
	key := availabilityCacheKey(teacherID)
	var cached []models.TeacherAvailability
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	var weekly []models.TeacherAvailability
	err := s.readPolicy.Do(ctx, func(ctx context.Context) error {
		var err error
		weekly, err = s.availability.ListByTeacher(ctx, nil, teacherID)
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load availability")
	}

	_ = s.cache.Set(ctx, key, weekly, s.cacheTTL)
	return weekly, nil
}

// ReplaceWeekly swaps the teacher's weekly availability.
func (s *AvailabilityService) ReplaceWeekly(ctx context.Context, actor models.Actor, teacherID string, req dto.ReplaceAvailabilityRequest) ([]models.TeacherAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if !actsForTeacher(actor, teacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the teacher or an admin may change availability")
	}

	windows := make([]models.TeacherAvailability, 0, len(req.Windows))
	for i, w := range req.Windows {
		start, err := models.ParseClock(w.StartTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("windows[%d].startTime is invalid", i))
		}
		end, err := models.ParseClock(w.EndTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("windows[%d].endTime is invalid", i))
		}
		if start >= end {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("windows[%d] must start before it ends", i))
		}
		active := true
		if w.IsActive != nil {
			active = *w.IsActive
		}
		windows = append(windows, models.TeacherAvailability{
			TeacherID: teacherID,
			DayOfWeek: *w.DayOfWeek,
			StartTime: models.FormatClock(start),
			EndTime:   models.FormatClock(end),
			IsActive:  active,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := loadSettings(ctx, s.teachers, s.readPolicy, teacherID); err != nil {
		return nil, err
	}

	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		return s.availability.ReplaceForTeacher(ctx, exec, teacherID, windows)
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to replace availability")
	}

	s.invalidate(ctx, teacherID)
	s.logger.Info("availability replaced", zap.String("teacher_id", teacherID), zap.Int("windows", len(windows)))
	return windows, nil
}

// AddBlockedTime blocks a concrete range for the teacher.
func (s *AvailabilityService) AddBlockedTime(ctx context.Context, actor models.Actor, teacherID string, req dto.CreateBlockedTimeRequest) (*models.BlockedTime, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid blocked time payload")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endTime must be after startTime")
	}
	if !actsForTeacher(actor, teacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the teacher or an admin may block time")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := loadSettings(ctx, s.teachers, s.readPolicy, teacherID); err != nil {
		return nil, err
	}

	blocked := &models.BlockedTime{
		TeacherID: teacherID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
	}
	if req.Reason != "" {
		reason := req.Reason
		blocked.Reason = &reason
	}
	if err := s.blocked.Create(ctx, nil, blocked); err != nil {
		return nil, appErrors.Internal(err, "failed to create blocked time")
	}

	s.invalidate(ctx, teacherID)
	return blocked, nil
}

// RemoveBlockedTime deletes a blocked range of the teacher.
func (s *AvailabilityService) RemoveBlockedTime(ctx context.Context, actor models.Actor, teacherID, blockedID string) error {
	if !actsForTeacher(actor, teacherID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the teacher or an admin may remove blocked time")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.blocked.Delete(ctx, nil, teacherID, blockedID)
	if err != nil {
		return appErrors.Internal(err, "failed to delete blocked time")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "blocked time not found")
	}

	s.invalidate(ctx, teacherID)
	return nil
}

func (s *AvailabilityService) invalidate(ctx context.Context, teacherID string) {
	if err := s.cache.Invalidate(ctx, availabilityCacheKey(teacherID)); err != nil {
		s.logger.Warn("availability cache invalidation failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

func loadSettings(ctx context.Context, teachers teacherDirectory, policy retry.Policy, teacherID string) (*models.TeacherSettings, error) {
	var settings *models.TeacherSettings
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		settings, err = teachers.GetSettings(ctx, nil, teacherID)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Internal(err, "failed to load teacher settings")
	}
	return settings, nil
}
