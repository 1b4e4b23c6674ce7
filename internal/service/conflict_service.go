package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

type overlapReader interface {
	FindOverlapping(ctx context.Context, exec sqlx.ExtContext, teacherID string, start, end time.Time) ([]models.Lesson, error)
}

// Candidate is a proposed lesson time for a teacher.
type Candidate struct {
	TeacherID string
	Start     time.Time
	Duration  int
}

// End returns the exclusive end of the candidate.
func (c Candidate) End() time.Time {
	return c.Start.Add(time.Duration(c.Duration) * time.Minute)
}

// CheckOptions toggles rules that only apply to interactive bookings.
type CheckOptions struct {
	// EnforceHorizon rejects candidates beyond the teacher's advance booking horizon.
	EnforceHorizon bool
}

// ConflictDetector decides whether a candidate can be booked. It reads fresh state
// through the executor it is given so checks inside a transaction see that
// transaction's view.
type ConflictDetector struct {
	availability     availabilityReader
	blocked          blockedTimeReader
	lessons          overlapReader
	clock            clock.Clock
	defaultHorizon   int
	defaultMinNotice time.Duration
}

// NewConflictDetector constructs a detector. defaultHorizonDays and defaultMinNotice
// apply to teachers whose settings leave them unset.
func NewConflictDetector(availability availabilityReader, blocked blockedTimeReader, lessons overlapReader, clk clock.Clock, defaultHorizonDays int, defaultMinNotice time.Duration) *ConflictDetector {
	if clk == nil {
		clk = clock.NewSystem("UTC")
	}
	if defaultHorizonDays <= 0 {
		defaultHorizonDays = 90
	}
	return &ConflictDetector{
		availability:     availability,
		blocked:          blocked,
		lessons:          lessons,
		clock:            clk,
		defaultHorizon:   defaultHorizonDays,
		defaultMinNotice: defaultMinNotice,
	}
}

// Check applies, in order: the candidate lies inside one open window (NOT_AVAILABLE),
// it overlaps no non-cancelled lesson of the teacher (ALREADY_BOOKED), and it is not in
// the past, inside the minimum notice or, when enforced, beyond the booking horizon
// (OUT_OF_BOOKING_WINDOW).
func (d *ConflictDetector) Check(ctx context.Context, exec sqlx.ExtContext, settings models.TeacherSettings, candidate Candidate, opts CheckOptions) error {
	loc := settings.Location(d.clock.Location())
	start, end := candidate.Start, candidate.End()

	availability, err := d.availability.ListByTeacher(ctx, exec, candidate.TeacherID)
	if err != nil {
		return appErrors.Internal(err, "failed to load availability")
	}
	blocked, err := d.blocked.ListOverlapping(ctx, exec, candidate.TeacherID, start, end)
	if err != nil {
		return appErrors.Internal(err, "failed to load blocked times")
	}
	windows := resolveDays(start, end.Add(-time.Nanosecond), loc, availability, blocked)
	if !fitsWindow(windows, start, end) {
		return appErrors.Clone(appErrors.ErrNotAvailable, fmt.Sprintf("teacher is not available at %s", start.In(loc).Format(time.RFC3339)))
	}

	existing, err := d.lessons.FindOverlapping(ctx, exec, candidate.TeacherID, start, end)
	if err != nil {
		return appErrors.Internal(err, "failed to load lessons")
	}
	if len(existing) > 0 {
		return appErrors.Clone(appErrors.ErrAlreadyBooked, fmt.Sprintf("requested time overlaps lesson %s", existing[0].ID))
	}

	return d.checkTiming(settings, start, opts)
}

func (d *ConflictDetector) checkTiming(settings models.TeacherSettings, start time.Time, opts CheckOptions) error {
	now := d.clock.Now()
	if start.Before(now) {
		return appErrors.Clone(appErrors.ErrOutOfWindow, "requested time is in the past")
	}

	notice := d.defaultMinNotice
	if settings.MinNoticeMinutes > 0 {
		notice = time.Duration(settings.MinNoticeMinutes) * time.Minute
	}
	if start.Before(now.Add(notice)) {
		return appErrors.Clone(appErrors.ErrOutOfWindow, fmt.Sprintf("lessons must be booked at least %s in advance", notice))
	}

	if opts.EnforceHorizon {
		days := d.defaultHorizon
		if settings.BookingHorizonDays > 0 {
			days = settings.BookingHorizonDays
		}
		if start.After(now.AddDate(0, 0, days)) {
			return appErrors.Clone(appErrors.ErrOutOfWindow, fmt.Sprintf("lessons can be booked at most %d days ahead", days))
		}
	}
	return nil
}
