package clock

import "time"

// Clock supplies the current instant and the fallback timezone for teachers that have
// not configured one.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// System is the wall clock.
type System struct {
	loc *time.Location
}

// NewSystem returns a wall clock defaulting to the named IANA zone (UTC when empty or unknown).
func NewSystem(defaultZone string) System {
	loc, err := time.LoadLocation(defaultZone)
	if err != nil || defaultZone == "" {
		loc = time.UTC
	}
	return System{loc: loc}
}

func (s System) Now() time.Time { return time.Now() }

func (s System) Location() *time.Location {
	if s.loc == nil {
		return time.UTC
	}
	return s.loc
}

// Fixed is a clock frozen at a given instant, used by tests and one-off job runs.
type Fixed struct {
	At  time.Time
	Loc *time.Location
}

func (f Fixed) Now() time.Time { return f.At }

func (f Fixed) Location() *time.Location {
	if f.Loc == nil {
		return time.UTC
	}
	return f.Loc
}
