package zone

import (
	"errors"
	"fmt"
	"time"

	"github.com/tartampluch/icaltz/internal/config"
)

var (
	ErrInvalidDate     = errors.New(config.ErrInvalidDate)
	ErrInvalidRule     = errors.New(config.ErrRule)
	ErrInvalidTimezone = errors.New(config.ErrTimezone)
	ErrOffset          = errors.New(config.ErrOffset)
	ErrSkippedTime     = errors.New(config.ErrSkippedTime)
	ErrAmbiguousTime   = errors.New(config.ErrAmbiguousTime)
)

// TransitionTime is the local time of day at which both DST rules fire.
const TransitionTime = config.TransitionHour * time.Hour

// Timezone is a named zone observing an annually recurring DST rule.
// A Timezone is read-only once built and may be shared between goroutines.
type Timezone struct {
	ID             string
	StandardOffset time.Duration
	DSTOffset      time.Duration
	DSTStart       RecurringRule
	DSTEnd         RecurringRule

	// Abbreviations used when rendering resolved instants, e.g. PST/PDT.
	StandardName string
	DSTName      string
}

// HasDST reports whether the zone observes daylight saving time at all.
func (tz Timezone) HasDST() bool {
	return tz.DSTOffset != tz.StandardOffset
}

// Delta returns the amount by which the clocks move at each transition.
func (tz Timezone) Delta() time.Duration {
	return tz.DSTOffset - tz.StandardOffset
}

// Southern reports whether the DST period wraps the calendar year, as in the
// southern hemisphere where DST starts in spring (October) and ends in April.
func (tz Timezone) Southern() bool {
	return tz.HasDST() && tz.DSTStart.Month > tz.DSTEnd.Month
}

// Validate checks the invariants the resolver relies on.
func (tz Timezone) Validate() error {
	if tz.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTimezone)
	}
	if err := checkOffset(tz.StandardOffset); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTimezone, tz.ID, err)
	}
	if err := checkOffset(tz.DSTOffset); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTimezone, tz.ID, err)
	}
	if !tz.HasDST() {
		return nil
	}
	if tz.DSTOffset < tz.StandardOffset {
		return fmt.Errorf("%w: %s: %s", ErrInvalidTimezone, tz.ID, config.ErrDSTOffset)
	}
	if err := tz.DSTStart.Validate(); err != nil {
		return fmt.Errorf("%w: %s: start: %w", ErrInvalidTimezone, tz.ID, err)
	}
	if err := tz.DSTEnd.Validate(); err != nil {
		return fmt.Errorf("%w: %s: end: %w", ErrInvalidTimezone, tz.ID, err)
	}
	if tz.DSTStart.Month == tz.DSTEnd.Month {
		return fmt.Errorf("%w: %s: %s", ErrInvalidTimezone, tz.ID, config.ErrRuleMonths)
	}
	return nil
}

// Transitions returns the wall-clock moments (naive, in time.UTC) at which
// DST starts and ends in the given year.
func (tz Timezone) Transitions(year int) (start, end time.Time, err error) {
	sd, err := tz.DSTStart.Date(year)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: start: %w", tz.ID, err)
	}
	ed, err := tz.DSTEnd.Date(year)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: end: %w", tz.ID, err)
	}
	return sd.Add(TransitionTime), ed.Add(TransitionTime), nil
}

// Abbreviation returns the zone abbreviation for the given regime.
func (tz Timezone) Abbreviation(dst bool) string {
	if dst {
		return tz.DSTName
	}
	return tz.StandardName
}

func checkOffset(off time.Duration) error {
	if off < -config.MaxOffset || off > config.MaxOffset || off%time.Second != 0 {
		return fmt.Errorf("%w: %s", ErrOffset, off)
	}
	return nil
}
