package zone

import (
	"fmt"
	"time"

	"github.com/tartampluch/icaltz/internal/config"
)

// Frequency is the recurrence unit of a rule. Only Yearly is meaningful for
// DST transitions.
type Frequency int

const (
	Yearly Frequency = iota + 1
)

func (f Frequency) String() string {
	if f == Yearly {
		return config.RRuleFreqYearly
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

// OccurrenceForm tells how an Occurrence picks a weekday inside a month.
type OccurrenceForm int

const (
	// OccurrenceNth selects the N-th weekday counted from the first of the month.
	OccurrenceNth OccurrenceForm = iota
	// OccurrenceLast selects the last weekday of the month.
	OccurrenceLast
)

// Occurrence is either "the N-th" or "the last" weekday of a month.
type Occurrence struct {
	Form OccurrenceForm
	N    int // 1-based, only meaningful for OccurrenceNth
}

// Nth returns the occurrence "n-th weekday of the month".
func Nth(n int) Occurrence {
	return Occurrence{Form: OccurrenceNth, N: n}
}

// Last returns the occurrence "last weekday of the month".
func Last() Occurrence {
	return Occurrence{Form: OccurrenceLast}
}

// Resolve returns the date of this occurrence of weekday in the given month.
func (o Occurrence) Resolve(year int, month time.Month, weekday time.Weekday) (time.Time, error) {
	switch o.Form {
	case OccurrenceNth:
		return NthWeekday(o.N, year, month, weekday)
	case OccurrenceLast:
		return LastWeekday(year, month, weekday)
	}
	return time.Time{}, fmt.Errorf("%w: occurrence form %d", ErrInvalidRule, o.Form)
}

func (o Occurrence) String() string {
	if o.Form == OccurrenceLast {
		return "last"
	}
	switch o.N % 10 {
	case 1:
		if o.N%100 != 11 {
			return fmt.Sprintf("%dst", o.N)
		}
	case 2:
		if o.N%100 != 12 {
			return fmt.Sprintf("%dnd", o.N)
		}
	case 3:
		if o.N%100 != 13 {
			return fmt.Sprintf("%drd", o.N)
		}
	}
	return fmt.Sprintf("%dth", o.N)
}

// RecurringRule describes one annual DST boundary, e.g. "2nd Sunday in March".
type RecurringRule struct {
	Frequency  Frequency
	Month      time.Month
	Occurrence Occurrence
	Weekday    time.Weekday

	// Until and Count bound the years in which the rule applies. They are
	// informational only and are not consulted by the resolver.
	Until time.Time
	Count int
}

// Validate checks that the rule yields exactly one date per year.
func (r RecurringRule) Validate() error {
	if r.Frequency != Yearly {
		return fmt.Errorf("%w: %s: %s", ErrInvalidRule, config.ErrFrequency, r.Frequency)
	}
	if r.Month < time.January || r.Month > time.December {
		return fmt.Errorf("%w: %s: %d", ErrInvalidRule, config.ErrMonthRange, r.Month)
	}
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d", ErrInvalidRule, r.Weekday)
	}
	switch r.Occurrence.Form {
	case OccurrenceLast:
	case OccurrenceNth:
		// A fifth weekday does not exist every year.
		if r.Occurrence.N < 1 || r.Occurrence.N > 4 {
			return fmt.Errorf("%w: %s: %d", ErrInvalidRule, config.ErrNthRange, r.Occurrence.N)
		}
	default:
		return fmt.Errorf("%w: occurrence form %d", ErrInvalidRule, r.Occurrence.Form)
	}
	return nil
}

// Date evaluates the rule for the given year.
func (r RecurringRule) Date(year int) (time.Time, error) {
	return r.Occurrence.Resolve(year, r.Month, r.Weekday)
}

func (r RecurringRule) String() string {
	return fmt.Sprintf("%s %s of %s", r.Occurrence, r.Weekday, r.Month)
}

const maxOccurrences = 5

// NthWeekday returns the date of the n-th occurrence of weekday in the given
// month. It fails with ErrInvalidDate when n < 1 or when the month has fewer
// than n such weekdays.
func NthWeekday(n int, year int, month time.Month, weekday time.Weekday) (time.Time, error) {
	if err := checkMonthWeekday(month, weekday); err != nil {
		return time.Time{}, err
	}
	if n < 1 {
		return time.Time{}, fmt.Errorf("%w: %s: %d", ErrInvalidDate, config.ErrNthPositive, n)
	}
	// No month holds more than five of a weekday. Checked before (n-1)*7 can overflow.
	if n > maxOccurrences {
		return time.Time{}, fmt.Errorf("%w: %s: %d %s in %s %d",
			ErrInvalidDate, config.ErrNthRange, n, weekday, month, year)
	}

	first := civilDate(year, month, 1)
	diff := int(weekday) - int(first.Weekday())
	if diff < 0 {
		diff += 7
	}

	day := 1 + diff + (n-1)*7
	if day > DaysIn(year, month) {
		return time.Time{}, fmt.Errorf("%w: %s: %d %s in %s %d",
			ErrInvalidDate, config.ErrNthRange, n, weekday, month, year)
	}
	return civilDate(year, month, day), nil
}

// LastWeekday returns the date of the last occurrence of weekday in the given month.
func LastWeekday(year int, month time.Month, weekday time.Weekday) (time.Time, error) {
	if err := checkMonthWeekday(month, weekday); err != nil {
		return time.Time{}, err
	}

	lastDay := DaysIn(year, month)
	offset := int(civilDate(year, month, lastDay).Weekday()) - int(weekday)
	if offset < 0 {
		offset += 7
	}
	return civilDate(year, month, lastDay-offset), nil
}

func checkMonthWeekday(month time.Month, weekday time.Weekday) error {
	if month < time.January || month > time.December {
		return fmt.Errorf("%w: %s: %d", ErrInvalidDate, config.ErrMonthRange, month)
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d", ErrInvalidDate, weekday)
	}
	return nil
}

// civilDate returns midnight of the given day as a naive (UTC) value.
func civilDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysIn reports the number of days in the given month, accounting for leap years.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
