// Package datetime parses iCalendar (RFC 5545) DATE-TIME values.
//
// Two textual forms are accepted:
//
//	YYYYMMDDTHHMMSSZ                  a UTC instant
//	TZID=<zone-name>:YYYYMMDDTHHMMSS  a wall-clock time in the named zone
//
// Floating times (no Z, no TZID) are rejected since they cannot be resolved
// to an offset.
package datetime

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/zone"
)

var (
	// ErrFormat reports input that does not follow the DATE-TIME grammar.
	ErrFormat = errors.New(config.ErrFormat)

	// ErrInvalidValue reports a well-formed value holding an impossible date
	// or time. It wraps ErrFormat.
	ErrInvalidValue = fmt.Errorf("%s: %w", config.ErrInvalidValue, ErrFormat)
)

// Timestamp is a parsed DATE-TIME value.
type Timestamp struct {
	// Wall holds the civil date and time fields, carried in time.UTC.
	Wall time.Time
	// ZoneID is the TZID for zone-local values, empty for UTC values.
	ZoneID string
}

// IsLocal reports whether the value names a zone, i.e. Wall is a local wall
// clock rather than a UTC instant.
func (ts Timestamp) IsLocal() bool {
	return ts.ZoneID != ""
}

// String returns the canonical iCalendar form of the value.
func (ts Timestamp) String() string {
	if !ts.IsLocal() {
		return ts.Wall.Format(config.UTCDateLayout)
	}
	return TZIDPrefix(ts.ZoneID) + ts.Wall.Format(config.DateTimeLayout)
}

// TZIDPrefix returns the "TZID=<id>:" prefix of a zone-local value, quoting
// the name when it contains iCalendar separators.
func TZIDPrefix(id string) string {
	if strings.ContainsAny(id, config.TZIDSpecialChars) {
		id = config.QuoteChar + id + config.QuoteChar
	}
	return config.TZIDPrefix + id + config.TZIDSeparator
}

// Parse reads a DATE-TIME value in UTC or TZID form.
func Parse(text string) (Timestamp, error) {
	if strings.HasPrefix(text, config.TZIDPrefix) {
		return parseLocal(text)
	}
	return parseUTC(text)
}

func parseUTC(text string) (Timestamp, error) {
	if len(text) != config.UTCDateTimeLen {
		if len(text) == config.DateTimeLen {
			return Timestamp{}, fmt.Errorf("%w: %s: %q", ErrFormat, config.ErrMissingUTC, text)
		}
		return Timestamp{}, fmt.Errorf("%w: %s: %q", ErrFormat, config.ErrBadLength, text)
	}
	if text[config.DateTimeLen] != config.UTCDesignator {
		return Timestamp{}, fmt.Errorf("%w: %s: %q", ErrFormat, config.ErrMissingUTC, text)
	}

	wall, err := parseWall(text[:config.DateTimeLen])
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Wall: wall}, nil
}

func parseLocal(text string) (Timestamp, error) {
	rest := text[len(config.TZIDPrefix):]

	// The date-time part never contains a colon, the zone name might if quoted.
	sep := strings.LastIndex(rest, config.TZIDSeparator)
	if sep < 0 {
		return Timestamp{}, fmt.Errorf("%w: %s: %q", ErrFormat, config.ErrMissingTZID, text)
	}

	id, err := unquoteTZID(rest[:sep])
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: %s: %q", ErrFormat, err, text)
	}
	if strings.TrimSpace(id) == "" {
		return Timestamp{}, fmt.Errorf("%w: %s: %q", ErrFormat, config.ErrEmptyTZID, text)
	}

	value := rest[sep+1:]
	if len(value) != config.DateTimeLen {
		return Timestamp{}, fmt.Errorf("%w: %s: %q", ErrFormat, config.ErrBadLength, text)
	}

	wall, err := parseWall(value)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Wall: wall, ZoneID: id}, nil
}

// unquoteTZID strips the quotes of a quoted TZID. A quoted name may hold any
// character but a quote; an unquoted one neither separators nor quotes.
func unquoteTZID(id string) (string, error) {
	if !strings.HasPrefix(id, config.QuoteChar) {
		if strings.ContainsAny(id, config.QuoteChar+config.TZIDSpecialChars) {
			return "", errors.New(config.ErrTZIDQuoting)
		}
		return id, nil
	}
	inner, ok := strings.CutSuffix(id[1:], config.QuoteChar)
	if !ok || strings.Contains(inner, config.QuoteChar) {
		return "", errors.New(config.ErrTZIDQuoting)
	}
	return inner, nil
}

// parseWall decodes the 15-character YYYYMMDDTHHMMSS body.
func parseWall(s string) (time.Time, error) {
	if s[8] != config.TimeDesignator {
		return time.Time{}, fmt.Errorf("%w: %s: %q", ErrFormat, config.ErrMissingT, s)
	}

	fields := [...]struct{ from, to int }{
		{0, 4}, {4, 6}, {6, 8},
		{9, 11}, {11, 13}, {13, 15},
	}
	var n [len(fields)]int
	for i, f := range fields {
		v, ok := atoi(s[f.from:f.to])
		if !ok {
			return time.Time{}, fmt.Errorf("%w: %s: %q", ErrFormat, config.ErrNotNumeric, s)
		}
		n[i] = v
	}
	year, month, day, hour, minute, second := n[0], n[1], n[2], n[3], n[4], n[5]

	switch {
	case month < 1 || month > 12:
		return time.Time{}, fmt.Errorf("%w: %s: %d", ErrInvalidValue, config.ErrMonthRange, month)
	case day < 1 || day > zone.DaysIn(year, time.Month(month)):
		return time.Time{}, fmt.Errorf("%w: %s: %d", ErrInvalidValue, config.ErrDayRange, day)
	case hour > 23:
		return time.Time{}, fmt.Errorf("%w: %s: %d", ErrInvalidValue, config.ErrHourRange, hour)
	case minute > 59:
		return time.Time{}, fmt.Errorf("%w: %s: %d", ErrInvalidValue, config.ErrMinuteRange, minute)
	case second > 59:
		// Leap seconds are not supported.
		return time.Time{}, fmt.Errorf("%w: %s: %d", ErrInvalidValue, config.ErrSecondRange, second)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// atoi accepts ASCII digits only, unlike strconv.Atoi which allows a sign.
func atoi(s string) (int, bool) {
	v := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int(c-'0')
	}
	return v, true
}
