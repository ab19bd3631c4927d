// Package zonedb provides the zone definitions the resolver works against:
// a built-in table, zones loaded from VTIMEZONE components, and the means to
// fetch and re-encode them.
package zonedb

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/zone"
)

var (
	ErrUnknownZone     = errors.New(config.ErrUnknownZone)
	ErrUnsupportedRule = errors.New(config.ErrUnsupportedRule)
	ErrVTimezone       = errors.New(config.ErrVTimezone)
)

// Lookup resolves a zone identifier to its definition.
type Lookup interface {
	Lookup(id string) (zone.Timezone, error)
}

// Lister enumerates the zones a Lookup knows about.
type Lister interface {
	Zones() []zone.Timezone
}

// Static is an immutable zone table. It is safe for concurrent use.
type Static struct {
	zones map[string]zone.Timezone
}

// NewStatic builds a table from the given definitions. Invalid definitions are
// rejected so that lookups never hand out a zone the resolver cannot handle.
func NewStatic(zones ...zone.Timezone) (*Static, error) {
	s := &Static{zones: make(map[string]zone.Timezone, len(zones))}
	for _, tz := range zones {
		if err := tz.Validate(); err != nil {
			return nil, err
		}
		s.zones[tz.ID] = tz
	}
	return s, nil
}

// Builtin returns the built-in table: North American zones following the
// post-2007 rule (2nd Sunday of March to 1st Sunday of November, 02:00 local)
// and a few zones without DST.
func Builtin() *Static {
	zones := builtinZones()
	s := &Static{zones: make(map[string]zone.Timezone, len(zones))}
	for _, tz := range zones {
		s.zones[tz.ID] = tz
	}
	return s
}

func (s *Static) Lookup(id string) (zone.Timezone, error) {
	if tz, ok := s.zones[id]; ok {
		return tz, nil
	}
	return zone.Timezone{}, fmt.Errorf("%w: %q", ErrUnknownZone, id)
}

// Zones returns every zone of the table, sorted by ID.
func (s *Static) Zones() []zone.Timezone {
	out := make([]zone.Timezone, 0, len(s.zones))
	for _, tz := range s.zones {
		out = append(out, tz)
	}
	sortZones(out)
	return out
}

func sortZones(zones []zone.Timezone) {
	slices.SortFunc(zones, func(a, b zone.Timezone) int {
		return strings.Compare(a.ID, b.ID)
	})
}

var (
	usStart = zone.RecurringRule{Frequency: zone.Yearly, Month: time.March, Occurrence: zone.Nth(2), Weekday: time.Sunday}
	usEnd   = zone.RecurringRule{Frequency: zone.Yearly, Month: time.November, Occurrence: zone.Nth(1), Weekday: time.Sunday}
)

func northAmerican(id string, std time.Duration, stdName, dstName string) zone.Timezone {
	return zone.Timezone{
		ID:             id,
		StandardOffset: std,
		DSTOffset:      std + time.Hour,
		DSTStart:       usStart,
		DSTEnd:         usEnd,
		StandardName:   stdName,
		DSTName:        dstName,
	}
}

func standardOnly(id string, std time.Duration, name string) zone.Timezone {
	return zone.Timezone{
		ID:             id,
		StandardOffset: std,
		DSTOffset:      std,
		StandardName:   name,
		DSTName:        name,
	}
}

func builtinZones() []zone.Timezone {
	return []zone.Timezone{
		northAmerican("America/St_Johns", -(3*time.Hour + 30*time.Minute), "NST", "NDT"),
		northAmerican("America/Halifax", -4*time.Hour, "AST", "ADT"),
		northAmerican("America/New_York", -5*time.Hour, "EST", "EDT"),
		northAmerican("America/Toronto", -5*time.Hour, "EST", "EDT"),
		northAmerican("America/Chicago", -6*time.Hour, "CST", "CDT"),
		northAmerican("America/Denver", -7*time.Hour, "MST", "MDT"),
		northAmerican("America/Los_Angeles", -8*time.Hour, "PST", "PDT"),
		northAmerican("America/Vancouver", -8*time.Hour, "PST", "PDT"),
		northAmerican("America/Anchorage", -9*time.Hour, "AKST", "AKDT"),
		standardOnly("America/Phoenix", -7*time.Hour, "MST"),
		standardOnly("Pacific/Honolulu", -10*time.Hour, "HST"),
		standardOnly(config.UTCZoneID, 0, config.UTCZoneID),
	}
}
