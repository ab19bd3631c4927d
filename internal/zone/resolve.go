package zone

import (
	"fmt"
	"strings"
	"time"

	"github.com/tartampluch/icaltz/internal/config"
)

// Kind classifies how a wall-clock value maps onto the zone's offsets.
type Kind int

const (
	// Unambiguous values map to exactly one offset.
	Unambiguous Kind = iota
	// Ambiguous local values occur twice, in the repeated hour after DST ends.
	Ambiguous
	// Skipped local values never occur, they fall in the hour lost when DST starts.
	Skipped
)

func (k Kind) String() string {
	switch k {
	case Unambiguous:
		return "unambiguous"
	case Ambiguous:
		return "ambiguous"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Policy decides which offset applies to ambiguous or skipped local times.
type Policy int

const (
	// PolicyRFC5545 follows RFC 5545 section 3.3.5: an ambiguous time refers to
	// its first occurrence (DST offset), a skipped time is interpreted with the
	// offset in effect before the gap (standard offset).
	PolicyRFC5545 Policy = iota
	PolicyPreferStandard
	PolicyPreferDaylight
	PolicyReject
)

var policyNames = map[Policy]string{
	PolicyRFC5545:        config.PolicyRFC5545,
	PolicyPreferStandard: config.PolicyStandard,
	PolicyPreferDaylight: config.PolicyDaylight,
	PolicyReject:         config.PolicyReject,
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy maps a policy name (see config.Policy*) to a Policy.
func ParsePolicy(s string) (Policy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range policyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%s: %q", config.ErrPolicy, s)
}

// Resolution is the outcome of mapping a date-time onto a zone.
type Resolution struct {
	Kind Kind

	// Offset and DST describe the single applicable offset of an
	// Unambiguous resolution.
	Offset time.Duration
	DST    bool

	// Both candidate offsets of the zone, for callers that apply their own policy.
	Standard time.Duration
	Daylight time.Duration
}

// Apply picks the offset according to the policy.
func (r Resolution) Apply(p Policy) (offset time.Duration, dst bool, err error) {
	switch r.Kind {
	case Unambiguous:
		return r.Offset, r.DST, nil
	case Ambiguous:
		switch p {
		case PolicyRFC5545, PolicyPreferDaylight:
			return r.Daylight, true, nil
		case PolicyPreferStandard:
			return r.Standard, false, nil
		}
		return 0, false, ErrAmbiguousTime
	case Skipped:
		switch p {
		case PolicyRFC5545, PolicyPreferStandard:
			return r.Standard, false, nil
		case PolicyPreferDaylight:
			return r.Daylight, true, nil
		}
		return 0, false, ErrSkippedTime
	}
	return 0, false, fmt.Errorf("%w: resolution kind %s", ErrOffset, r.Kind)
}

// Resolve classifies wall against the zone's DST transitions.
//
// When local is true, wall is read as the zone's own wall clock and compared
// directly with the 02:00 transition moments. Otherwise wall is an absolute
// instant (its location is honoured, a naive value is taken as UTC): DST starts
// when standard time reaches 02:00 and ends when DST time reaches 02:00.
//
// All intervals are half-open. A UTC instant exactly at a transition belongs to
// the new regime. A local 02:00 on the start day is skipped, 03:00 is DST. A
// local 01:00 on the end day is ambiguous, 02:00 is standard.
func Resolve(wall time.Time, local bool, tz Timezone) (Resolution, error) {
	if err := checkOffset(tz.StandardOffset); err != nil {
		return Resolution{}, err
	}
	if err := checkOffset(tz.DSTOffset); err != nil {
		return Resolution{}, err
	}

	res := Resolution{Standard: tz.StandardOffset, Daylight: tz.DSTOffset}
	if !tz.HasDST() {
		res.Offset = tz.StandardOffset
		return res, nil
	}

	if local {
		return resolveLocal(civil(wall), tz, res)
	}
	return resolveUTC(wall.UTC(), tz, res)
}

func resolveUTC(u time.Time, tz Timezone, res Resolution) (Resolution, error) {
	// The rules are stated in local terms, pick the year on the standard clock.
	start, end, err := tz.Transitions(u.Add(tz.StandardOffset).Year())
	if err != nil {
		return Resolution{}, err
	}
	startUTC := start.Add(-tz.StandardOffset)
	endUTC := end.Add(-tz.DSTOffset)

	res.DST = inDST(u, startUTC, endUTC)
	res.Offset = tz.StandardOffset
	if res.DST {
		res.Offset = tz.DSTOffset
	}
	return res, nil
}

func resolveLocal(w time.Time, tz Timezone, res Resolution) (Resolution, error) {
	start, end, err := tz.Transitions(w.Year())
	if err != nil {
		return Resolution{}, err
	}
	delta := tz.Delta()
	gapEnd := start.Add(delta)
	overlapStart := end.Add(-delta)

	switch {
	case within(w, start, gapEnd):
		res.Kind = Skipped
		return res, nil
	case within(w, overlapStart, end):
		res.Kind = Ambiguous
		return res, nil
	}

	res.DST = inDST(w, gapEnd, overlapStart)
	res.Offset = tz.StandardOffset
	if res.DST {
		res.Offset = tz.DSTOffset
	}
	return res, nil
}

// inDST reports whether t lies in the DST period [from, to). When from is
// after to, the period wraps the year end.
func inDST(t, from, to time.Time) bool {
	if from.Before(to) {
		return within(t, from, to)
	}
	return t.Before(to) || !t.Before(from)
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// civil drops the location of t, keeping its wall-clock fields.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ResolveOffset returns the UTC offset that applies to wall in tz, using
// PolicyRFC5545 for skipped and ambiguous local times.
func ResolveOffset(wall time.Time, local bool, tz Timezone) (time.Duration, error) {
	res, err := Resolve(wall, local, tz)
	if err != nil {
		return 0, err
	}
	off, _, err := res.Apply(PolicyRFC5545)
	return off, err
}

// ResolvedInstant is a date, time and UTC offset: an absolute point in time
// together with how it was obtained.
type ResolvedInstant struct {
	// Time carries the zone's wall clock in a fixed-offset location.
	Time   time.Time
	ZoneID string
	Offset time.Duration
	DST    bool
	Kind   Kind
}

// ResolveInstant resolves wall in tz and attaches the resulting offset.
// UTC inputs are converted to the zone's wall clock, local inputs keep their
// wall clock. A skipped local time has no wall clock of its own: it is read
// with the policy's offset and normalized to the wall clock the zone shows
// at that instant, so Offset and DST describe the regime actually in effect.
func ResolveInstant(wall time.Time, local bool, tz Timezone, p Policy) (ResolvedInstant, error) {
	res, err := Resolve(wall, local, tz)
	if err != nil {
		return ResolvedInstant{}, err
	}
	off, dst, err := res.Apply(p)
	if err != nil {
		return ResolvedInstant{}, fmt.Errorf("%s: %s: %w", tz.ID, civil(wall).Format(config.DateTimeFormatDisplay), err)
	}

	loc := time.FixedZone(tz.Abbreviation(dst), int(off/time.Second))
	var t time.Time
	if local {
		w := civil(wall)
		t = time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), loc)
	} else {
		t = wall.In(loc)
	}

	if res.Kind == Skipped {
		actual, err := Resolve(t.UTC(), false, tz)
		if err != nil {
			return ResolvedInstant{}, err
		}
		off, dst = actual.Offset, actual.DST
		t = t.In(time.FixedZone(tz.Abbreviation(dst), int(off/time.Second)))
	}

	return ResolvedInstant{
		Time:   t,
		ZoneID: tz.ID,
		Offset: off,
		DST:    dst,
		Kind:   res.Kind,
	}, nil
}
