package zonedb

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/zone"
)

// observance is one STANDARD or DAYLIGHT sub-component of a VTIMEZONE.
type observance struct {
	offsetTo time.Duration
	name     string
	start    string // raw DTSTART, local time
	rule     *rrule.ROption
}

// ParseVTimezone converts a VTIMEZONE component into a zone definition.
//
// Only the current observances are considered: for each of STANDARD and
// DAYLIGHT the sub-component with an open-ended RRULE wins, otherwise the one
// with the latest DTSTART. A VTIMEZONE with a STANDARD observance only yields
// a zone without DST.
func ParseVTimezone(comp *ical.Component) (zone.Timezone, error) {
	id, err := comp.Props.Text(ical.PropTimezoneID)
	if err != nil || id == "" {
		return zone.Timezone{}, fmt.Errorf("%w: %s %s", ErrVTimezone, config.ErrMissingProp, ical.PropTimezoneID)
	}

	std, err := currentObservance(comp, ical.CompTimezoneStandard)
	if err != nil {
		return zone.Timezone{}, fmt.Errorf("%w: %s: %w", ErrVTimezone, id, err)
	}
	dst, err := currentObservance(comp, ical.CompTimezoneDaylight)
	if err != nil {
		return zone.Timezone{}, fmt.Errorf("%w: %s: %w", ErrVTimezone, id, err)
	}
	if std == nil {
		return zone.Timezone{}, fmt.Errorf("%w: %s: %s %s", ErrVTimezone, id, config.ErrMissingProp, ical.CompTimezoneStandard)
	}

	tz := zone.Timezone{
		ID:             id,
		StandardOffset: std.offsetTo,
		DSTOffset:      std.offsetTo,
		StandardName:   std.name,
		DSTName:        std.name,
	}

	if dst != nil {
		if std.rule == nil || dst.rule == nil {
			return zone.Timezone{}, fmt.Errorf("%w: %s: %s", ErrUnsupportedRule, id, config.ErrNoRRule)
		}
		if tz.DSTStart, err = ruleFromOption(dst.rule); err != nil {
			return zone.Timezone{}, fmt.Errorf("%s: %s: %w", id, ical.CompTimezoneDaylight, err)
		}
		if tz.DSTEnd, err = ruleFromOption(std.rule); err != nil {
			return zone.Timezone{}, fmt.Errorf("%s: %s: %w", id, ical.CompTimezoneStandard, err)
		}
		tz.DSTOffset = dst.offsetTo
		tz.DSTName = dst.name
		warnTransitionTime(id, dst.start)
		warnTransitionTime(id, std.start)
	}

	if err := tz.Validate(); err != nil {
		return zone.Timezone{}, fmt.Errorf("%w: %w", ErrVTimezone, err)
	}
	return tz, nil
}

func currentObservance(comp *ical.Component, name string) (*observance, error) {
	var best *observance
	for _, child := range comp.Children {
		if child.Name != name {
			continue
		}
		obs, err := readObservance(child)
		if err != nil {
			return nil, err
		}
		if best == nil || newer(obs, best) {
			best = obs
		}
	}
	return best, nil
}

// newer reports whether a should replace b as the current observance.
func newer(a, b *observance) bool {
	ongoing := func(o *observance) bool { return o.rule != nil && o.rule.Until.IsZero() }
	if ongoing(a) != ongoing(b) {
		return ongoing(a)
	}
	// DTSTART values share the YYYYMMDDTHHMMSS form, they sort lexically.
	return a.start > b.start
}

func readObservance(comp *ical.Component) (*observance, error) {
	to := comp.Props.Get(ical.PropTimezoneOffsetTo)
	if to == nil {
		return nil, fmt.Errorf("%s: %s %s", comp.Name, config.ErrMissingProp, ical.PropTimezoneOffsetTo)
	}
	off, err := parseUTCOffset(to.Value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", comp.Name, err)
	}

	obs := &observance{offsetTo: off}
	if name := comp.Props.Get(ical.PropTimezoneName); name != nil {
		obs.name = name.Value
	}
	if start := comp.Props.Get(ical.PropDateTimeStart); start != nil {
		obs.start = start.Value
	}

	rule, err := comp.Props.RecurrenceRule()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedRule, comp.Name, err)
	}
	obs.rule = rule
	return obs, nil
}

// ruleFromOption maps the RRULE shapes used by VTIMEZONE generators onto a
// RecurringRule: BYDAY=2SU, BYDAY=SU;BYSETPOS=2 and BYDAY=SU;BYMONTHDAY=8,...,14.
func ruleFromOption(opt *rrule.ROption) (zone.RecurringRule, error) {
	switch {
	case opt.Freq != rrule.YEARLY:
		return zone.RecurringRule{}, fmt.Errorf("%w: FREQ=%s", ErrUnsupportedRule, opt.Freq)
	case opt.Interval > 1:
		return zone.RecurringRule{}, fmt.Errorf("%w: INTERVAL=%d", ErrUnsupportedRule, opt.Interval)
	case len(opt.Bymonth) != 1:
		return zone.RecurringRule{}, fmt.Errorf("%w: BYMONTH=%v", ErrUnsupportedRule, opt.Bymonth)
	case len(opt.Byweekday) != 1:
		return zone.RecurringRule{}, fmt.Errorf("%w: BYDAY=%v", ErrUnsupportedRule, opt.Byweekday)
	case len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0:
		return zone.RecurringRule{}, fmt.Errorf("%w: BYYEARDAY/BYWEEKNO", ErrUnsupportedRule)
	}

	day := &opt.Byweekday[0]
	n := day.N()
	switch {
	case n != 0 && (len(opt.Bysetpos) > 0 || len(opt.Bymonthday) > 0):
		return zone.RecurringRule{}, fmt.Errorf("%w: BYDAY=%s combined with BYSETPOS/BYMONTHDAY", ErrUnsupportedRule, day)
	case n == 0 && len(opt.Bysetpos) == 1 && len(opt.Bymonthday) == 0:
		n = opt.Bysetpos[0]
	case n == 0:
		var ok bool
		if n, ok = weekWindow(opt.Bymonthday); !ok {
			return zone.RecurringRule{}, fmt.Errorf("%w: BYMONTHDAY=%v", ErrUnsupportedRule, opt.Bymonthday)
		}
	}

	r := zone.RecurringRule{
		Frequency: zone.Yearly,
		Month:     time.Month(opt.Bymonth[0]),
		Weekday:   time.Weekday((day.Day() + 1) % 7), // rrule counts from Monday
		Until:     opt.Until,
		Count:     opt.Count,
	}
	switch {
	case n == -1:
		r.Occurrence = zone.Last()
	case n >= 1 && n <= 4:
		r.Occurrence = zone.Nth(n)
	default:
		return zone.RecurringRule{}, fmt.Errorf("%w: occurrence %d", ErrUnsupportedRule, n)
	}
	if err := r.Validate(); err != nil {
		return zone.RecurringRule{}, err
	}
	return r, nil
}

// weekWindow recognizes a run of seven consecutive month days, which selects
// a single weekday: 1-7 is the first, 8-14 the second and so on, while -7..-1
// is the last.
func weekWindow(days []int) (int, bool) {
	if len(days) != 7 {
		return 0, false
	}
	d := slices.Clone(days)
	slices.Sort(d)
	for i := 1; i < len(d); i++ {
		if d[i] != d[i-1]+1 {
			return 0, false
		}
	}
	switch first := d[0]; {
	case first == -7:
		return -1, true
	case first >= 1 && first <= 22 && (first-1)%7 == 0:
		return (first + 6) / 7, true
	}
	return 0, false
}

func warnTransitionTime(id, start string) {
	t, err := time.Parse(config.DateTimeLayout, start)
	if err != nil || t.Hour() != config.TransitionHour || t.Minute() != 0 || t.Second() != 0 {
		slog.Warn(config.MsgRuleTime,
			config.LogKeyComponent, config.CompZoneDB,
			config.LogKeyZone, id,
			config.LogKeyValue, start)
	}
}

// parseUTCOffset reads a UTC-OFFSET value: +HHMM or +HHMMSS.
func parseUTCOffset(s string) (time.Duration, error) {
	if (len(s) != 5 && len(s) != 7) || (s[0] != '+' && s[0] != '-') {
		return 0, fmt.Errorf("%s: %q", config.ErrUTCOffset, s)
	}
	var parts [3]int
	for i := 0; 1+2*i < len(s); i++ {
		v, err := strconv.Atoi(s[1+2*i : 3+2*i])
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%s: %q", config.ErrUTCOffset, s)
		}
		parts[i] = v
	}
	if parts[1] > 59 || parts[2] > 59 {
		return 0, fmt.Errorf("%s: %q", config.ErrUTCOffset, s)
	}

	d := time.Duration(parts[0])*time.Hour + time.Duration(parts[1])*time.Minute + time.Duration(parts[2])*time.Second
	if s[0] == '-' {
		d = -d
	}
	return d, nil
}

func formatUTCOffset(d time.Duration) string {
	sign := '+'
	if d < 0 {
		sign = '-'
		d = -d
	}
	secs := int(d / time.Second)
	out := fmt.Sprintf("%c%02d%02d", sign, secs/3600, secs/60%60)
	if s := secs % 60; s != 0 {
		out += fmt.Sprintf("%02d", s)
	}
	return out
}

// VTimezone renders a zone as a VTIMEZONE component.
func VTimezone(tz zone.Timezone) (*ical.Component, error) {
	comp := ical.NewComponent(ical.CompTimezone)
	comp.Props.SetText(ical.PropTimezoneID, tz.ID)

	if !tz.HasDST() {
		std := newObservance(ical.CompTimezoneStandard, tz.StandardOffset, tz.StandardOffset, tz.StandardName, config.DefaultRuleStart)
		comp.Children = append(comp.Children, std)
		return comp, nil
	}

	daylight, err := ruleObservance(ical.CompTimezoneDaylight, tz.StandardOffset, tz.DSTOffset, tz.DSTName, tz.DSTStart)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tz.ID, err)
	}
	standard, err := ruleObservance(ical.CompTimezoneStandard, tz.DSTOffset, tz.StandardOffset, tz.StandardName, tz.DSTEnd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tz.ID, err)
	}
	comp.Children = append(comp.Children, daylight, standard)
	return comp, nil
}

func ruleObservance(name string, from, to time.Duration, abbr string, r zone.RecurringRule) (*ical.Component, error) {
	first, err := r.Date(config.RuleStartYear)
	if err != nil {
		return nil, err
	}
	obs := newObservance(name, from, to, abbr, first.Add(zone.TransitionTime).Format(config.DateTimeLayout))

	n := r.Occurrence.N
	if r.Occurrence.Form == zone.OccurrenceLast {
		n = -1
	}
	day := rruleWeekdays[r.Weekday]
	opt := rrule.ROption{
		Freq:      rrule.YEARLY,
		Bymonth:   []int{int(r.Month)},
		Byweekday: []rrule.Weekday{day.Nth(n)},
		Until:     r.Until,
		Count:     r.Count,
	}
	obs.Props.SetRecurrenceRule(&opt)
	return obs, nil
}

// rruleWeekdays is indexed by time.Weekday.
var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func newObservance(name string, from, to time.Duration, abbr, start string) *ical.Component {
	obs := ical.NewComponent(name)

	// Set the raw values so no VALUE or TZID parameter is added.
	for prop, value := range map[string]string{
		ical.PropDateTimeStart:      start,
		ical.PropTimezoneOffsetFrom: formatUTCOffset(from),
		ical.PropTimezoneOffsetTo:   formatUTCOffset(to),
	} {
		p := ical.NewProp(prop)
		p.Value = value
		obs.Props.Set(p)
	}
	if abbr != "" {
		obs.Props.SetText(ical.PropTimezoneName, abbr)
	}
	return obs
}

// Encode writes the zones as a VCALENDAR of VTIMEZONE components.
func Encode(w io.Writer, zones []zone.Timezone) error {
	if len(zones) == 0 {
		_, err := io.WriteString(w, config.StubVCalendar)
		return err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, config.ICalVersion)
	cal.Props.SetText(ical.PropProductID, config.ICalProdid)
	cal.Props.SetText(ical.PropCalendarScale, config.ICalScale)

	for _, tz := range zones {
		comp, err := VTimezone(tz)
		if err != nil {
			return fmt.Errorf("%s: %w", config.ErrICalEncode, err)
		}
		cal.Children = append(cal.Children, comp)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
