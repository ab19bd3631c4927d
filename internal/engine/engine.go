package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/datetime"
	"github.com/tartampluch/icaltz/internal/zone"
	"github.com/tartampluch/icaltz/internal/zonedb"
)

// Resolver is the core service: it parses DATE-TIME values, looks up their
// zone and resolves the UTC offset that applies.
type Resolver struct {
	Zones zonedb.Lookup // Zone database.
	Clock Clock         // Interface for time mocking.

	// Policy decides ambiguous and skipped local times.
	Policy zone.Policy

	// Target is the zone UTC values are presented in. Defaults to
	// config.DefaultZone when empty.
	Target string
}

func (r *Resolver) target() string {
	if r.Target == "" {
		return config.DefaultZone
	}
	return r.Target
}

// Resolve parses text and resolves it. Zone-local values are resolved in
// their own zone, UTC values in the target zone.
func (r *Resolver) Resolve(ctx context.Context, text string) (zone.ResolvedInstant, error) {
	if err := ctx.Err(); err != nil {
		return zone.ResolvedInstant{}, err
	}
	ts, err := datetime.Parse(text)
	if err != nil {
		return zone.ResolvedInstant{}, err
	}
	return r.ResolveTimestamp(ts)
}

// ResolveTimestamp resolves an already parsed value.
func (r *Resolver) ResolveTimestamp(ts datetime.Timestamp) (zone.ResolvedInstant, error) {
	return r.resolveIn(r.Zones, ts)
}

func (r *Resolver) resolveIn(zones zonedb.Lookup, ts datetime.Timestamp) (zone.ResolvedInstant, error) {
	if zones == nil {
		return zone.ResolvedInstant{}, fmt.Errorf("%w: %q", zonedb.ErrUnknownZone, ts.ZoneID)
	}

	id := ts.ZoneID
	if !ts.IsLocal() {
		id = r.target()
	}
	tz, err := zones.Lookup(id)
	if err != nil {
		return zone.ResolvedInstant{}, err
	}

	inst, err := zone.ResolveInstant(ts.Wall, ts.IsLocal(), tz, r.Policy)
	if err != nil {
		return zone.ResolvedInstant{}, fmt.Errorf("%s: %w", config.ErrResolve, err)
	}

	slog.Debug(config.MsgResolved,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyValue, ts.String(),
		config.LogKeyZone, tz.ID,
		config.LogKeyOffset, inst.Time.Format(config.OffsetFormatDisplay),
		config.LogKeyKind, inst.Kind.String())
	return inst, nil
}

// Now returns the current time in the given zone (the target zone when id is
// empty), truncated to the second like any DATE-TIME value.
func (r *Resolver) Now(id string) (zone.ResolvedInstant, error) {
	if id == "" {
		id = r.target()
	}
	var now time.Time
	if r.Clock != nil {
		now = r.Clock.Now()
	} else {
		now = RealClock{}.Now()
	}
	if r.Zones == nil {
		return zone.ResolvedInstant{}, fmt.Errorf("%w: %q", zonedb.ErrUnknownZone, id)
	}
	tz, err := r.Zones.Lookup(id)
	if err != nil {
		return zone.ResolvedInstant{}, err
	}
	return zone.ResolveInstant(now.UTC().Truncate(time.Second), false, tz, r.Policy)
}

// ResolveStream resolves one DATE-TIME value per line. Blank lines and lines
// starting with config.CommentPrefix are skipped. A value that fails is logged
// and recorded in its Result; processing continues with the next line.
func (r *Resolver) ResolveStream(ctx context.Context, rd io.Reader) ([]Result, error) {
	start := time.Now()
	var results []Result

	scanner := bufio.NewScanner(rd)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, config.CommentPrefix) {
			continue
		}

		res := Result{Line: line, Input: text}
		res.Instant, res.Err = r.Resolve(ctx, text)
		if res.Err != nil {
			slog.Warn(config.MsgSkippedLine,
				config.LogKeyComponent, config.CompEngine,
				config.LogKeyLine, line,
				config.LogKeyValue, text,
				config.LogKeyError, res.Err)
		}
		results = append(results, res)
	}
	if err := scanner.Err(); err != nil {
		return results, fmt.Errorf("%s: %w", config.ErrReadInput, err)
	}

	logDone(results, start)
	return results, nil
}

// ResolveCalendar resolves the DTSTART and DTEND properties of every VEVENT
// in the iCalendar stream. VTIMEZONE components of a calendar are registered
// on top of the resolver's zones for that calendar only.
func (r *Resolver) ResolveCalendar(ctx context.Context, rd io.Reader) ([]Result, error) {
	start := time.Now()
	var results []Result

	dec := ical.NewDecoder(rd)
	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return results, fmt.Errorf("%s: %w", config.ErrICalDecode, err)
		}

		zones := zonedb.NewRegistry(r.Zones)
		zones.LoadCalendar(cal)

		for _, event := range cal.Children {
			if event.Name != ical.CompEvent {
				continue
			}
			for _, name := range []string{ical.PropDateTimeStart, ical.PropDateTimeEnd} {
				prop := event.Props.Get(name)
				if prop == nil {
					continue
				}
				res, ok := r.resolveProp(zones, prop)
				if !ok {
					continue
				}
				res.Line = len(results) + 1
				results = append(results, res)
			}
		}
	}

	logDone(results, start)
	return results, nil
}

// resolveProp resolves a DTSTART/DTEND property. All-day values (VALUE=DATE)
// carry no time and are skipped.
func (r *Resolver) resolveProp(zones zonedb.Lookup, prop *ical.Prop) (Result, bool) {
	if prop.ValueType() == ical.ValueDate {
		return Result{}, false
	}

	res := Result{Property: prop.Name, Input: propText(prop)}
	ts, err := datetime.Parse(res.Input)
	if err == nil {
		res.Instant, err = r.resolveIn(zones, ts)
	}
	if err != nil {
		res.Err = err
		slog.Warn(config.MsgSkippedProp,
			config.LogKeyComponent, config.CompEngine,
			config.LogKeyProp, prop.Name,
			config.LogKeyValue, res.Input,
			config.LogKeyError, err)
	}
	return res, true
}

// propText rebuilds the DATE-TIME text form of a property: the TZID parameter
// becomes the TZID= prefix.
func propText(prop *ical.Prop) string {
	tzid := prop.Params.Get(ical.ParamTimezoneID)
	if tzid == "" {
		return prop.Value
	}
	return datetime.TZIDPrefix(tzid) + prop.Value
}

func logDone(results []Result, start time.Time) {
	stats := Summarize(results)
	slog.Info(config.MsgStreamDone,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyTotal, stats.Total,
		config.LogKeyFailed, stats.Failed,
		config.LogKeyDuration, time.Since(start).Milliseconds())
}
