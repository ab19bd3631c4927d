package zonedb

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/emersion/go-ical"
	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/zone"
)

// Registry holds zones registered at runtime, typically decoded from
// VTIMEZONE components. Lookups that miss are delegated to the fallback.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	zones    map[string]zone.Timezone
	fallback Lookup
}

// NewRegistry creates an empty registry. fallback may be nil.
func NewRegistry(fallback Lookup) *Registry {
	return &Registry{
		zones:    make(map[string]zone.Timezone),
		fallback: fallback,
	}
}

// Register adds or replaces a zone definition.
func (r *Registry) Register(tz zone.Timezone) error {
	if err := tz.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.zones[tz.ID] = tz
	r.mu.Unlock()

	slog.Debug(config.MsgZoneRegistered,
		config.LogKeyComponent, config.CompZoneDB,
		config.LogKeyZone, tz.ID)
	return nil
}

// Lookup returns the registered zone, or asks the fallback.
func (r *Registry) Lookup(id string) (zone.Timezone, error) {
	r.mu.RLock()
	tz, ok := r.zones[id]
	r.mu.RUnlock()
	if ok {
		return tz, nil
	}
	if r.fallback != nil {
		return r.fallback.Lookup(id)
	}
	return zone.Timezone{}, fmt.Errorf("%w: %q", ErrUnknownZone, id)
}

// Zones lists registered zones merged with the fallback's (when it can list
// them). Registered definitions shadow fallback ones with the same ID.
func (r *Registry) Zones() []zone.Timezone {
	r.mu.RLock()
	out := make([]zone.Timezone, 0, len(r.zones))
	for _, tz := range r.zones {
		out = append(out, tz)
	}
	r.mu.RUnlock()

	if lister, ok := r.fallback.(Lister); ok {
		for _, tz := range lister.Zones() {
			if !r.has(tz.ID) {
				out = append(out, tz)
			}
		}
	}
	sortZones(out)
	return out
}

func (r *Registry) has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.zones[id]
	return ok
}

// Load decodes iCalendar data and registers every supported VTIMEZONE found.
// Unsupported definitions are logged and skipped. It returns the number of
// zones registered.
func (r *Registry) Load(rd io.Reader) (int, error) {
	dec := ical.NewDecoder(rd)
	total := 0
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, fmt.Errorf("%s: %w", config.ErrICalDecode, err)
		}
		total += r.LoadCalendar(cal)
	}

	slog.Info(config.MsgZonesLoaded,
		config.LogKeyComponent, config.CompZoneDB,
		config.LogKeyCount, total)
	return total, nil
}

// LoadFile registers the zones defined in a local .ics file.
func (r *Registry) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", config.ErrZonesLoad, err)
	}
	defer func() { _ = f.Close() }()

	n, err := r.Load(f)
	if err != nil {
		return n, fmt.Errorf("%s: %w", config.ErrZonesLoad, err)
	}
	return n, nil
}

// LoadCalendar registers the VTIMEZONE children of cal and returns how many
// were accepted.
func (r *Registry) LoadCalendar(cal *ical.Calendar) int {
	count := 0
	for _, child := range cal.Children {
		if child.Name != ical.CompTimezone {
			continue
		}
		tz, err := ParseVTimezone(child)
		if err == nil {
			err = r.Register(tz)
		}
		if err != nil {
			id, _ := child.Props.Text(ical.PropTimezoneID)
			slog.Warn(config.MsgZoneSkipped,
				config.LogKeyComponent, config.CompZoneDB,
				config.LogKeyZone, id,
				config.LogKeyError, err)
			continue
		}
		count++
	}
	return count
}
