package zonedb_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/icaltz/internal/zone"
	"github.com/tartampluch/icaltz/internal/zonedb"
)

// crlf converts a readable fixture into the CRLF form mandated by RFC 5545.
func crlf(s string) string {
	return strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n")
}

func calendar(components ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//Test//EN\n")
	for _, c := range components {
		b.WriteString(strings.TrimLeft(c, "\n"))
	}
	b.WriteString("END:VCALENDAR\n")
	return crlf(b.String())
}

// -----------------------------------------------------------------------------
// Static
// -----------------------------------------------------------------------------

func TestBuiltin_AllZonesValid(t *testing.T) {
	zones := zonedb.Builtin().Zones()
	require.NotEmpty(t, zones)

	for _, tz := range zones {
		assert.NoError(t, tz.Validate(), "zone %s", tz.ID)
	}
	for i := 1; i < len(zones); i++ {
		assert.Less(t, zones[i-1].ID, zones[i].ID, "Zones must be sorted by ID")
	}
}

func TestBuiltin_Lookup(t *testing.T) {
	db := zonedb.Builtin()

	la, err := db.Lookup("America/Los_Angeles")
	require.NoError(t, err)
	assert.Equal(t, -8*time.Hour, la.StandardOffset)
	assert.Equal(t, -7*time.Hour, la.DSTOffset)
	assert.Equal(t, "PST", la.StandardName)

	phx, err := db.Lookup("America/Phoenix")
	require.NoError(t, err)
	assert.False(t, phx.HasDST())

	nst, err := db.Lookup("America/St_Johns")
	require.NoError(t, err)
	assert.Equal(t, -(3*time.Hour + 30*time.Minute), nst.StandardOffset)

	_, err = db.Lookup("Mars/Olympus_Mons")
	assert.ErrorIs(t, err, zonedb.ErrUnknownZone)
}

func TestNewStatic_RejectsInvalid(t *testing.T) {
	_, err := zonedb.NewStatic(zone.Timezone{ID: "Bad", StandardOffset: 30 * time.Hour, DSTOffset: 30 * time.Hour})
	assert.ErrorIs(t, err, zone.ErrInvalidTimezone)
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

func TestRegistry_FallbackAndShadowing(t *testing.T) {
	reg := zonedb.NewRegistry(zonedb.Builtin())

	// Falls back to the built-in table.
	la, err := reg.Lookup("America/Los_Angeles")
	require.NoError(t, err)
	assert.Equal(t, "PDT", la.DSTName)

	// A registered definition shadows the fallback.
	custom := la
	custom.StandardName, custom.DSTName = "X", "Y"
	require.NoError(t, reg.Register(custom))

	got, err := reg.Lookup("America/Los_Angeles")
	require.NoError(t, err)
	assert.Equal(t, "Y", got.DSTName)

	zones := reg.Zones()
	count := 0
	for _, tz := range zones {
		if tz.ID == "America/Los_Angeles" {
			count++
			assert.Equal(t, "Y", tz.DSTName)
		}
	}
	assert.Equal(t, 1, count, "Shadowed zone must be listed once")
	assert.Len(t, zones, len(zonedb.Builtin().Zones()))
}

func TestRegistry_NoFallback(t *testing.T) {
	reg := zonedb.NewRegistry(nil)

	_, err := reg.Lookup("America/Los_Angeles")
	assert.ErrorIs(t, err, zonedb.ErrUnknownZone)
	assert.Empty(t, reg.Zones())
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	reg := zonedb.NewRegistry(nil)

	err := reg.Register(zone.Timezone{})
	assert.ErrorIs(t, err, zone.ErrInvalidTimezone)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := zonedb.NewRegistry(zonedb.Builtin())
	base, err := reg.Lookup("America/Denver")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tz := base
			tz.ID = fmt.Sprintf("Test/Zone%d", i)
			assert.NoError(t, reg.Register(tz))
		}(i)
		go func() {
			defer wg.Done()
			_, err := reg.Lookup("America/Denver")
			assert.NoError(t, err)
			_ = reg.Zones()
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		_, err := reg.Lookup(fmt.Sprintf("Test/Zone%d", i))
		assert.NoError(t, err)
	}
}

const losAngelesVTimezone = `
BEGIN:VTIMEZONE
TZID:America/Los_Angeles
BEGIN:DAYLIGHT
TZOFFSETFROM:-0800
TZOFFSETTO:-0700
TZNAME:PDT
DTSTART:19870405T020000
RRULE:FREQ=YEARLY;BYMONTH=4;BYDAY=1SU;UNTIL=20060402T100000Z
END:DAYLIGHT
BEGIN:DAYLIGHT
TZOFFSETFROM:-0800
TZOFFSETTO:-0700
TZNAME:PDT
DTSTART:20070311T020000
RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=2SU
END:DAYLIGHT
BEGIN:STANDARD
TZOFFSETFROM:-0700
TZOFFSETTO:-0800
TZNAME:PST
DTSTART:20071104T020000
RRULE:FREQ=YEARLY;BYMONTH=11;BYDAY=1SU
END:STANDARD
END:VTIMEZONE
`

func TestRegistry_Load(t *testing.T) {
	data := calendar(losAngelesVTimezone, `
BEGIN:VTIMEZONE
TZID:Test/Monthly
BEGIN:DAYLIGHT
TZOFFSETFROM:+0100
TZOFFSETTO:+0200
DTSTART:20000101T020000
RRULE:FREQ=MONTHLY;BYDAY=1SU
END:DAYLIGHT
BEGIN:STANDARD
TZOFFSETFROM:+0200
TZOFFSETTO:+0100
DTSTART:20000101T020000
RRULE:FREQ=MONTHLY;BYDAY=3SU
END:STANDARD
END:VTIMEZONE
`)

	reg := zonedb.NewRegistry(nil)
	n, err := reg.Load(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "The monthly zone is unsupported and must be skipped")

	tz, err := reg.Lookup("America/Los_Angeles")
	require.NoError(t, err)

	// The open-ended post-2007 rule wins over the historical one.
	assert.Equal(t, time.March, tz.DSTStart.Month)
	assert.Equal(t, zone.Nth(2), tz.DSTStart.Occurrence)
	assert.Equal(t, time.November, tz.DSTEnd.Month)
	assert.Equal(t, zone.Nth(1), tz.DSTEnd.Occurrence)
	assert.Equal(t, -8*time.Hour, tz.StandardOffset)
	assert.Equal(t, -7*time.Hour, tz.DSTOffset)

	off, err := zone.ResolveOffset(time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC), false, tz)
	require.NoError(t, err)
	assert.Equal(t, -7*time.Hour, off)

	_, err = reg.Lookup("Test/Monthly")
	assert.ErrorIs(t, err, zonedb.ErrUnknownZone)
}

func TestRegistry_LoadMalformed(t *testing.T) {
	reg := zonedb.NewRegistry(nil)
	_, err := reg.Load(strings.NewReader("BEGIN:VCALENDAR\r\nTHIS IS NOT ICAL"))
	assert.Error(t, err)
}

func TestRegistry_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.ics")
	require.NoError(t, os.WriteFile(path, []byte(calendar(losAngelesVTimezone)), 0o600))

	reg := zonedb.NewRegistry(nil)
	n, err := reg.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = reg.LoadFile(filepath.Join(t.TempDir(), "missing.ics"))
	assert.Error(t, err)
}
