package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/zonedb"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	root := newRootCmd(config.DefaultSettings())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), config.FilePermUserRW))
	return path
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestRootCmd_Registered(t *testing.T) {
	root := newRootCmd(config.DefaultSettings())
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{config.CmdResolve, config.CmdFile, config.CmdNow, config.CmdZones, config.CmdServe} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	s := config.DefaultSettings()
	s.Zone = "America/Denver"
	root := newRootCmd(s)

	for _, name := range []string{
		config.FlagZone, config.FlagPolicy, config.FlagLang, config.FlagZonesFile,
		config.FlagZonesURL, config.FlagDebug, config.FlagLogFormat,
	} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "America/Denver", root.PersistentFlags().Lookup(config.FlagZone).DefValue,
		"settings provide the flag defaults")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf(config.MsgVersionOutput, config.AppName, config.Version, config.Commit, config.Date, runtime.GOOS, runtime.GOARCH), out)
}

func TestResolveCmd(t *testing.T) {
	out, err := execute(t, "", config.CmdResolve, "TZID=America/Los_Angeles:20240228T221518", "20241103T120000Z")
	require.NoError(t, err)
	assert.Equal(t,
		"TZID=America/Los_Angeles:20240228T221518 → 2024-02-28 22:15:18 (UTC-08:00, America/Los_Angeles PST, standard time)\n"+
			"20241103T120000Z → 2024-11-03 04:00:00 (UTC-08:00, America/Los_Angeles PST, standard time)\n"+
			"2 value(s) resolved, 0 failed\n",
		out)
}

func TestResolveCmd_ZoneAndLang(t *testing.T) {
	out, err := execute(t, "", "--zone", "America/New_York", "--lang", "fr", config.CmdResolve, "20240310T120000Z")
	require.NoError(t, err)
	assert.Equal(t,
		"20240310T120000Z → 2024-03-10 08:00:00 (UTC-04:00, America/New_York EDT, heure d'été)\n"+
			"1 valeur(s) résolue(s), 0 en échec\n",
		out)
}

func TestResolveCmd_Policy(t *testing.T) {
	out, err := execute(t, "", "--policy", "daylight", config.CmdResolve, "TZID=America/Denver:20240310T023000")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-10 01:30:00 (UTC-07:00, America/Denver MST, standard time) [nonexistent local time")

	out, err = execute(t, "", config.CmdResolve, "TZID=America/Denver:20240310T023000")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-10 03:30:00 (UTC-06:00, America/Denver MDT, daylight saving time) [nonexistent local time")

	_, err = execute(t, "", "--policy", "reject", config.CmdResolve, "TZID=America/Denver:20240310T023000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrSomeFailed)
}

func TestResolveCmd_PartialFailure(t *testing.T) {
	out, err := execute(t, "", config.CmdResolve, "20240101T000000Z", "not-a-date")
	require.Error(t, err)
	assert.Equal(t, config.ErrSomeFailed+": 1/2", err.Error())
	assert.Contains(t, out, "not-a-date: error: ")
	assert.Contains(t, out, "2 value(s) resolved, 1 failed\n")
}

func TestResolveCmd_Errors(t *testing.T) {
	_, err := execute(t, "", config.CmdResolve)
	assert.Error(t, err, "at least one value is required")

	_, err = execute(t, "", "--policy", "sometimes", config.CmdResolve, "20240101T000000Z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrPolicy)

	_, err = execute(t, "", "--log-format", "xml", config.CmdResolve, "20240101T000000Z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrLogFormat)
}

func TestFileCmd_Text(t *testing.T) {
	path := writeFile(t, "values.txt", "# launch schedule\n\n20240310T120000Z\nTZID=America/Chicago:20241103T013000\n")

	out, err := execute(t, "", config.CmdFile, path)
	require.NoError(t, err)
	assert.Equal(t,
		"20240310T120000Z → 2024-03-10 05:00:00 (UTC-07:00, America/Los_Angeles PDT, daylight saving time)\n"+
			"TZID=America/Chicago:20241103T013000 → 2024-11-03 01:30:00 (UTC-05:00, America/Chicago CDT, daylight saving time) [ambiguous local time, repeated by the DST change]\n"+
			"2 value(s) resolved, 0 failed\n",
		out)
}

func TestFileCmd_Stdin(t *testing.T) {
	out, err := execute(t, "TZID=America/Phoenix:20240701T120000\n", config.CmdFile, config.StdinPath)
	require.NoError(t, err)
	assert.Contains(t, out, "America/Phoenix MST")
}

const eventCalendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//EN
BEGIN:VEVENT
UID:1@test
DTSTAMP:20240101T000000Z
SUMMARY:Picnic
DTSTART;TZID=America/Denver:20240704T120000
DTEND:20240704T200000Z
END:VEVENT
BEGIN:VEVENT
UID:2@test
DTSTAMP:20240101T000000Z
SUMMARY:Holiday
DTSTART;VALUE=DATE:20241225
END:VEVENT
END:VCALENDAR
`

func TestFileCmd_ICS(t *testing.T) {
	want := "DTSTART TZID=America/Denver:20240704T120000 → 2024-07-04 12:00:00 (UTC-06:00, America/Denver MDT, daylight saving time)\n" +
		"DTEND 20240704T200000Z → 2024-07-04 13:00:00 (UTC-07:00, America/Los_Angeles PDT, daylight saving time)\n" +
		"2 value(s) resolved, 0 failed\n"

	out, err := execute(t, "", config.CmdFile, writeFile(t, "events.ics", crlf(eventCalendar)))
	require.NoError(t, err)
	assert.Equal(t, want, out)

	// --ics forces calendar parsing whatever the extension.
	out, err = execute(t, "", config.CmdFile, "--ics", writeFile(t, "events.txt", crlf(eventCalendar)))
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestFileCmd_Missing(t *testing.T) {
	_, err := execute(t, "", config.CmdFile, filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrOpenInput)
}

func TestNowCmd(t *testing.T) {
	out, err := execute(t, "", config.CmdNow, "America/Phoenix")
	require.NoError(t, err)
	assert.Contains(t, out, "(UTC-07:00, America/Phoenix MST, standard time)")

	_, err = execute(t, "", config.CmdNow, "Mars/Olympus")
	assert.ErrorIs(t, err, zonedb.ErrUnknownZone)
}

func TestZonesCmd(t *testing.T) {
	out, err := execute(t, "", config.CmdZones, "America/Phoenix", "America/Halifax")
	require.NoError(t, err)
	assert.Equal(t,
		"America/Phoenix: UTC-07:00, no daylight saving time\n"+
			"America/Halifax: UTC-04:00 / UTC-03:00, DST from the second Sunday of March to the first Sunday of November at 02:00\n",
		out)

	out, err = execute(t, "", config.CmdZones)
	require.NoError(t, err)
	assert.Equal(t, len(zonedb.Builtin().Zones()), strings.Count(out, "\n"))

	_, err = execute(t, "", config.CmdZones, "Mars/Olympus")
	assert.ErrorIs(t, err, zonedb.ErrUnknownZone)
}

func TestZonesCmd_ICS(t *testing.T) {
	out, err := execute(t, "", config.CmdZones, "--ics", "America/Los_Angeles")
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VTIMEZONE\r\n")
	assert.Contains(t, out, "TZID:America/Los_Angeles\r\n")
	assert.Contains(t, out, "RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=2SU\r\n")
}

const customZone = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//EN
BEGIN:VTIMEZONE
TZID:Europe/Test
BEGIN:DAYLIGHT
TZOFFSETFROM:+0100
TZOFFSETTO:+0200
TZNAME:TEST
DTSTART:19700329T020000
RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU
END:DAYLIGHT
BEGIN:STANDARD
TZOFFSETFROM:+0200
TZOFFSETTO:+0100
TZNAME:TET
DTSTART:19701025T020000
RRULE:FREQ=YEARLY;BYMONTH=10;BYDAY=-1SU
END:STANDARD
END:VTIMEZONE
END:VCALENDAR
`

func TestZonesFile(t *testing.T) {
	path := writeFile(t, "zones.ics", crlf(customZone))

	out, err := execute(t, "", "--zones-file", path, config.CmdZones, "Europe/Test")
	require.NoError(t, err)
	assert.Equal(t,
		"Europe/Test: UTC+01:00 / UTC+02:00, DST from the last Sunday of March to the last Sunday of October at 02:00\n",
		out)

	out, err = execute(t, "", "--zones-file", path, config.CmdResolve, "TZID=Europe/Test:20240715T100000")
	require.NoError(t, err)
	assert.Contains(t, out, "(UTC+02:00, Europe/Test TEST, daylight saving time)")

	_, err = execute(t, "", "--zones-file", filepath.Join(t.TempDir(), "missing.ics"), config.CmdZones)
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrZonesLoad)
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	require.NoError(t, setupLogging(&buf, false, config.LogFormatJSON))
	slog.Info("hello", config.LogKeyComponent, config.CompMain)
	slog.Debug("hidden")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"component":"main"`)
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	require.NoError(t, setupLogging(&buf, true, config.LogFormatText))
	slog.Debug("visible")
	assert.Contains(t, buf.String(), "visible")

	assert.Error(t, setupLogging(&buf, false, "xml"))
}
