// Package report renders resolution results and zone descriptions as
// human-readable, translated text.
package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/engine"
	"github.com/tartampluch/icaltz/internal/zone"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Reporter translates output lines into one of the embedded languages.
type Reporter struct {
	bundle    *i18n.Bundle
	localizer *i18n.Localizer

	// Languages lists the language codes found in the embedded locales.
	Languages []string
}

// New loads the embedded translations and selects lang. Unknown languages
// fall back to English.
func New(lang string) *Reporter {
	r := &Reporter{}
	r.bundle = i18n.NewBundle(language.English)
	r.bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		slog.Error(config.ErrLocalesAccess,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyError, err,
		)
		r.SetLanguage(lang)
		return r
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "active.") || !strings.HasSuffix(name, ".json") {
			slog.Debug(config.MsgLocaleSkip,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		langCode := strings.TrimSuffix(strings.TrimPrefix(name, "active."), ".json")
		if langCode == "" {
			slog.Warn(config.MsgLocaleBadName,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		if _, err := r.bundle.LoadMessageFileFS(localeFS, "locales/"+name); err != nil {
			slog.Error(config.ErrLocaleLoad,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
				config.LogKeyError, err,
			)
			continue
		}
		r.Languages = append(r.Languages, langCode)
		slog.Debug(config.MsgLocaleLoaded,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyLang, langCode,
			config.LogKeyFile, name,
		)
	}

	r.SetLanguage(lang)
	return r
}

// SetLanguage switches the output language.
func (r *Reporter) SetLanguage(lang string) {
	if lang == "" {
		lang = config.DefaultLanguage
	}
	r.localizer = i18n.NewLocalizer(r.bundle, lang)
}

// Msg translates key, filling its template with data. A missing key is
// returned as is.
func (r *Reporter) Msg(key string, data map[string]any) string {
	if r.localizer == nil {
		return key
	}
	msg, err := r.localizer.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: data})
	if err != nil {
		slog.Debug(config.MsgTransMissing,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyKey, key,
			config.LogKeyError, err,
		)
		return key
	}
	return msg
}

// Result renders one resolution result. Skipped and ambiguous local times get
// a trailing note.
func (r *Reporter) Result(res engine.Result) string {
	input := res.Input
	if res.Property != "" {
		input = res.Property + " " + input
	}

	if res.Err != nil {
		return r.Msg(config.TKeyErrorLine, map[string]any{
			"Input": input,
			"Error": res.Err.Error(),
		})
	}

	inst := res.Instant
	regime := config.TKeyRegimeStd
	if inst.DST {
		regime = config.TKeyRegimeDST
	}
	zoneLabel := inst.ZoneID
	if abbr, _ := inst.Time.Zone(); abbr != "" {
		zoneLabel += " " + abbr
	}

	line := r.Msg(config.TKeyResultLine, map[string]any{
		"Input":  input,
		"Local":  inst.Time.Format(config.DateTimeFormatDisplay),
		"Offset": inst.Time.Format(config.OffsetFormatDisplay),
		"Zone":   zoneLabel,
		"Regime": r.Msg(regime, nil),
	})

	switch inst.Kind {
	case zone.Skipped:
		line += " [" + r.Msg(config.TKeyNoteSkipped, nil) + "]"
	case zone.Ambiguous:
		line += " [" + r.Msg(config.TKeyNoteAmbig, nil) + "]"
	}
	return line
}

// Zone describes the offsets and DST rules of a zone.
func (r *Reporter) Zone(tz zone.Timezone) string {
	if !tz.HasDST() {
		return r.Msg(config.TKeyZoneLineNoDS, map[string]any{
			"ID":  tz.ID,
			"Std": FormatOffset(tz.StandardOffset),
		})
	}
	return r.Msg(config.TKeyZoneLine, map[string]any{
		"ID":    tz.ID,
		"Std":   FormatOffset(tz.StandardOffset),
		"DST":   FormatOffset(tz.DSTOffset),
		"Start": r.Rule(tz.DSTStart),
		"End":   r.Rule(tz.DSTEnd),
	})
}

// Rule spells out a recurring rule, e.g. "second Sunday of March".
func (r *Reporter) Rule(rule zone.RecurringRule) string {
	ordinal := config.TKeyOrdinalLast
	if rule.Occurrence.Form == zone.OccurrenceNth {
		ordinal = config.TKeyOrdinalPrefix + strconv.Itoa(rule.Occurrence.N)
	}
	return r.Msg(config.TKeyRule, map[string]any{
		"Ordinal": r.Msg(ordinal, nil),
		"Weekday": r.Msg(config.TKeyWeekdayPrefix+strconv.Itoa(int(rule.Weekday)), nil),
		"Month":   r.Msg(config.TKeyMonthPrefix+strconv.Itoa(int(rule.Month)), nil),
	})
}

// Summary renders the totals of a batch.
func (r *Reporter) Summary(stats engine.Stats) string {
	return r.Msg(config.TKeySummary, map[string]any{
		"Total":  stats.Total,
		"Failed": stats.Failed,
	})
}

// WriteResults writes one line per result followed by the summary.
func (r *Reporter) WriteResults(w io.Writer, results []engine.Result) error {
	for _, res := range results {
		if _, err := fmt.Fprintln(w, r.Result(res)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, r.Summary(engine.Summarize(results)))
	return err
}

// WriteZones writes one description line per zone.
func (r *Reporter) WriteZones(w io.Writer, zones []zone.Timezone) error {
	for _, tz := range zones {
		if _, err := fmt.Fprintln(w, r.Zone(tz)); err != nil {
			return err
		}
	}
	return nil
}

// FormatOffset renders a UTC offset as ±hh:mm.
func FormatOffset(off time.Duration) string {
	loc := time.FixedZone("", int(off/time.Second))
	return time.Date(2000, time.January, 1, 0, 0, 0, 0, loc).Format(config.OffsetFormatDisplay)
}
