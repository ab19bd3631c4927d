package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client used to fetch remote zone files.
var UserAgent = "icaltz/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName           = "icaltz"
	LocalhostBindAddr = "127.0.0.1"
	EnvFile           = ".env"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	FilePermUserRW fs.FileMode = 0600

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Commands, Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	CmdResolve = "resolve"
	CmdFile    = "file"
	CmdNow     = "now"
	CmdZones   = "zones"
	CmdServe   = "serve"

	FlagZone      = "zone"
	FlagPolicy    = "policy"
	FlagLang      = "lang"
	FlagZonesFile = "zones-file"
	FlagZonesURL  = "zones-url"
	FlagListen    = "listen"
	FlagDebug     = "debug"
	FlagLogFormat = "log-format"
	FlagICS       = "ics"

	FlagDescZone      = "Zone used to localize UTC (Z) values"
	FlagDescPolicy    = "Policy for skipped/ambiguous local times: rfc5545, standard, daylight, reject"
	FlagDescLang      = "Output language (en, fr)"
	FlagDescZonesFile = "Load additional VTIMEZONE definitions from an .ics file"
	FlagDescZonesURL  = "Fetch additional VTIMEZONE definitions from an http(s) URL"
	FlagDescListen    = "Listen address for the HTTP server"
	FlagDescDebug     = "Enable debug logging"
	FlagDescLogFormat = "Log format: text or json"
	FlagDescICS       = "Treat the input file as an iCalendar (.ics) document"
	FlagDescICSOut    = "Print the zones as an iCalendar (.ics) document of VTIMEZONEs"

	CmdUseResolve = "resolve <value>..."
	CmdUseFile    = "file <path>"
	CmdUseNow     = "now [zone]"
	CmdUseZones   = "zones [zone...]"

	CmdDescRoot    = "Resolve iCalendar DATE-TIME values to UTC offsets"
	CmdDescResolve = "Resolve DATE-TIME values given as arguments"
	CmdDescFile    = "Resolve every DATE-TIME of a text file (one per line) or of an .ics calendar; use - for stdin"
	CmdDescNow     = "Show the current time in a zone"
	CmdDescZones   = "Describe known zones and their DST rules"
	CmdDescServe   = "Serve the resolver and the zone calendar over HTTP"

	// StdinPath reads the input from standard input.
	StdinPath = "-"
	ExtICS    = ".ics"

	LogFormatText = "text"
	LogFormatJSON = "json"

	MsgVersionOutput = "%s version %s (commit %s, built %s, %s/%s)\n"
)

// -----------------------------------------------------------------------------
// Environment Variables
// -----------------------------------------------------------------------------

const (
	EnvZone      = "ICALTZ_ZONE"
	EnvPolicy    = "ICALTZ_POLICY"
	EnvLang      = "ICALTZ_LANG"
	EnvZonesFile = "ICALTZ_ZONES_FILE"
	EnvZonesURL  = "ICALTZ_ZONES_URL"
	EnvListen    = "ICALTZ_LISTEN"
)

// -----------------------------------------------------------------------------
// Resolution Policies
// -----------------------------------------------------------------------------

const (
	PolicyRFC5545  = "rfc5545"
	PolicyStandard = "standard"
	PolicyDaylight = "daylight"
	PolicyReject   = "reject"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	DefaultZone     = "America/Los_Angeles"
	DefaultPolicy   = PolicyRFC5545
	DefaultLanguage = "en"
	DefaultListen   = LocalhostBindAddr + ":18081"
	UTCZoneID       = "UTC"

	// TransitionHour is the local hour at which every DST rule fires.
	TransitionHour = 2

	// MaxOffset bounds standard and DST offsets.
	MaxOffset = 18 * time.Hour

	CommentPrefix = "#"
)

// SupportedLanguages defines the list of available output languages (ISO 639-1).
var SupportedLanguages = []string{"en", "fr"}

// -----------------------------------------------------------------------------
// Standards: iCalendar
// -----------------------------------------------------------------------------

const (
	ICalVersion = "2.0"
	ICalProdid  = "-//icaltz//Zones//EN"
	ICalScale   = "GREGORIAN"

	// DATE-TIME grammar
	TZIDPrefix       = "TZID="
	TZIDSeparator    = ":"
	UTCDesignator    = 'Z'
	TimeDesignator   = 'T'
	DateTimeLen      = 15 // YYYYMMDDTHHMMSS
	UTCDateTimeLen   = DateTimeLen + 1
	DateTimeLayout   = "20060102T150405"
	UTCDateLayout    = "20060102T150405Z"
	QuoteChar        = `"`
	TZIDSpecialChars = ":;,"
	RRuleFreqYearly  = "YEARLY"
	DefaultRuleStart = "19700101T020000"
	RuleStartYear    = 1970

	// StubVCalendar is the minimal valid iCalendar object used when no zones are known.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:" + ICalVersion + "\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"
)

// -----------------------------------------------------------------------------
// Data Formats
// -----------------------------------------------------------------------------

const (
	DateTimeFormatDisplay = "2006-01-02 15:04:05"
	OffsetFormatDisplay   = "-07:00"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout         = 30 * time.Second
	ShutdownTimeout     = 5 * time.Second
	ServerReadTimeout   = 10 * time.Second
	ServerWriteTimeout  = 30 * time.Second
	ServerIdleTimeout   = 60 * time.Second
	AllowedMethods      = "GET, HEAD"
	MaxHTTPResponseSize = 16 * 1024 * 1024 // 16MB, zone files are small
	SchemeHTTP          = "http"
	SchemeHTTPS         = "https"
	RouteResolve        = "/resolve"
	RouteZones          = "/zones.ics"
	RouteMetrics        = "/metrics"
	QueryValue          = "value"
	QueryZone           = "zone"
	QueryPolicy         = "policy"
)

// -----------------------------------------------------------------------------
// HTTP Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	HeaderContentType     = "Content-Type"
	HeaderCacheControl    = "Cache-Control"
	HeaderETag            = "ETag"
	HeaderLastModified    = "Last-Modified"
	HeaderAllow           = "Allow"
	HeaderXContentType    = "X-Content-Type-Options"
	HeaderUserAgent       = "User-Agent"
	HeaderIfNoneMatch     = "If-None-Match"
	HeaderIfModifiedSince = "If-Modified-Since"

	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeJSON            = "application/json"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"

	// FormatETag expects a string argument.
	FormatETag = `"%s"`
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	// Parsing
	ErrFormat        = "invalid date-time format"
	ErrInvalidValue  = "invalid date-time value"
	ErrMissingUTC    = "missing UTC designator 'Z'"
	ErrMissingTZID   = "missing TZID prefix"
	ErrEmptyTZID     = "empty TZID"
	ErrTZIDQuoting   = "unbalanced quote or unquoted separator in TZID"
	ErrBadLength     = "unexpected length"
	ErrNotNumeric    = "non-numeric field"
	ErrMissingT      = "missing time designator 'T'"
	ErrMonthRange    = "month out of range"
	ErrDayRange      = "day out of range"
	ErrHourRange     = "hour out of range"
	ErrMinuteRange   = "minute out of range"
	ErrSecondRange   = "second out of range"
	ErrInvalidDate   = "invalid calendar date"
	ErrNthRange      = "occurrence exceeds weekdays in month"
	ErrNthPositive   = "occurrence index must be at least 1"
	ErrOffset        = "invalid UTC offset"
	ErrSkippedTime   = "local time does not exist (skipped by DST start)"
	ErrAmbiguousTime = "local time is ambiguous (repeated by DST end)"
	ErrRule          = "invalid recurring rule"
	ErrFrequency     = "unsupported rule frequency"
	ErrTimezone      = "invalid timezone definition"
	ErrRuleMonths    = "DST start and end fall in the same month"
	ErrDSTOffset     = "DST offset must exceed standard offset"
	ErrPolicy        = "unknown resolution policy"

	// Zone database
	ErrUnknownZone     = "unknown zone"
	ErrUnsupportedRule = "unsupported RRULE"
	ErrVTimezone       = "invalid VTIMEZONE"
	ErrICalDecode      = "failed to decode iCalendar data"
	ErrICalEncode      = "failed to encode iCalendar data"
	ErrMissingProp     = "missing property"
	ErrUTCOffset       = "malformed UTC offset"
	ErrNoRRule         = "observance without RRULE"
	ErrZonesLoad       = "failed to load zone definitions"

	// Engine
	ErrResolve        = "failed to resolve date-time"
	ErrReadInput      = "failed to read input"
	ErrFetcherMissing = "internal error: zone fetcher is not initialized"

	// Network
	ErrInvalidURL     = "invalid URL structure"
	ErrProtocol       = "unsupported protocol scheme (http/https only)"
	ErrServerStartup  = "server startup failed"
	ErrServerShutdown = "server shutdown failed"
	ErrListenRequired = "listen address is required"
	ErrWriteResp      = "failed to write response body"

	// Application
	ErrAppFailed     = "application failed unexpectedly"
	ErrLocalesAccess = "failed to access embedded locales"
	ErrLocaleLoad    = "failed to load locale file"
	ErrLogFormat     = "unknown log format"
	ErrSomeFailed    = "some values could not be resolved"
	ErrOpenInput     = "failed to open input"
)

// -----------------------------------------------------------------------------
// HTTP Server Responses
// -----------------------------------------------------------------------------

const (
	HTTPMsgMethodNotAll = "Method Not Allowed"
	HTTPMsgInternalErr  = "Internal Server Error"
	HTTPMsgMissingValue = "missing 'value' query parameter"
)

// -----------------------------------------------------------------------------
// Log Messages
// -----------------------------------------------------------------------------

const (
	MsgAppStarting    = "Starting application"
	MsgAppStop        = "Application stopped gracefully"
	MsgResolved       = "Date-time resolved"
	MsgSkippedLine    = "Skipping unresolvable line"
	MsgSkippedProp    = "Skipping unresolvable property"
	MsgStreamDone     = "Input processed"
	MsgZonesLoaded    = "Zone definitions loaded"
	MsgZoneSkipped    = "Skipping unsupported VTIMEZONE"
	MsgZoneRegistered = "Zone registered"
	MsgRuleTime       = "VTIMEZONE transition time differs from the fixed 02:00 rule"
	MsgServerListen   = "HTTP server listening"
	MsgServerStop     = "Shutting down HTTP server..."
	MsgCacheUpdated   = "Zone calendar cache updated"
	MsgLocaleSkip     = "Skipping non-locale file"
	MsgLocaleBadName  = "Skipping malformed locale filename"
	MsgLocaleLoaded   = "Locale loaded successfully"
	MsgTransMissing   = "Missing translation key"
	MsgEnvFile        = "No .env file loaded"
	MsgZonesReady     = "Zone database ready"
)

// -----------------------------------------------------------------------------
// Translation Keys (I18n)
// -----------------------------------------------------------------------------

const (
	TKeyResultLine   = "result_line"     // Requires Input, Local, Offset, Zone, Regime
	TKeyErrorLine    = "error_line"      // Requires Input, Error
	TKeyRegimeStd    = "regime_standard"
	TKeyRegimeDST    = "regime_daylight"
	TKeyNoteSkipped  = "note_skipped"
	TKeyNoteAmbig    = "note_ambiguous"
	TKeyZoneLine     = "zone_line"       // Requires ID, Std, DST, Start, End
	TKeyZoneLineNoDS = "zone_line_nodst" // Requires ID, Std
	TKeySummary      = "summary"         // Requires Total, Failed
	TKeyRule         = "rule"            // Requires Ordinal, Weekday, Month

	// Prefixed keys, completed with the ordinal (1-4, "last"), the weekday
	// number (0 = Sunday) or the month number (1 = January).
	TKeyOrdinalPrefix = "ordinal_"
	TKeyOrdinalLast   = TKeyOrdinalPrefix + "last"
	TKeyWeekdayPrefix = "weekday_"
	TKeyMonthPrefix   = "month_"
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

const (
	MetricNamespace     = "icaltz"
	MetricResolutions   = "resolutions_total"
	MetricResolutionsHp = "Number of date-time resolutions by outcome."
	MetricLabelOutcome  = "outcome"
	OutcomeError        = "error"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent = "component"
	LogKeyError     = "error"
	LogKeyURL       = "url"
	LogKeyStatus    = "status_code"
	LogKeyFile      = "file"
	LogKeyLang      = "lang"
	LogKeyKey       = "key"
	LogKeyListen    = "listen"
	LogKeyValue     = "value"
	LogKeyLine      = "line"
	LogKeyZone      = "zone"
	LogKeyOffset    = "offset"
	LogKeyKind      = "kind"
	LogKeyPolicy    = "policy"
	LogKeyCount     = "count"
	LogKeyTotal     = "total"
	LogKeyFailed    = "failed"
	LogKeyProp      = "property"
	LogKeySizeBytes = "size_bytes"
	LogKeyETag      = "etag"
	LogKeyDuration  = "duration_ms"

	// Startup Info Keys
	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyCommit  = "commit"
	LogKeyGoVer   = "go_version"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompEngine  = "engine"
	CompZoneDB  = "zonedb"
	CompServer  = "server"
	CompFetcher = "fetcher"
	CompMain    = "main"
	CompI18n    = "i18n"
	CompConfig  = "config"
)
