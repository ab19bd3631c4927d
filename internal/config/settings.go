package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Settings holds the runtime configuration of the application.
// Values come from the environment (optionally seeded by a .env file) and
// are overridden by command-line flags in cmd/icaltz.
type Settings struct {
	Zone      string // Zone used to localize UTC values
	Policy    string // One of the Policy* constants
	Language  string // ISO 639-1 output language
	ZonesFile string // Optional .ics file with extra VTIMEZONEs
	ZonesURL  string // Optional http(s) URL with extra VTIMEZONEs
	Listen    string // HTTP listen address for the serve command
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Zone:     DefaultZone,
		Policy:   DefaultPolicy,
		Language: DefaultLanguage,
		Listen:   DefaultListen,
	}
}

// Load reads the optional .env file and then the process environment.
// A missing .env file is not an error.
func Load() Settings {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn(MsgEnvFile,
			LogKeyComponent, CompConfig,
			LogKeyError, err,
		)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds Settings from a lookup function, falling back to defaults
// for unset or empty variables.
func FromEnv(lookup func(string) (string, bool)) Settings {
	s := DefaultSettings()
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&s.Zone, EnvZone)
	set(&s.Policy, EnvPolicy)
	set(&s.Language, EnvLang)
	set(&s.ZonesFile, EnvZonesFile)
	set(&s.ZonesURL, EnvZonesURL)
	set(&s.Listen, EnvListen)
	return s
}
