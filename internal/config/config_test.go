package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/icaltz/internal/config"
)

// TestConstants_Integrity ensures critical constants are not empty or malformed.
func TestConstants_Integrity(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"AppName", config.AppName},
		{"Version", config.Version},
		{"UserAgent", config.UserAgent},
		{"ICalVersion", config.ICalVersion},
		{"ICalProdid", config.ICalProdid},
		{"DefaultZone", config.DefaultZone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEmpty(t, tt.value, "Critical constant %s should not be empty", tt.name)
		})
	}
}

// TestGrammar_Consistency keeps the DATE-TIME lengths in sync with the layouts.
func TestGrammar_Consistency(t *testing.T) {
	assert.Equal(t, config.DateTimeLen, len(config.DateTimeLayout))
	assert.Equal(t, config.UTCDateTimeLen, len(config.UTCDateLayout))
	assert.True(t, strings.HasSuffix(config.UTCDateLayout, string(config.UTCDesignator)))
	assert.Equal(t, 2, config.TransitionHour, "DST rules fire at 02:00 local time")
}

func TestUserAgent_Format(t *testing.T) {
	assert.True(t, strings.HasPrefix(config.UserAgent, config.AppName+"/"), "UserAgent must start with AppName/")
}

func TestTimeoutsAndLimits(t *testing.T) {
	t.Parallel()

	assert.Greater(t, config.HTTPTimeout, 0*time.Second, "HTTPTimeout must be positive")
	assert.LessOrEqual(t, config.HTTPTimeout, 2*time.Minute, "HTTPTimeout should not be excessively long")
	assert.Greater(t, config.ShutdownTimeout, 0*time.Second, "ShutdownTimeout must be positive")
	assert.Greater(t, config.MaxHTTPResponseSize, 0, "MaxHTTPResponseSize must be positive")
}

func TestFromEnv(t *testing.T) {
	env := map[string]string{
		config.EnvZone:   "America/New_York",
		config.EnvPolicy: config.PolicyReject,
		config.EnvLang:   "", // empty values keep the default
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	s := config.FromEnv(lookup)

	assert.Equal(t, "America/New_York", s.Zone)
	assert.Equal(t, config.PolicyReject, s.Policy)
	assert.Equal(t, config.DefaultLanguage, s.Language)
	assert.Equal(t, config.DefaultListen, s.Listen)
	assert.Empty(t, s.ZonesFile)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	content := config.EnvZonesFile + "=/tmp/zones.ics\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.EnvFile), []byte(content), config.FilePermUserRW))
	t.Cleanup(func() { _ = os.Unsetenv(config.EnvZonesFile) })

	s := config.Load()
	assert.Equal(t, "/tmp/zones.ics", s.ZonesFile)
}

func TestLoad_NoDotEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv(config.EnvZone, "America/Chicago")

	s := config.Load()
	assert.Equal(t, "America/Chicago", s.Zone)
}
