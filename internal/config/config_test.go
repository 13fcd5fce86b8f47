package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "DATA_DIR", "DATABASE_URL", "PORT", "HTTP_TIMEOUT", "FETCH_INTERVAL",
	"TRACE_STDOUT", "LOG_LEVEL", "ALLOWED_ORIGINS", "ACLED_API_KEY", "ACLED_EMAIL",
	"ACLED_BASE_URL", "ACLED_COUNTRY", "ACLED_START_DATE", "ACLED_PAGE_LIMIT",
	"ACLED_MAX_PAGES", "ACLED_WINDOW_MODE", "ACLED_RECORDS_FIELD", "VIIRS_URL", "VIIRS_PARAMS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Duration(0), cfg.HTTPTimeout)
	assert.Equal(t, 24*time.Hour, cfg.FetchInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)

	assert.Equal(t, "https://api.acleddata.com/acled/read", cfg.ACLED.BaseURL)
	assert.Equal(t, "Ukraine", cfg.ACLED.Country)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), cfg.ACLED.StartDate)
	assert.Equal(t, 1000, cfg.ACLED.PageLimit)
	assert.Equal(t, 100, cfg.ACLED.MaxPages)
	assert.Equal(t, WindowModeDaily, cfg.ACLED.WindowMode)
	assert.Equal(t, "data", cfg.ACLED.RecordsField)
	assert.Empty(t, cfg.VIIRS.URL)
	assert.Empty(t, cfg.VIIRS.Params)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ACLED_API_KEY", "secret")
	t.Setenv("ACLED_EMAIL", "analyst@example.org")
	t.Setenv("ACLED_START_DATE", "2022-01-01")
	t.Setenv("ACLED_MAX_PAGES", "5")
	t.Setenv("ACLED_WINDOW_MODE", "RANGE")
	t.Setenv("VIIRS_URL", "https://firms.example.org/api")
	t.Setenv("VIIRS_PARAMS", "source=VIIRS_SNPP_NRT&day_range=1")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.ACLED.Credentials.APIKey)
	assert.Equal(t, "analyst@example.org", cfg.ACLED.Credentials.Email)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), cfg.ACLED.StartDate)
	assert.Equal(t, 5, cfg.ACLED.MaxPages)
	assert.Equal(t, WindowModeRange, cfg.ACLED.WindowMode)
	assert.Equal(t, map[string]string{"source": "VIIRS_SNPP_NRT", "day_range": "1"}, cfg.VIIRS.Params)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.NoError(t, cfg.ACLED.Validate())
	assert.NoError(t, cfg.VIIRS.Validate())
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: "/var/lib/conflictwatch"
http_timeout: "45s"
acled:
  country: "Syria"
  start_date: "2024-03-01"
  page_limit: "500"
viirs:
  url: "https://firms.example.org/from-file"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("ACLED_COUNTRY", "Sudan")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/conflictwatch", cfg.DataDir)
	assert.Equal(t, 45*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "Sudan", cfg.ACLED.Country)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), cfg.ACLED.StartDate)
	assert.Equal(t, 500, cfg.ACLED.PageLimit)
	assert.Equal(t, "https://firms.example.org/from-file", cfg.VIIRS.URL)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"ACLED_START_DATE":  "01/01/2023",
		"ACLED_PAGE_LIMIT":  "lots",
		"ACLED_MAX_PAGES":   "0",
		"ACLED_WINDOW_MODE": "weekly",
		"HTTP_TIMEOUT":      "soon",
		"FETCH_INTERVAL":    "0s",
		"TRACE_STDOUT":      "maybe",
		"VIIRS_PARAMS":      "novalue",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateReportsMissingCredentials(t *testing.T) {
	err := ACLEDConfig{}.Validate()
	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "ACLED_API_KEY", missing.Key)
	assert.EqualError(t, err, "ACLED_API_KEY is required")

	c := ACLEDConfig{}
	c.Credentials.APIKey = "k"
	err = c.Validate()
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "ACLED_EMAIL", missing.Key)

	err = VIIRSConfig{}.Validate()
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "VIIRS_URL", missing.Key)
}
