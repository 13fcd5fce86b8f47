package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/backyonatan-alt/conflictwatch/internal/model"
)

// Window modes for the event fetcher.
const (
	WindowModeDaily = "daily"
	WindowModeRange = "range"
)

const (
	defaultACLEDBaseURL = "https://api.acleddata.com/acled/read"
	defaultCountry      = "Ukraine"
	defaultStartDate    = "2023-01-01"
	defaultPageLimit    = 1000
	defaultMaxPages     = 100
	defaultRecordsField = "data"
)

type Config struct {
	DataDir        string
	ACLED          ACLEDConfig
	VIIRS          VIIRSConfig
	HTTPTimeout    time.Duration
	DatabaseURL    string
	Port           string
	AllowedOrigins []string
	FetchInterval  time.Duration
	TraceStdout    bool
	LogLevel       slog.Level
}

// ACLEDConfig drives the windowed, paginated event fetcher.
type ACLEDConfig struct {
	Credentials  model.Credentials
	BaseURL      string
	Country      string
	StartDate    time.Time
	PageLimit    int
	MaxPages     int
	WindowMode   string
	RecordsField string
}

// VIIRSConfig drives the single-shot snapshot fetcher.
type VIIRSConfig struct {
	URL    string
	Params map[string]string
}

// MissingError reports a required setting that was not provided.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return e.Key + " is required"
}

// Validate checks the settings the event fetcher cannot run without.
func (c ACLEDConfig) Validate() error {
	if c.Credentials.APIKey == "" {
		return &MissingError{Key: "ACLED_API_KEY"}
	}
	if c.Credentials.Email == "" {
		return &MissingError{Key: "ACLED_EMAIL"}
	}
	return nil
}

// Validate checks that the snapshot endpoint has been configured.
func (c VIIRSConfig) Validate() error {
	if c.URL == "" {
		return &MissingError{Key: "VIIRS_URL"}
	}
	return nil
}

// fileConfig mirrors the optional YAML file. Credentials are env-only.
type fileConfig struct {
	DataDir        string `yaml:"data_dir"`
	HTTPTimeout    string `yaml:"http_timeout"`
	Port           string `yaml:"port"`
	AllowedOrigins string `yaml:"allowed_origins"`
	FetchInterval  string `yaml:"fetch_interval"`
	TraceStdout    string `yaml:"trace_stdout"`
	LogLevel       string `yaml:"log_level"`
	ACLED          struct {
		BaseURL      string `yaml:"base_url"`
		Country      string `yaml:"country"`
		StartDate    string `yaml:"start_date"`
		PageLimit    string `yaml:"page_limit"`
		MaxPages     string `yaml:"max_pages"`
		WindowMode   string `yaml:"window_mode"`
		RecordsField string `yaml:"records_field"`
	} `yaml:"acled"`
	VIIRS struct {
		URL    string `yaml:"url"`
		Params string `yaml:"params"`
	} `yaml:"viirs"`
}

// LoadDotEnv populates the environment from a .env file in the working
// directory. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load builds the configuration from the environment, layered over the YAML
// file named by CONFIG_FILE when set. Missing credentials are not an error
// here; each fetcher validates its own section before doing any I/O.
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg := &Config{
		DataDir:     setting("DATA_DIR", fc.DataDir, "data"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Port:        setting("PORT", fc.Port, "8080"),
	}

	var err error
	if cfg.HTTPTimeout, err = parseDuration("HTTP_TIMEOUT", setting("HTTP_TIMEOUT", fc.HTTPTimeout, "0s")); err != nil {
		return nil, err
	}
	if cfg.FetchInterval, err = parseDuration("FETCH_INTERVAL", setting("FETCH_INTERVAL", fc.FetchInterval, "24h")); err != nil {
		return nil, err
	}
	if cfg.FetchInterval <= 0 {
		return nil, fmt.Errorf("FETCH_INTERVAL must be positive")
	}
	if cfg.TraceStdout, err = parseBool("TRACE_STDOUT", setting("TRACE_STDOUT", fc.TraceStdout, "false")); err != nil {
		return nil, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(setting("LOG_LEVEL", fc.LogLevel, "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	origins := setting("ALLOWED_ORIGINS", fc.AllowedOrigins, "")
	if origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{"*"}
	}

	acled := ACLEDConfig{
		Credentials: model.Credentials{
			APIKey: os.Getenv("ACLED_API_KEY"),
			Email:  os.Getenv("ACLED_EMAIL"),
		},
		BaseURL:      setting("ACLED_BASE_URL", fc.ACLED.BaseURL, defaultACLEDBaseURL),
		Country:      setting("ACLED_COUNTRY", fc.ACLED.Country, defaultCountry),
		WindowMode:   strings.ToLower(setting("ACLED_WINDOW_MODE", fc.ACLED.WindowMode, WindowModeDaily)),
		RecordsField: setting("ACLED_RECORDS_FIELD", fc.ACLED.RecordsField, defaultRecordsField),
	}
	start := setting("ACLED_START_DATE", fc.ACLED.StartDate, defaultStartDate)
	if acled.StartDate, err = time.ParseInLocation(model.DateLayout, start, time.UTC); err != nil {
		return nil, fmt.Errorf("ACLED_START_DATE: %w", err)
	}
	if acled.PageLimit, err = parsePositive("ACLED_PAGE_LIMIT", setting("ACLED_PAGE_LIMIT", fc.ACLED.PageLimit, ""), defaultPageLimit); err != nil {
		return nil, err
	}
	if acled.MaxPages, err = parsePositive("ACLED_MAX_PAGES", setting("ACLED_MAX_PAGES", fc.ACLED.MaxPages, ""), defaultMaxPages); err != nil {
		return nil, err
	}
	if acled.WindowMode != WindowModeDaily && acled.WindowMode != WindowModeRange {
		return nil, fmt.Errorf("ACLED_WINDOW_MODE: unknown mode %q", acled.WindowMode)
	}
	cfg.ACLED = acled

	cfg.VIIRS.URL = setting("VIIRS_URL", fc.VIIRS.URL, "")
	if cfg.VIIRS.Params, err = parseParams(setting("VIIRS_PARAMS", fc.VIIRS.Params, "")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setting returns the environment value for key, then the file value, then def.
func setting(key, fileVal, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if fileVal != "" {
		return fileVal
	}
	return def
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parsePositive(key, v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

// parseParams reads "k=v&k2=v2" into a map.
func parseParams(v string) (map[string]string, error) {
	params := map[string]string{}
	if v == "" {
		return params, nil
	}
	for _, pair := range strings.Split(v, "&") {
		if pair == "" {
			continue
		}
		k, val, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("VIIRS_PARAMS: malformed pair %q", pair)
		}
		params[k] = val
	}
	return params, nil
}
