package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"turnocal/internal/fsutil"
	appLog "turnocal/internal/log"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment variables (optionally from a .env file loaded
// by the CLI) override file values; CLI flags override both.

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA civil timezone calendar events are localized to.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir is the historical store root (one directory per month).
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// CalendarDir receives the per-person .ics feeds.
	CalendarDir string `yaml:"calendar_dir" json:"calendar_dir"`

	// UploadDir stages HTTP uploads before they are imported.
	UploadDir string `yaml:"upload_dir" json:"upload_dir"`

	// InboxDir, if set, is watched for dropped documents to import.
	InboxDir string `yaml:"inbox_dir" json:"inbox_dir"`

	// CatalogPath is the SQLite import ledger.
	CatalogPath string `yaml:"catalog_path" json:"catalog_path"`

	// CleanupInterval is how often the result cache is swept; entries
	// older than twice this are evicted. Go duration syntax, e.g. "1h".
	CleanupInterval string `yaml:"cleanup_interval" json:"cleanup_interval"`

	// FeedWorkers bounds parallel feed synthesis after an import.
	FeedWorkers int `yaml:"feed_workers" json:"feed_workers"`

	// LogLevel is DEBUG, INFO or ERROR. LogFormat is json or console.
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen          = "127.0.0.1:5000"
	defaultTimezone        = "Europe/Rome"
	defaultDataDir         = "./database"
	defaultCalendarDir     = "./calendars"
	defaultUploadDir       = "./uploads"
	defaultCatalogPath     = "./database/catalog.db"
	defaultCleanupInterval = "1h"
	defaultFeedWorkers     = 4
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		Timezone:        defaultTimezone,
		DataDir:         defaultDataDir,
		CalendarDir:     defaultCalendarDir,
		UploadDir:       defaultUploadDir,
		CatalogPath:     defaultCatalogPath,
		CleanupInterval: defaultCleanupInterval,
		FeedWorkers:     defaultFeedWorkers,
		LogLevel:        "INFO",
		LogFormat:       "json",
		CORSOrigins:     []string{},
		BasicAuth:       nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.CalendarDir == "" {
		c.CalendarDir = defaultCalendarDir
	}
	if c.UploadDir == "" {
		c.UploadDir = defaultUploadDir
	}
	if c.CatalogPath == "" {
		c.CatalogPath = defaultCatalogPath
	}
	if d, err := time.ParseDuration(c.CleanupInterval); err != nil || d <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.FeedWorkers <= 0 {
		c.FeedWorkers = defaultFeedWorkers
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "ERROR":
		c.LogLevel = strings.ToUpper(c.LogLevel)
	default:
		c.LogLevel = "INFO"
	}
	if c.LogFormat != "console" {
		c.LogFormat = "json"
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{}
	}
}

// Interval returns CleanupInterval parsed; call after Normalize.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.CleanupInterval)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultCleanupInterval)
	}
	return d
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// ApplyEnv overrides fields from TURNOCAL_* environment variables.
func (c *Config) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("TURNOCAL_LISTEN", &c.Listen)
	setString("TURNOCAL_TIMEZONE", &c.Timezone)
	setString("TURNOCAL_DATA_DIR", &c.DataDir)
	setString("TURNOCAL_CALENDAR_DIR", &c.CalendarDir)
	setString("TURNOCAL_INBOX_DIR", &c.InboxDir)
	setString("TURNOCAL_UPLOAD_DIR", &c.UploadDir)
	setString("TURNOCAL_CATALOG_PATH", &c.CatalogPath)
	setString("TURNOCAL_LOG_LEVEL", &c.LogLevel)
	setString("TURNOCAL_LOG_FORMAT", &c.LogFormat)
	if v := os.Getenv("TURNOCAL_FEED_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FeedWorkers = n
		}
	}
	c.Normalize()
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
