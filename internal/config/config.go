package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"modschedule/internal/catalog"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// ScheduleURL is the class schedule search endpoint.
	ScheduleURL string `yaml:"schedule_url" json:"schedule_url"`

	// AcademicYear and Semester select the class schedule, e.g. 2024 and "1".
	AcademicYear int    `yaml:"academic_year" json:"academic_year"`
	Semester     string `yaml:"semester" json:"semester"`

	// CacheDir holds fetched schedule pages.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// CacheTTLMinutes is how long a fetched page is reused before asking the
	// site again. Stale pages are still used when the site is unreachable.
	CacheTTLMinutes int `yaml:"cache_ttl_minutes" json:"cache_ttl_minutes"`
	// FetchConcurrency bounds parallel course fetches.
	FetchConcurrency int `yaml:"fetch_concurrency" json:"fetch_concurrency"`

	// Timezone is the IANA timezone classes are held in.
	Timezone string `yaml:"timezone" json:"timezone"`
	// TermStart is any date (YYYY-MM-DD) in teaching week 1. Needed for
	// calendar export only.
	TermStart string `yaml:"term_start" json:"term_start"`
	// RecessAfterWeek is the teaching week followed by the recess week.
	// Zero means no recess week.
	RecessAfterWeek int `yaml:"recess_after_week" json:"recess_after_week"`
	// DefaultTeachingWeeks applies to classes and blocks without explicit
	// teaching weeks.
	DefaultTeachingWeeks []int `yaml:"default_teaching_weeks" json:"default_teaching_weeks"`

	// MaxSteps bounds the search. Zero means unbounded.
	MaxSteps int `yaml:"max_steps" json:"max_steps"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format" json:"log_format"`

	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultPath returns the config file location under the user config dir,
// falling back to the working directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "modschedule.yaml"
	}
	return filepath.Join(dir, "modschedule", "config.yaml")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "var", "schedule-cache")
	}
	return filepath.Join(dir, "modschedule")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		ScheduleURL:          catalog.DefaultScheduleURL,
		AcademicYear:         time.Now().Year(),
		Semester:             "1",
		CacheDir:             defaultCacheDir(),
		CacheTTLMinutes:      360,
		FetchConcurrency:     4,
		Timezone:             "Asia/Singapore",
		RecessAfterWeek:      7,
		DefaultTeachingWeeks: catalog.DefaultTeachingWeeks(),
		LogLevel:             "info",
		LogFormat:            "console",
		Listen:               "127.0.0.1:8080",
		BasicAuth:            nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.ScheduleURL == "" {
		c.ScheduleURL = catalog.DefaultScheduleURL
	}
	if c.AcademicYear <= 0 {
		c.AcademicYear = time.Now().Year()
	}
	if c.Semester == "" {
		c.Semester = "1"
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir()
	}
	if c.CacheTTLMinutes < 0 {
		c.CacheTTLMinutes = 0
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Singapore"
	}
	if c.RecessAfterWeek < 0 {
		c.RecessAfterWeek = 0
	}
	if len(c.DefaultTeachingWeeks) == 0 {
		c.DefaultTeachingWeeks = catalog.DefaultTeachingWeeks()
	}
	if c.MaxSteps < 0 {
		c.MaxSteps = 0
	}
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = "info"
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		c.LogFormat = "console"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
}

// CacheTTL returns CacheTTLMinutes as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// TermStartTime parses TermStart in the configured timezone.
func (c *Config) TermStartTime() (time.Time, error) {
	if c.TermStart == "" {
		return time.Time{}, errors.New("config: term_start is not set")
	}
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(time.DateOnly, c.TermStart, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: term_start %q: %w", c.TermStart, err)
	}
	return t, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
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
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".modschedule-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
