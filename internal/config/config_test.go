package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modschedule/internal/catalog"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, catalog.DefaultScheduleURL, cfg.ScheduleURL)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, catalog.DefaultTeachingWeeks(), cfg.DefaultTeachingWeeks)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
academic_year: 2024
semester: "2"
cache_ttl_minutes: 30
fetch_concurrency: -1
log_level: verbose
term_start: "2024-08-14"
basic_auth:
  username: admin
  password: secret
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2024, cfg.AcademicYear)
	assert.Equal(t, "2", cfg.Semester)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "Asia/Singapore", cfg.Timezone)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("academic_year: [\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.AcademicYear = 2025
	cfg.MaxSteps = 5000
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2025, loaded.AcademicYear)
	assert.Equal(t, 5000, loaded.MaxSteps)
}

func TestTermStartTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "UTC"

	_, err := cfg.TermStartTime()
	assert.Error(t, err)

	cfg.TermStart = "2024-08-12"
	ts, err := cfg.TermStartTime()
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 8, 12, 0, 0, 0, 0, time.UTC)))

	cfg.TermStart = "12/08/2024"
	_, err = cfg.TermStartTime()
	assert.Error(t, err)
}
