package common

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Pipeline.Workers)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.True(t, cfg.Fetch.Download)
	assert.Equal(t, DefaultProgressDSN, cfg.Progress.DSN)
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load("datares", []string{
		"--csv-file", "listed.csv",
		"--workers", "8",
		"--max-attempts", "4",
		"--base-delay", "250ms",
		"--no-download",
		"--log-level", "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, "listed.csv", cfg.Source.Path)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 4, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.BaseDelay)
	assert.False(t, cfg.Fetch.Download)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("DATARES_WORKERS", "12")
	t.Setenv("DATARES_PROGRESS", "memory")

	cfg, err := Load("datares", nil)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Pipeline.Workers)
	assert.Equal(t, "memory", cfg.Progress.DSN)
}

func TestLoadFlagBeatsEnvironment(t *testing.T) {
	t.Setenv("DATARES_WORKERS", "12")

	cfg, err := Load("datares", []string{"--workers=2"})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"zero attempts", func(c *Config) { c.Fetch.MaxAttempts = 0 }},
		{"jitter above one", func(c *Config) { c.Fetch.Jitter = 1.5 }},
		{"no progress dsn", func(c *Config) { c.Progress.DSN = "" }},
		{"download without cache dir", func(c *Config) { c.Fetch.CacheDir = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"no source", func(c *Config) { c.Source = SourceConfig{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFatalConfig), "want fatal config error, got %v", err)
		})
	}
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load("datares", []string{"--bogus"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatalConfig)
}

func TestLoadDiscover(t *testing.T) {
	cfg, err := LoadDiscover("datares-discover", []string{
		"--start", "2024-01-01",
		"--end", "2024-06-30",
		"--type", "semi",
		"--exchanges", "sse,szse",
		"--year", "2023",
	})
	require.NoError(t, err)
	assert.Equal(t, "semi", cfg.ReportType)
	assert.Equal(t, []string{"sse", "szse"}, cfg.Exchanges)
	assert.Equal(t, 2023, cfg.TargetYear)
}

func TestLoadDiscoverValidation(t *testing.T) {
	_, err := LoadDiscover("datares-discover", []string{"--start", "2024-06-30", "--end", "2024-01-01"})
	assert.ErrorIs(t, err, ErrFatalConfig)

	_, err = LoadDiscover("datares-discover", []string{"--start", "2024/01/01", "--end", "2024-01-02"})
	assert.ErrorIs(t, err, ErrFatalConfig)
}
