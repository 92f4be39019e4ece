package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yaoapp/kun/log"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Mode)
	assert.Equal(t, 0, cfg.ComputeWorkers)
	assert.Equal(t, 4, cfg.IOWorkers)
	assert.Equal(t, "io", cfg.IOPrefix)
	assert.Equal(t, 5, cfg.FailureLogRate)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, 30*time.Second, cfg.DrainTimeout)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("EVENTBUS_MODE", "development")
	t.Setenv("EVENTBUS_COMPUTE_WORKERS", "3")
	t.Setenv("EVENTBUS_IO_WORKERS", "7")
	t.Setenv("EVENTBUS_IO_PREFIX", "blocking")
	t.Setenv("EVENTBUS_DRAIN_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 3, cfg.ComputeWorkers)
	assert.Equal(t, 7, cfg.IOWorkers)
	assert.Equal(t, "blocking", cfg.IOPrefix)
	assert.Equal(t, 2*time.Second, cfg.DrainTimeout)
}

func TestLoadDotEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	content := "EVENTBUS_IO_WORKERS=9\nEVENTBUS_LOG_LEVEL=debug\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	// godotenv sets the process environment; register cleanups first
	t.Setenv("EVENTBUS_IO_WORKERS", "")
	os.Unsetenv("EVENTBUS_IO_WORKERS")
	t.Setenv("EVENTBUS_LOG_LEVEL", "warn")

	cfg, err := Load(file, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.IOWorkers)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("EVENTBUS_IO_WORKERS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse environment")
}

func TestValidateAggregates(t *testing.T) {
	cfg := Config{
		Mode:           "staging",
		ComputeWorkers: -1,
		IOWorkers:      0,
		IOPrefix:       "",
		FailureLogRate: -2,
		LogLevel:       "loud",
		LogFormat:      "xml",
		DrainTimeout:   0,
	}

	err := cfg.Validate()
	require.Error(t, err)

	merr, ok := err.(*multierror.Error)
	require.True(t, ok, "expected *multierror.Error, got %T", err)
	assert.Len(t, merr.Errors, 8)
	for _, name := range []string{
		"EVENTBUS_MODE", "EVENTBUS_COMPUTE_WORKERS", "EVENTBUS_IO_WORKERS", "EVENTBUS_IO_PREFIX",
		"EVENTBUS_FAILURE_LOG_RATE", "EVENTBUS_LOG_LEVEL", "EVENTBUS_LOG_FORMAT", "EVENTBUS_DRAIN_TIMEOUT",
	} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestValidateCaseInsensitive(t *testing.T) {
	cfg := Config{Mode: "production", IOWorkers: 1, IOPrefix: "io", LogLevel: "DEBUG", LogFormat: "JSON", DrainTimeout: time.Second}
	assert.NoError(t, cfg.Validate())
}

func TestSetupLoggingFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	defer log.SetLevel(log.InfoLevel)

	file := filepath.Join(t.TempDir(), "eventbus.log")
	cfg := Config{Mode: "production", LogLevel: "warn", LogFormat: "json", LogFile: file, LogMaxSize: 1}
	closer := cfg.SetupLogging()

	log.Warn("disk full on %s", "sda")
	log.Info("not written")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk full on sda")
	assert.NotContains(t, string(data), "not written")
}

func TestSetupLoggingStderr(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	cfg := Config{Mode: "development", LogLevel: "error", LogFormat: "json"}
	closer := cfg.SetupLogging()
	assert.NoError(t, closer.Close())
}
