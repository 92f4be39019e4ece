package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/yaoapp/kun/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the bus settings read from the environment.
type Config struct {
	Mode string `env:"EVENTBUS_MODE" envDefault:"production"` // production | development

	ComputeWorkers int    `env:"EVENTBUS_COMPUTE_WORKERS" envDefault:"0"` // 0 = GOMAXPROCS
	IOWorkers      int    `env:"EVENTBUS_IO_WORKERS" envDefault:"4"`
	IOPrefix       string `env:"EVENTBUS_IO_PREFIX" envDefault:"io"`
	FailureLogRate int    `env:"EVENTBUS_FAILURE_LOG_RATE" envDefault:"5"` // per address per second, 0 = unlimited

	LogLevel      string `env:"EVENTBUS_LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"EVENTBUS_LOG_FORMAT" envDefault:"text"` // text | json
	LogFile       string `env:"EVENTBUS_LOG_FILE"`                     // empty = stderr
	LogMaxSize    int    `env:"EVENTBUS_LOG_MAX_SIZE" envDefault:"100"` // megabytes
	LogMaxBackups int    `env:"EVENTBUS_LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAge     int    `env:"EVENTBUS_LOG_MAX_AGE" envDefault:"28"` // days

	DrainTimeout time.Duration `env:"EVENTBUS_DRAIN_TIMEOUT" envDefault:"30s"`
}

var levels = map[string]log.Level{
	"trace": log.TraceLevel,
	"debug": log.DebugLevel,
	"info":  log.InfoLevel,
	"warn":  log.WarnLevel,
	"error": log.ErrorLevel,
}

// Load reads the given .env files that exist, then the environment.
// Variables already set in the environment take precedence over the files.
func Load(files ...string) (Config, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", strings.Join(existing, ","), err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	if c.Mode != "production" && c.Mode != "development" {
		errs = multierror.Append(errs, fmt.Errorf("EVENTBUS_MODE must be production or development, got %q", c.Mode))
	}
	if c.ComputeWorkers < 0 {
		errs = multierror.Append(errs, fmt.Errorf("EVENTBUS_COMPUTE_WORKERS must not be negative, got %d", c.ComputeWorkers))
	}
	if c.IOWorkers < 1 {
		errs = multierror.Append(errs, fmt.Errorf("EVENTBUS_IO_WORKERS must be at least 1, got %d", c.IOWorkers))
	}
	if c.IOPrefix == "" {
		errs = multierror.Append(errs, fmt.Errorf("EVENTBUS_IO_PREFIX must not be empty"))
	}
	if c.FailureLogRate < 0 {
		errs = multierror.Append(errs, fmt.Errorf("EVENTBUS_FAILURE_LOG_RATE must not be negative, got %d", c.FailureLogRate))
	}
	if _, ok := levels[strings.ToLower(c.LogLevel)]; !ok {
		errs = multierror.Append(errs, fmt.Errorf("EVENTBUS_LOG_LEVEL %q is not one of trace, debug, info, warn, error", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errs = multierror.Append(errs, fmt.Errorf("EVENTBUS_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.DrainTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("EVENTBUS_DRAIN_TIMEOUT must be positive, got %s", c.DrainTimeout))
	}
	return errs.ErrorOrNil()
}

// IsDevelopment reports whether the bus runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Mode == "development"
}

// SetupLogging applies level, format and output to the kun logger.
// Development mode always logs text at trace level.
// The returned closer releases the log file, if any.
func (c Config) SetupLogging() io.Closer {
	level, ok := levels[strings.ToLower(c.LogLevel)]
	if !ok {
		level = log.InfoLevel
	}
	format := log.Format(log.TEXT)
	if strings.ToLower(c.LogFormat) == "json" {
		format = log.JSON
	}
	if c.IsDevelopment() {
		level = log.TraceLevel
		format = log.TEXT
	}
	log.SetLevel(level)
	log.SetFormatter(format)

	if c.LogFile == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}
	output := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSize,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAge,
		Compress:   true,
	}
	log.SetOutput(output)
	return output
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
