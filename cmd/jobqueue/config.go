package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/xraph/jobqueue"
)

// Config is the process configuration, read from JOBQUEUE_* variables.
type Config struct {
	// Driver selects the persister: sqlite, postgres, pgx, redis, mongo
	// or memory.
	Driver string `env:"DRIVER" envDefault:"sqlite"`

	// DSN is the driver connection string. For sqlite it is a file DSN,
	// for redis and mongo a URL.
	DSN string `env:"DSN" envDefault:"file:jobqueue.db?_journal_mode=WAL&_busy_timeout=5000"`

	// MongoDatabase names the database used by the mongo driver.
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"jobqueue"`

	Listen          string        `env:"LISTEN" envDefault:":8080"`
	BasePath        string        `env:"BASE_PATH"`
	Concurrency     int           `env:"CONCURRENCY" envDefault:"10"`
	DefaultRetries  int           `env:"DEFAULT_RETRIES" envDefault:"25"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Lanes is a comma separated list of name[:weight] pairs, in
	// priority order. Empty means the default lanes.
	Lanes []string `env:"LANES" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Audit logs every entry lifecycle event as an audit record.
	Audit bool `env:"AUDIT" envDefault:"false"`

	// AuditSeverity is the lowest audit severity logged: info, warning or
	// critical.
	AuditSeverity string `env:"AUDIT_SEVERITY" envDefault:"info"`

	// Demo registers the sample jobs and enqueues a batch at startup.
	Demo bool `env:"DEMO" envDefault:"true"`

	// DemoSchedule is the cron expression for recurring demo work.
	// Empty disables it.
	DemoSchedule string `env:"DEMO_SCHEDULE" envDefault:"@every 1m"`
}

func loadConfig() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "JOBQUEUE_"})
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// lanes parses Config.Lanes.
func (c Config) lanes() ([]jobqueue.Lane, error) {
	if len(c.Lanes) == 0 {
		return jobqueue.DefaultLanes(), nil
	}
	out := make([]jobqueue.Lane, 0, len(c.Lanes))
	for _, raw := range c.Lanes {
		name, weight, found := strings.Cut(strings.TrimSpace(raw), ":")
		l := jobqueue.Lane{Name: name, Weight: 1}
		if found {
			w, err := strconv.Atoi(weight)
			if err != nil || w < 1 {
				return nil, fmt.Errorf("lane %q: invalid weight %q", name, weight)
			}
			l.Weight = w
		}
		out = append(out, l)
	}
	return out, nil
}

func (c Config) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.LogFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
}
