// Package config loads engine settings for the batchrun CLI from a JSON or
// YAML file with a BATCHRUN_* environment overlay, and turns them into
// batch.Options.
//
// Example:
//
//	cfg, err := config.Load("batchrun.yaml")
//	if err != nil { ... }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { ... }
//	report, err := eng.Execute(ctx, src, work) // eng built with cfg.Options()
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/utkarsh5026/batchrun/batch"
	"github.com/utkarsh5026/batchrun/internal/algorithms"
)

// Config mirrors the engine options. Durations are in seconds.
type Config struct {
	WorkerCount       int     `yaml:"worker_count" json:"worker_count"`
	MaxRetries        int     `yaml:"max_retries" json:"max_retries"`
	BackoffSeconds    float64 `yaml:"backoff_seconds" json:"backoff_seconds"`
	Backoff           string  `yaml:"backoff" json:"backoff"` // fixed, exponential, jittered
	MaxBackoffSeconds float64 `yaml:"max_backoff_seconds" json:"max_backoff_seconds"` // 0 = 32 × backoff_seconds
	BatchSize         int     `yaml:"batch_size" json:"batch_size"`
	QueueHeadroom     int     `yaml:"queue_headroom_multiplier" json:"queue_headroom_multiplier"`
	RateLimit         float64 `yaml:"rate_limit" json:"rate_limit"` // items/sec, 0 = unlimited
	RateBurst         int     `yaml:"rate_burst" json:"rate_burst"`
	CPUAffinity       bool    `yaml:"cpu_affinity" json:"cpu_affinity"`
	LogLevel          string  `yaml:"log_level" json:"log_level"`
}

// Default returns the engine defaults.
func Default() Config {
	return Config{
		WorkerCount:    batch.DefaultWorkerCount,
		MaxRetries:     batch.DefaultMaxRetries,
		BackoffSeconds: batch.DefaultBackoff.Seconds(),
		Backoff:        algorithms.BackoffFixed.String(),
		BatchSize:      batch.DefaultBatchSize,
		QueueHeadroom:  batch.DefaultQueueHeadroom,
		RateBurst:      1,
		LogLevel:       "info",
	}
}

// Load reads configuration from a JSON or YAML file, chosen by extension.
// Fields missing from the file keep their defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("worker_count must be positive, got %d", c.WorkerCount))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.BackoffSeconds < 0 || c.MaxBackoffSeconds < 0 {
		errs = append(errs, errors.New("backoff durations must not be negative"))
	}
	if _, ok := algorithms.ParseBackoffType(c.Backoff); !ok {
		errs = append(errs, fmt.Errorf("unknown backoff %q", c.Backoff))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.QueueHeadroom <= 0 {
		errs = append(errs, fmt.Errorf("queue_headroom_multiplier must be positive, got %d", c.QueueHeadroom))
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst <= 0) {
		errs = append(errs, errors.New("rate_limit needs a positive rate_burst"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Options converts c into engine options. c must be valid.
func (c Config) Options() []batch.Option {
	bt, _ := algorithms.ParseBackoffType(c.Backoff)

	opts := []batch.Option{
		batch.WithWorkerCount(c.WorkerCount),
		batch.WithMaxRetries(c.MaxRetries),
		batch.WithBackoff(seconds(c.BackoffSeconds)),
		batch.WithBackoffStrategy(bt, seconds(c.MaxBackoffSeconds)),
		batch.WithBatchSize(c.BatchSize),
		batch.WithQueueHeadroom(c.QueueHeadroom),
	}
	if c.RateLimit > 0 {
		opts = append(opts, batch.WithRateLimit(c.RateLimit, c.RateBurst))
	}
	if c.CPUAffinity {
		opts = append(opts, batch.WithCPUAffinity())
	}
	return opts
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return l, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
