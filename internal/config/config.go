// Package config loads callmq's process-wide configuration: a YAML file
// read via DefaultConfig+LoadFromFile, then CALLMQ_*-prefixed environment
// overrides applied via LoadFromEnv. Grounded on the two-phase
// file-then-env config pattern used elsewhere in this codebase; uses
// gopkg.in/yaml.v3 rather than encoding/json for the file format.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DaemonConfig holds callmqd's own process settings.
type DaemonConfig struct {
	HTTPAddr string `yaml:"http_addr"` // metrics/health listen address, empty disables it
	LogLevel string `yaml:"log_level"`
}

// RegistryConfig names the queues callmqd polls at start-up. The actual
// Register calls for callable types happen in host code; this only scopes
// which queues get a consumer loop, so that can change without a
// recompile of the call sites that matter operationally.
type RegistryConfig struct {
	Queues []string `yaml:"queues"`
}

// CoordinationBackend selects the coordination-store implementation.
type CoordinationBackend string

const (
	CoordinationMemory CoordinationBackend = "memory"
	CoordinationRedis  CoordinationBackend = "redis"
)

// CoordinationConfig configures the debounce/concurrency/rate-limit stores.
type CoordinationConfig struct {
	Backend CoordinationBackend `yaml:"backend"`
	Redis   RedisConfig         `yaml:"redis"`
}

// RedisConfig holds connection settings for the Redis-backed coordination
// stores and is ignored when Backend is memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueBackend selects the queue-provider implementation.
type QueueBackend string

const (
	QueueInProcess QueueBackend = "inprocess"
	QueueSQS       QueueBackend = "sqs"
)

// QueueConfig configures the publish/consume transport.
type QueueConfig struct {
	Backend QueueBackend `yaml:"backend"`
	SQS     SQSConfig    `yaml:"sqs"`
}

// SQSConfig maps logical queue names to SQS queue and dead-letter URLs,
// ignored when Backend is inprocess.
type SQSConfig struct {
	Region    string            `yaml:"region"`
	QueueURLs map[string]string `yaml:"queue_urls"`
	DLQURLs   map[string]string `yaml:"dlq_urls"`
}

// RetryConfig overrides the fixed interval ladder retry.Shell.Handle uses.
type RetryConfig struct {
	IntervalsSeconds []int `yaml:"intervals_seconds"` // empty keeps retry.Intervals
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ObservabilityConfig holds all observability-related settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// Config is the central configuration struct embedding all component
// configs.
type Config struct {
	Daemon        DaemonConfig        `yaml:"daemon"`
	Registry      RegistryConfig      `yaml:"registry"`
	Coordination  CoordinationConfig  `yaml:"coordination"`
	Queue         QueueConfig         `yaml:"queue"`
	Retry         RetryConfig         `yaml:"retry"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DefaultConfig returns a Config with sensible defaults: in-memory
// coordination stores and an in-process queue, suitable for local runs
// without any external services.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			HTTPAddr: ":9090",
			LogLevel: "info",
		},
		Registry: RegistryConfig{
			Queues: []string{"default"},
		},
		Coordination: CoordinationConfig{
			Backend: CoordinationMemory,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Queue: QueueConfig{
			Backend: QueueInProcess,
		},
		Retry: RetryConfig{},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "callmq",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file, starting from
// DefaultConfig so a partial file only overrides what it names.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies CALLMQ_*-prefixed environment variable overrides to
// cfg in place.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CALLMQ_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("CALLMQ_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("CALLMQ_QUEUES"); v != "" {
		cfg.Registry.Queues = strings.Split(v, ",")
	}

	if v := os.Getenv("CALLMQ_COORDINATION_BACKEND"); v != "" {
		cfg.Coordination.Backend = CoordinationBackend(v)
	}
	if v := os.Getenv("CALLMQ_REDIS_ADDR"); v != "" {
		cfg.Coordination.Redis.Addr = v
	}
	if v := os.Getenv("CALLMQ_REDIS_PASSWORD"); v != "" {
		cfg.Coordination.Redis.Password = v
	}
	if v := os.Getenv("CALLMQ_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Coordination.Redis.DB = n
		}
	}

	if v := os.Getenv("CALLMQ_QUEUE_BACKEND"); v != "" {
		cfg.Queue.Backend = QueueBackend(v)
	}
	if v := os.Getenv("CALLMQ_SQS_REGION"); v != "" {
		cfg.Queue.SQS.Region = v
	}

	if v := os.Getenv("CALLMQ_RETRY_INTERVALS_SECONDS"); v != "" {
		var intervals []int
		for _, part := range strings.Split(v, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				intervals = append(intervals, n)
			}
		}
		if len(intervals) > 0 {
			cfg.Retry.IntervalsSeconds = intervals
		}
	}

	if v := os.Getenv("CALLMQ_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("CALLMQ_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}
	if v := os.Getenv("CALLMQ_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
}

// RetryIntervals returns the configured retry ladder as time.Duration
// values, falling back to defaultSeconds when unset.
func (c *Config) RetryIntervals(defaultSeconds []int) []time.Duration {
	seconds := c.Retry.IntervalsSeconds
	if len(seconds) == 0 {
		seconds = defaultSeconds
	}
	out := make([]time.Duration, len(seconds))
	for i, s := range seconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
