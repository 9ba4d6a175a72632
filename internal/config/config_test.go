package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasUsableDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Coordination.Backend != CoordinationMemory {
		t.Errorf("Coordination.Backend = %q, want %q", cfg.Coordination.Backend, CoordinationMemory)
	}
	if cfg.Queue.Backend != QueueInProcess {
		t.Errorf("Queue.Backend = %q, want %q", cfg.Queue.Backend, QueueInProcess)
	}
	if len(cfg.Registry.Queues) == 0 {
		t.Error("expected at least one default queue")
	}
}

func TestLoadFromFilePartialOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "daemon:\n  http_addr: \":8081\"\nqueue:\n  backend: sqs\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Daemon.HTTPAddr != ":8081" {
		t.Errorf("HTTPAddr = %q, want :8081", cfg.Daemon.HTTPAddr)
	}
	if cfg.Queue.Backend != QueueSQS {
		t.Errorf("Queue.Backend = %q, want %q", cfg.Queue.Backend, QueueSQS)
	}
	// Untouched fields keep the default.
	if cfg.Coordination.Backend != CoordinationMemory {
		t.Errorf("Coordination.Backend = %q, want the default %q", cfg.Coordination.Backend, CoordinationMemory)
	}
}

func TestLoadFromFileMissingPathErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadFromEnvAppliesOverrides(t *testing.T) {
	t.Setenv("CALLMQ_HTTP_ADDR", ":7070")
	t.Setenv("CALLMQ_QUEUES", "a,b,c")
	t.Setenv("CALLMQ_COORDINATION_BACKEND", "redis")
	t.Setenv("CALLMQ_RETRY_INTERVALS_SECONDS", "5, 10,20")
	t.Setenv("CALLMQ_METRICS_ENABLED", "false")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Daemon.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr = %q, want :7070", cfg.Daemon.HTTPAddr)
	}
	if len(cfg.Registry.Queues) != 3 || cfg.Registry.Queues[1] != "b" {
		t.Errorf("Queues = %v, want [a b c]", cfg.Registry.Queues)
	}
	if cfg.Coordination.Backend != CoordinationRedis {
		t.Errorf("Coordination.Backend = %q, want %q", cfg.Coordination.Backend, CoordinationRedis)
	}
	if len(cfg.Retry.IntervalsSeconds) != 3 || cfg.Retry.IntervalsSeconds[2] != 20 {
		t.Errorf("IntervalsSeconds = %v, want [5 10 20]", cfg.Retry.IntervalsSeconds)
	}
	if cfg.Observability.Metrics.Enabled {
		t.Error("expected Metrics.Enabled to be overridden to false")
	}
}

func TestLoadFromEnvIgnoresGarbageRetryIntervals(t *testing.T) {
	t.Setenv("CALLMQ_RETRY_INTERVALS_SECONDS", "x,y,z")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	if len(cfg.Retry.IntervalsSeconds) != 0 {
		t.Errorf("expected IntervalsSeconds to stay empty for all-garbage input, got %v", cfg.Retry.IntervalsSeconds)
	}
}

func TestRetryIntervalsFallsBackToDefault(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.RetryIntervals([]int{15, 60, 120, 240})
	if len(got) != 4 {
		t.Fatalf("expected 4 fallback intervals, got %d", len(got))
	}
}

func TestRetryIntervalsUsesConfiguredOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.IntervalsSeconds = []int{1, 2}
	got := cfg.RetryIntervals([]int{15, 60, 120, 240})
	if len(got) != 2 {
		t.Fatalf("expected the configured 2 intervals to win, got %d", len(got))
	}
}
