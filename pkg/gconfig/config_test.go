package gconfig

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"NORNIC_WORKER_COUNT", "NORNIC_LISTEN_ADDRESS", "NORNIC_REMOTE_PULL_SLEEP",
		"NORNIC_PLAN_CACHE_SIZE", "NORNIC_PLAN_CACHE_TTL", "NORNIC_LOG_LEVEL", "NORNIC_LOG_FORMAT",
	}
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		if had {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := LoadDefaults()
	require.Equal(t, 1, cfg.WorkerCount)
	require.Equal(t, "0.0.0.0:7687", cfg.ListenAddress)
	require.Equal(t, time.Millisecond, cfg.RemotePullSleep)
	require.Equal(t, 256, cfg.PlanCacheSize)
	require.Equal(t, 10*time.Minute, cfg.PlanCacheTTL)
}

func TestLoadFromFileMissingFileFallsBackToDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromFile("/nonexistent/graphcore.yaml")
	require.NoError(t, err)
	require.Equal(t, LoadDefaults(), cfg)
}

func TestLoadFromFileAppliesYAMLOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := dir + "/graphcore.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
cluster:
  worker_count: 4
  listen_address: "127.0.0.1:9000"
remote_pull_sleep: "5ms"
plan_cache:
  size: 512
  ttl: "1h"
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.WorkerCount)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, 5*time.Millisecond, cfg.RemotePullSleep)
	require.Equal(t, 512, cfg.PlanCacheSize)
	require.Equal(t, time.Hour, cfg.PlanCacheTTL)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestEnvVarsOverrideDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("NORNIC_WORKER_COUNT", "8")
	os.Setenv("NORNIC_LOG_LEVEL", "warn")

	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	require.Equal(t, 8, cfg.WorkerCount)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "0.0.0.0:7687", cfg.ListenAddress)
}

func TestValidateRejectsNonPositiveWorkerCount(t *testing.T) {
	cfg := LoadDefaults()
	cfg.WorkerCount = 0
	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, LoadDefaults().Validate())
}
