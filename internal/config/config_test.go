package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManager_Defaults(t *testing.T) {
	t.Setenv("WORKER_SECRET", "s3cret")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SERVER_ADDR", "")

	cfg, err := LoadManager()
	require.NoError(t, err)
	assert.Equal(t, DefaultServerAddr, cfg.ServerAddr)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, DefaultToolsRoot, cfg.ToolsRoot)
	assert.Nil(t, cfg.KafkaBrokers)
}

func TestLoadManager_Overrides(t *testing.T) {
	t.Setenv("WORKER_SECRET", "s3cret")
	t.Setenv("SWEEP_INTERVAL", "250ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadManager()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.SweepInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadManager_Errors(t *testing.T) {
	t.Setenv("WORKER_SECRET", "")
	_, err := LoadManager()
	assert.ErrorContains(t, err, "WORKER_SECRET")

	t.Setenv("WORKER_SECRET", "x")
	t.Setenv("SWEEP_INTERVAL", "soon")
	_, err = LoadManager()
	assert.ErrorContains(t, err, "invalid SWEEP_INTERVAL")
}

func TestLoadWorker(t *testing.T) {
	t.Setenv("WORKER_SECRET", "s3cret")
	t.Setenv("MAX_CONCURRENT", "8")
	t.Setenv("AGGRESSIVE_TASKS", "true")
	t.Setenv("TASK_TIMEOUT", "10m")

	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.True(t, cfg.AggressiveTasks)
	assert.Equal(t, 10*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, DefaultWorkerShell, cfg.Shell)

	t.Setenv("MAX_CONCURRENT", "0")
	_, err = LoadWorker()
	assert.ErrorContains(t, err, "MAX_CONCURRENT")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("TASK_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TASK_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(file, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("TASK_TEST_DOTENV"))
}
