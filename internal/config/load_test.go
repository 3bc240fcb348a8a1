package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTOLABEL_DETECTOR_API_KEY", "test-api-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)

	assert.Equal(t, 5, cfg.Pipeline.Workers)
	assert.Equal(t, "pool", cfg.Pipeline.Executor)
	assert.Equal(t, 256, cfg.Pipeline.EventBuffer)

	assert.Equal(t, "test-api-key", cfg.Detector.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.Detector.Model)
	assert.Equal(t, 60*time.Second, cfg.Detector.Timeout)
	assert.Equal(t, 1000, cfg.Detector.CoordBase)
	assert.Equal(t, int64(20*1024*1024), cfg.Detector.MaxImageBytes)
	assert.Equal(t, 10, cfg.Detector.CropPadding)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.Delay)
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)

	assert.True(t, cfg.Review.Enabled)
	assert.Equal(t, 0.05, cfg.Review.SampleRate)
	assert.Equal(t, 100, cfg.Review.MinBoxArea)
	assert.Equal(t, 0.7, cfg.Review.MaxAreaRatio)
	assert.Equal(t, 0.9, cfg.Review.OverlapIoU)

	assert.Equal(t, 3, cfg.Video.FPS)
	assert.Equal(t, "ffmpeg", cfg.Video.FFmpeg)
	assert.Equal(t, "ffprobe", cfg.Video.FFprobe)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTOLABEL_DETECTOR_API_KEY", "test-api-key")
	t.Setenv("AUTOLABEL_SERVER_PORT", "9090")
	t.Setenv("AUTOLABEL_PIPELINE_WORKERS", "8")
	t.Setenv("AUTOLABEL_PIPELINE_EXECUTOR", "async")
	t.Setenv("AUTOLABEL_RETRY_DELAY", "500ms")
	t.Setenv("AUTOLABEL_REVIEW_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, "async", cfg.Pipeline.Executor)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Delay)
	assert.False(t, cfg.Review.Enabled)
}

func TestLoadMissingAPIKey(t *testing.T) {
	// The key is optional at load time: serve starts without a detector,
	// run checks for the key itself.
	t.Setenv("AUTOLABEL_DETECTOR_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Detector.APIKey)
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log level", "AUTOLABEL_SERVER_LOG_LEVEL", "verbose"},
		{"bad executor", "AUTOLABEL_PIPELINE_EXECUTOR", "threads"},
		{"port out of range", "AUTOLABEL_SERVER_PORT", "70000"},
		{"too many workers", "AUTOLABEL_PIPELINE_WORKERS", "500"},
		{"sample rate above one", "AUTOLABEL_REVIEW_SAMPLE_RATE", "1.5"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("AUTOLABEL_DETECTOR_API_KEY", "test-api-key")
			t.Setenv(tc.key, tc.value)

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validate config")
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("AUTOLABEL_DETECTOR_API_KEY", "test-api-key")

	path := filepath.Join(t.TempDir(), "autolabel.yaml")
	content := []byte(`
server:
  port: 9999
  log_level: debug
pipeline:
  workers: 12
video:
  fps: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 12, cfg.Pipeline.Workers)
	assert.Equal(t, 5, cfg.Video.FPS)
	// Untouched keys keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	t.Setenv("AUTOLABEL_DETECTOR_API_KEY", "test-api-key")
	t.Setenv("AUTOLABEL_SERVER_PORT", "7777")

	path := filepath.Join(t.TempDir(), "autolabel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("AUTOLABEL_DETECTOR_API_KEY", "test-api-key")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
