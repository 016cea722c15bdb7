package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 3, cfg.Session.HeartbeatTimeoutMultiplier)
	assert.Equal(t, "aes128_gcm", cfg.Crypto.Suite)
	assert.Equal(t, uint64(1)<<31, cfg.Crypto.KeyRotationPackets)
	assert.Equal(t, uint(64), cfg.Crypto.ReplayWindowSize)
	assert.Equal(t, 5*time.Millisecond, cfg.JitterMinDepth())
	assert.Equal(t, 50*time.Millisecond, cfg.JitterMaxDepth())
	assert.Equal(t, 10*time.Millisecond, cfg.JitterInitialDepth())
	assert.Equal(t, 500*time.Millisecond, cfg.JitterAdaptInterval())
	assert.True(t, cfg.PLC.Enabled)
	assert.Equal(t, 5, cfg.PLC.MaxConcealPackets)
	assert.Equal(t, 3, cfg.PLC.AudioFadeFrames)
	assert.Equal(t, 0.05, cfg.Adapt.LossStepDown)
	assert.Equal(t, 2*time.Second, cfg.AdaptMinDwell())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Session.HeartbeatIntervalMS, cfg.Session.HeartbeatIntervalMS)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
session:
  heartbeat_interval_ms: 1000
crypto:
  suite: aes256_gcm
jitter:
  max_depth_ms: 80
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, "aes256_gcm", cfg.Crypto.Suite)
	assert.Equal(t, 80*time.Millisecond, cfg.JitterMaxDepth())
	// Untouched keys keep defaults.
	assert.Equal(t, 5, cfg.Jitter.MinDepthMS)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad suite", "crypto:\n  suite: rot13\n"},
		{"jitter inversion", "jitter:\n  min_depth_ms: 60\n"},
		{"loss step up above down", "adapt:\n  loss_step_up: 0.5\n"},
		{"zero heartbeat", "session:\n  heartbeat_interval_ms: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARCRTC_LOG_LEVEL", "debug")
	t.Setenv("ARCRTC_CRYPTO_SUITE", "aes256_gcm")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "aes256_gcm", cfg.Crypto.Suite)
}
