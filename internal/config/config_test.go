package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lock-access-monitor/backend/internal/lock"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LAM_ADDR", "LAM_DATA_DIR", "LAM_DETECTION_THRESHOLD", "LAM_MONITOR_INTERVAL_MS",
		"LAM_MONITOR_AUTOSTART", "LAM_CALL_TIMEOUT", "LAM_GRANT_POLICY", "LAM_RELEASE_GRANT_ON_LOCK",
		"LAM_MQTT_BROKER", "LAM_MQTT_TOPIC", "LAM_MQTT_CLIENT_ID", "LAM_MQTT_USERNAME", "LAM_MQTT_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8099", cfg.Addr)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 70.0, cfg.DetectionThreshold)
	assert.Equal(t, 60000, cfg.MonitorIntervalMs)
	assert.False(t, cfg.MonitorAutostart)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, lock.PolicyReplace, cfg.GrantPolicy)
	assert.False(t, cfg.ReleaseGrantOnLock)
	assert.False(t, cfg.MQTTEnabled())
	assert.Equal(t, "locks/alerts", cfg.MQTTTopic)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LAM_ADDR", ":9000")
	t.Setenv("LAM_DETECTION_THRESHOLD", "85.5")
	t.Setenv("LAM_MONITOR_INTERVAL_MS", "1500")
	t.Setenv("LAM_MONITOR_AUTOSTART", "true")
	t.Setenv("LAM_CALL_TIMEOUT", "750ms")
	t.Setenv("LAM_GRANT_POLICY", "reject")
	t.Setenv("LAM_RELEASE_GRANT_ON_LOCK", "1")
	t.Setenv("LAM_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 85.5, cfg.DetectionThreshold)
	assert.Equal(t, 1500, cfg.MonitorIntervalMs)
	assert.True(t, cfg.MonitorAutostart)
	assert.Equal(t, 750*time.Millisecond, cfg.CallTimeout)
	assert.Equal(t, lock.PolicyReject, cfg.GrantPolicy)
	assert.True(t, cfg.ReleaseGrantOnLock)
	assert.True(t, cfg.MQTTEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"threshold not a number", "LAM_DETECTION_THRESHOLD", "high"},
		{"threshold above range", "LAM_DETECTION_THRESHOLD", "150"},
		{"negative interval", "LAM_MONITOR_INTERVAL_MS", "-5"},
		{"bad autostart", "LAM_MONITOR_AUTOSTART", "sometimes"},
		{"bad timeout", "LAM_CALL_TIMEOUT", "5"},
		{"unknown policy", "LAM_GRANT_POLICY", "merge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
