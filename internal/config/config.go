// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/monitor"
)

// Config holds the server configuration.
type Config struct {
	Addr    string
	DataDir string

	// Monitoring
	DetectionThreshold float64
	MonitorIntervalMs  int
	MonitorAutostart   bool
	CallTimeout        time.Duration

	// Grants
	GrantPolicy        lock.GrantPolicy
	ReleaseGrantOnLock bool

	// MQTT alert publishing. Disabled when MQTTBroker is empty.
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
}

// Load reads a .env file if one exists and builds the configuration from
// LAM_* environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env file: %v", err)
	}

	cfg := &Config{
		Addr:         getEnv("LAM_ADDR", ":8099"),
		DataDir:      getEnv("LAM_DATA_DIR", "./data"),
		MQTTBroker:   getEnv("LAM_MQTT_BROKER", ""),
		MQTTTopic:    getEnv("LAM_MQTT_TOPIC", "locks/alerts"),
		MQTTClientID: getEnv("LAM_MQTT_CLIENT_ID", "lock-access-monitor"),
		MQTTUsername: getEnv("LAM_MQTT_USERNAME", ""),
		MQTTPassword: getEnv("LAM_MQTT_PASSWORD", ""),
	}

	var err error
	if cfg.DetectionThreshold, err = getFloat("LAM_DETECTION_THRESHOLD", monitor.DefaultThreshold); err != nil {
		return nil, err
	}
	if cfg.MonitorIntervalMs, err = getInt("LAM_MONITOR_INTERVAL_MS", monitor.DefaultIntervalMs); err != nil {
		return nil, err
	}
	if cfg.MonitorAutostart, err = getBool("LAM_MONITOR_AUTOSTART", false); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = getDuration("LAM_CALL_TIMEOUT", monitor.DefaultCallTimeout); err != nil {
		return nil, err
	}
	if cfg.ReleaseGrantOnLock, err = getBool("LAM_RELEASE_GRANT_ON_LOCK", false); err != nil {
		return nil, err
	}
	if cfg.GrantPolicy, err = lock.ParseGrantPolicy(getEnv("LAM_GRANT_POLICY", string(lock.PolicyReplace))); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DetectionThreshold < 0 || c.DetectionThreshold > 100 {
		return fmt.Errorf("LAM_DETECTION_THRESHOLD must be within [0,100], got %v", c.DetectionThreshold)
	}
	if c.MonitorIntervalMs <= 0 {
		return fmt.Errorf("LAM_MONITOR_INTERVAL_MS must be positive, got %d", c.MonitorIntervalMs)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("LAM_CALL_TIMEOUT must be positive, got %s", c.CallTimeout)
	}
	if c.Addr == "" {
		return errors.New("LAM_ADDR must not be empty")
	}
	return nil
}

// MQTTEnabled reports whether alerts should be published to a broker.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
