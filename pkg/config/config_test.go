package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, 8000, c.Server.Port)
	assert.Equal(t, 50, c.Window.MinCandles)
	assert.Equal(t, 500, c.Window.MaxCandles)
	assert.Equal(t, 14, c.Window.ATRPeriod)
	assert.Equal(t, 5*time.Second, c.Risk.MaxDataAge)
	assert.InDelta(t, 0.85, c.Risk.MinConfidence, 1e-9)
	assert.InDelta(t, 0.15, c.Risk.DriftThreshold, 1e-9)
	assert.Equal(t, 100.0, c.Risk.Bands.Low)
	assert.Equal(t, 400.0, c.Risk.Bands.High)
	assert.Equal(t, "market.candles", c.Kafka.CandleTopic)
	assert.False(t, c.Kafka.Enabled)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: staging
window:
  min_candles: 60
risk:
  min_confidence: 0.9
  max_data_age: 10s
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, 60, c.Window.MinCandles)
	assert.InDelta(t, 0.9, c.Risk.MinConfidence, 1e-9)
	assert.Equal(t, 10*time.Second, c.Risk.MaxDataAge)
	// untouched keys keep their defaults
	assert.Equal(t, 500, c.Window.MaxCandles)
}

func TestLoadWithEnv(t *testing.T) {
	path := writeConfig(t, "environment: development\n")
	t.Setenv("NT_SERVER_PORT", "9100")
	t.Setenv("NT_RISK_MIN_CONFIDENCE", "0.7")
	t.Setenv("NT_RISK_MAX_DATA_AGE", "30s")
	t.Setenv("NT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("NT_PRIMARY_MODEL_URL", "http://model:9000")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, c.Server.Port)
	assert.InDelta(t, 0.7, c.Risk.MinConfidence, 1e-9)
	assert.Equal(t, 30*time.Second, c.Risk.MaxDataAge)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "http://model:9000", c.Inference.Primary.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"min below atr period", func(c *Config) { c.Window.MinCandles = 10 }, "window.min_candles"},
		{"max below min", func(c *Config) { c.Window.MaxCandles = 40 }, "window.max_candles"},
		{"confidence out of range", func(c *Config) { c.Risk.MinConfidence = 1.5 }, "risk.min_confidence"},
		{"drift threshold zero", func(c *Config) { c.Risk.DriftThreshold = 0 }, "risk.drift_threshold"},
		{"bands not ascending", func(c *Config) { c.Risk.Bands.Medium = 50 }, "risk.bands"},
		{"history below drift window", func(c *Config) { c.Risk.HistoryCapacity = 5 }, "risk.history_capacity"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
		{"queue without redis", func(c *Config) { c.Redis.OutcomeQueue.Enabled = true }, "redis.outcome_queue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Default()
			require.NoError(t, err)
			tt.mutate(c)
			err = c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSampleConfigLoads(t *testing.T) {
	c, err := Load("../../configs/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", c.Inference.Primary.Version)
	assert.Empty(t, c.Inference.Primary.URL)
}
