package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"NeuralTrade/pkg/logger"
	"NeuralTrade/pkg/util"
)

// ModelEndpoint describes one classifier instance. An empty URL selects the fallback classifier.
type ModelEndpoint struct {
	URL     string `yaml:"url"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type Config struct {
	Environment string        `yaml:"environment" default:"development"`
	Version     string        `yaml:"version" default:"v1.0.0"`
	Logger      logger.Config `yaml:"logger"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8000"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		RateLimit       struct {
			Capacity     int     `yaml:"capacity" default:"20"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"10"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Window struct {
		MinCandles int `yaml:"min_candles" default:"50"`
		MaxCandles int `yaml:"max_candles" default:"500"`
		ATRPeriod  int `yaml:"atr_period" default:"14"`
	} `yaml:"window"`
	Inference struct {
		Timeout  time.Duration `yaml:"timeout" default:"2s"`
		Parallel bool          `yaml:"parallel" default:"true"`
		Primary  ModelEndpoint `yaml:"primary"`
		Shadow   ModelEndpoint `yaml:"shadow"`
		Breaker  struct {
			ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"3"`
			Interval            time.Duration `yaml:"interval" default:"60s"`
			OpenTimeout         time.Duration `yaml:"open_timeout" default:"30s"`
		} `yaml:"breaker"`
	} `yaml:"inference"`
	Risk struct {
		MaxDataAge      time.Duration `yaml:"max_data_age" default:"5s"`
		MinConfidence   float64       `yaml:"min_confidence" default:"0.85"`
		DriftThreshold  float64       `yaml:"drift_threshold" default:"0.15"`
		DriftWindow     int           `yaml:"drift_window" default:"10"`
		HistoryCapacity int           `yaml:"history_capacity" default:"100"`
		Bands           struct {
			Low    float64 `yaml:"low" default:"100"`
			Medium float64 `yaml:"medium" default:"200"`
			High   float64 `yaml:"high" default:"400"`
		} `yaml:"bands"`
	} `yaml:"risk"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		CandleTopic  string   `yaml:"candle_topic" default:"market.candles"`
		SignalTopic  string   `yaml:"signal_topic" default:"neuraltrade.signals"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"neuraltrade-signal-engine"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"2"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"market.candles.dlq"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		KeyPrefix    string        `yaml:"key_prefix" default:"neuraltrade"`
		CacheTTL     time.Duration `yaml:"cache_ttl" default:"15m"`
		OutcomeQueue struct {
			Enabled    bool          `yaml:"enabled"`
			Name       string        `yaml:"name" default:"outcomes"`
			Workers    int           `yaml:"workers" default:"2"`
			MaxRetries int           `yaml:"max_retries" default:"3"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"1s"`
		} `yaml:"outcome_queue"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"neuraltrade"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		CandleTable  string        `yaml:"candle_table" default:"candles"`
	} `yaml:"clickhouse"`
	Dispatch struct {
		RatePerSecond float64 `yaml:"rate_per_second" default:"5"`
		Burst         int     `yaml:"burst" default:"5"`
		BufferSize    int     `yaml:"buffer_size" default:"1000"`
	} `yaml:"dispatch"`
}

// Default returns a config populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with NT_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("NT_ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("NT_LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("NT_SERVER_PORT"), c.Server.Port)
	c.Window.MinCandles = util.ParseIntDefault(os.Getenv("NT_WINDOW_MIN_CANDLES"), c.Window.MinCandles)
	if v := os.Getenv("NT_PRIMARY_MODEL_URL"); v != "" {
		c.Inference.Primary.URL = v
	}
	if v := os.Getenv("NT_SHADOW_MODEL_URL"); v != "" {
		c.Inference.Shadow.URL = v
	}
	c.Risk.MinConfidence = util.ParseFloatDefault(os.Getenv("NT_RISK_MIN_CONFIDENCE"), c.Risk.MinConfidence)
	if v := os.Getenv("NT_RISK_MAX_DATA_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Risk.MaxDataAge = d
		}
	}
	c.Risk.DriftThreshold = util.ParseFloatDefault(os.Getenv("NT_RISK_DRIFT_THRESHOLD"), c.Risk.DriftThreshold)
	if v := os.Getenv("NT_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("NT_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("NT_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Window.ATRPeriod < 2 {
		return fmt.Errorf("window.atr_period must be at least 2, got %d", c.Window.ATRPeriod)
	}
	if c.Window.MinCandles < c.Window.ATRPeriod {
		return fmt.Errorf("window.min_candles (%d) must be >= window.atr_period (%d)", c.Window.MinCandles, c.Window.ATRPeriod)
	}
	if c.Window.MaxCandles < c.Window.MinCandles {
		return fmt.Errorf("window.max_candles (%d) must be >= window.min_candles (%d)", c.Window.MaxCandles, c.Window.MinCandles)
	}
	if c.Risk.MinConfidence <= 0 || c.Risk.MinConfidence > 1 {
		return fmt.Errorf("risk.min_confidence must be in (0,1], got %v", c.Risk.MinConfidence)
	}
	if c.Risk.DriftThreshold <= 0 || c.Risk.DriftThreshold >= 1 {
		return fmt.Errorf("risk.drift_threshold must be in (0,1), got %v", c.Risk.DriftThreshold)
	}
	if c.Risk.MaxDataAge <= 0 {
		return fmt.Errorf("risk.max_data_age must be positive")
	}
	if c.Risk.DriftWindow <= 0 || c.Risk.HistoryCapacity < c.Risk.DriftWindow {
		return fmt.Errorf("risk.history_capacity (%d) must be >= risk.drift_window (%d) > 0", c.Risk.HistoryCapacity, c.Risk.DriftWindow)
	}
	b := c.Risk.Bands
	if !(b.Low > 0 && b.Low < b.Medium && b.Medium < b.High) {
		return fmt.Errorf("risk.bands must be ascending and positive, got %v/%v/%v", b.Low, b.Medium, b.High)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Redis.OutcomeQueue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("redis.outcome_queue requires redis.enabled")
	}
	return nil
}
