package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Asset struct {
	CryptoID    int    `yaml:"crypto_id"`
	Symbol      string `yaml:"symbol"`
	CoinGeckoID string `yaml:"coingecko_id"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Postgres struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		Database        string        `yaml:"database"`
		User            string        `yaml:"user"`
		Password        string        `yaml:"password"`
		SSLMode         string        `yaml:"ssl_mode"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic"`
		PricesTopic  string   `yaml:"prices_topic"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Prices struct {
		BaseURL      string        `yaml:"base_url"`
		APIKey       string        `yaml:"api_key"`
		LookbackDays int           `yaml:"lookback_days"`
		Timeout      time.Duration `yaml:"timeout"`
		RatePerMin   int           `yaml:"rate_per_min"`
		CacheTTL     time.Duration `yaml:"cache_ttl"`
	} `yaml:"prices"`
	Forecast struct {
		WorkDir          string  `yaml:"work_dir"`
		HorizonDays      int     `yaml:"horizon_days"`
		InputChunkLength int     `yaml:"input_chunk_length"`
		TrainingLength   int     `yaml:"training_length"`
		HiddenDim        int     `yaml:"hidden_dim"`
		NRNNLayers       int     `yaml:"n_rnn_layers"`
		NEpochs          int     `yaml:"n_epochs"`
		BatchSize        int     `yaml:"batch_size"`
		ValSplit         float64 `yaml:"val_split"`
		RandomState      int     `yaml:"random_state"`
	} `yaml:"forecast"`
	Scheduler struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"scheduler"`
	Assets []Asset `yaml:"assets"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		c.Prices.APIKey = v
	}
	if v := os.Getenv("FORECAST_WORK_DIR"); v != "" {
		c.Forecast.WorkDir = v
	}
	if v := os.Getenv("FORECAST_HORIZON_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Forecast.HorizonDays = n
		}
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Forecast.WorkDir == "" {
		return fmt.Errorf("forecast.work_dir is required")
	}
	if c.Forecast.HorizonDays <= 0 {
		return fmt.Errorf("forecast.horizon_days must be positive, got %d", c.Forecast.HorizonDays)
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("assets cannot be empty")
	}
	for i, a := range c.Assets {
		if a.CryptoID <= 0 {
			return fmt.Errorf("assets[%d].crypto_id must be positive", i)
		}
		if a.CoinGeckoID == "" {
			return fmt.Errorf("assets[%d].coingecko_id is required", i)
		}
	}
	return nil
}
