package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"5001"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`
	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	Storage struct {
		Driver           string `yaml:"driver" default:"memory"` // memory, postgres, sqlite
		DSN              string `yaml:"dsn"`
		FallbackToMemory bool   `yaml:"fallback_to_memory" default:"true"`
		MaxOpenConns     int    `yaml:"max_open_conns" default:"10"`
	} `yaml:"storage"`
	Binance struct {
		BaseURL       string        `yaml:"base_url" default:"https://api.binance.com"`
		StreamURL     string        `yaml:"stream_url" default:"wss://stream.binance.com:9443"`
		Timeout       time.Duration `yaml:"timeout" default:"5s"`
		RatePerSecond float64       `yaml:"rate_per_second" default:"10"`
		Burst         int           `yaml:"burst" default:"20"`
	} `yaml:"binance"`
	Market struct {
		QuoteTTL time.Duration `yaml:"quote_ttl" default:"5s"`
	} `yaml:"market"`
	Hub struct {
		SendTimeout time.Duration `yaml:"send_timeout" default:"2s"`
		QueueSize   int           `yaml:"queue_size" default:"256"`
		PingPeriod  time.Duration `yaml:"ping_period" default:"54s"`
		PongWait    time.Duration `yaml:"pong_wait" default:"60s"`
	} `yaml:"hub"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		WebhookSecret string `yaml:"webhook_secret"`
		AdminRole     string `yaml:"admin_role" default:"admin"`
	} `yaml:"auth"`
	RateLimit struct {
		Enabled  bool          `yaml:"enabled" default:"true"`
		Requests int           `yaml:"requests" default:"1000"`
		Window   time.Duration `yaml:"window" default:"15m"`
	} `yaml:"ratelimit"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"signalhub"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalTopic  string   `yaml:"signal_topic" default:"signals.raw"`
		EventsTopic  string   `yaml:"events_topic" default:"signals.events"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"signalhub"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"signalhub"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Scheduler struct {
		Enabled            bool          `yaml:"enabled" default:"true"`
		CandleRefreshEvery time.Duration `yaml:"candle_refresh_every" default:"5m"`
		Intervals          []string      `yaml:"intervals" default:"[\"1d\",\"1w\"]"`
		CandleLimit        int           `yaml:"candle_limit" default:"104"`
	} `yaml:"scheduler"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		Symbols        []string      `yaml:"symbols"`
		MaxRPS         int           `yaml:"max_rps" default:"2"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	} `yaml:"stream"`
}

// Default returns a configuration populated only from defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DSN = v
		if c.Storage.Driver == "memory" {
			c.Storage.Driver = "postgres"
		}
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Enabled = true
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Auth.WebhookSecret = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		c.Binance.BaseURL = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver '%s'", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be 'memory', 'postgres' or 'sqlite', got '%s'", c.Storage.Driver)
	}
	if c.Binance.Timeout <= 0 || c.Binance.Timeout > 5*time.Second {
		return fmt.Errorf("binance.timeout must be in (0, 5s], got %s", c.Binance.Timeout)
	}
	if c.Hub.SendTimeout <= 0 {
		return fmt.Errorf("hub.send_timeout must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Stream.Enabled && len(c.Stream.Symbols) == 0 {
		return fmt.Errorf("stream.symbols cannot be empty when stream is enabled")
	}
	if c.Environment == "production" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}
	return nil
}
