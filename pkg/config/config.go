package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		SlowThreshold   time.Duration `yaml:"slow_threshold"`
		BodyLimit       string        `yaml:"body_limit"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		// Collector aggregates repeated error logs and ships them to kafka.topics.logs.
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Training struct {
		Timeout           time.Duration `yaml:"timeout"`
		MaxWorkers        int           `yaml:"max_workers"`
		DefaultSeed       int64         `yaml:"default_seed"`
		ValidationSplit   float64       `yaml:"validation_split"`
		MaxPoints         int           `yaml:"max_points"`
		BlobCacheTTL      time.Duration `yaml:"blob_cache_ttl"`
		MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
		DefaultHorizon    int           `yaml:"default_horizon"`
		EventPublishLimit time.Duration `yaml:"event_publish_timeout"`
	} `yaml:"training"`
	Store struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"store"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled    bool   `yaml:"enabled"`
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		Prefix     string `yaml:"prefix"`
		MemorySize int    `yaml:"memory_size"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			TrainRequests string `yaml:"train_requests"`
			RunEvents     string `yaml:"run_events"`
			Logs          string `yaml:"logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string `yaml:"group_id"`
			Workers    int    `yaml:"workers"`
			BufferSize int    `yaml:"buffer_size"`
			DLQTopic   string `yaml:"dlq_topic"`
			MinBytes   int    `yaml:"min_bytes"`
			MaxBytes   int    `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	RateLimit struct {
		Enabled  bool    `yaml:"enabled"`
		Capacity float64 `yaml:"capacity"`
		Refill   float64 `yaml:"refill_per_second"`
	} `yaml:"ratelimit"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with MODELHUB_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.overrideFromEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) overrideFromEnv(getenv func(string) string) error {
	if v := getenv("MODELHUB_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("MODELHUB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MODELHUB_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("MODELHUB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("MODELHUB_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := getenv("MODELHUB_SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := getenv("MODELHUB_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("MODELHUB_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("MODELHUB_REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("MODELHUB_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("MODELHUB_TRAINING_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MODELHUB_TRAINING_TIMEOUT: %w", err)
		}
		c.Training.Timeout = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.BodyLimit == "" {
		c.Server.BodyLimit = "32M"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Training.Timeout == 0 {
		c.Training.Timeout = 5 * time.Minute
	}
	if c.Training.MaxWorkers == 0 {
		c.Training.MaxWorkers = 4
	}
	if c.Training.DefaultSeed == 0 {
		c.Training.DefaultSeed = 42
	}
	if c.Training.ValidationSplit == 0 {
		c.Training.ValidationSplit = 0.2
	}
	if c.Training.MaxPoints == 0 {
		c.Training.MaxPoints = 100000
	}
	if c.Training.BlobCacheTTL == 0 {
		c.Training.BlobCacheTTL = time.Hour
	}
	if c.Training.MaxUploadBytes == 0 {
		c.Training.MaxUploadBytes = 16 << 20
	}
	if c.Training.DefaultHorizon == 0 {
		c.Training.DefaultHorizon = 12
	}
	if c.Training.EventPublishLimit == 0 {
		c.Training.EventPublishLimit = 5 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "modelhub.db"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "modelhub"
	}
	if c.Redis.MemorySize == 0 {
		c.Redis.MemorySize = 256
	}
	if c.Kafka.Topics.TrainRequests == "" {
		c.Kafka.Topics.TrainRequests = "modelhub.train.requests"
	}
	if c.Kafka.Topics.RunEvents == "" {
		c.Kafka.Topics.RunEvents = "modelhub.run.events"
	}
	if c.Kafka.Topics.Logs == "" {
		c.Kafka.Topics.Logs = "modelhub.logs"
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 10
	}
	if c.RateLimit.Refill == 0 {
		c.RateLimit.Refill = 2
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for the clickhouse driver")
		}
		if c.ClickHouse.Database == "" {
			return fmt.Errorf("clickhouse.database is required for the clickhouse driver")
		}
	default:
		return fmt.Errorf("store.driver must be 'sqlite' or 'clickhouse', got '%s'", c.Store.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Training.ValidationSplit <= 0 || c.Training.ValidationSplit >= 1 {
		return fmt.Errorf("training.validation_split must be in (0,1), got %v", c.Training.ValidationSplit)
	}
	if c.Training.MaxWorkers < 1 {
		return fmt.Errorf("training.max_workers must be >= 1")
	}
	return nil
}
