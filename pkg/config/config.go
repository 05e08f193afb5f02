// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Postgres, Elasticsearch, Redis, Kafka, the remote decision API,
// ingestion and reindex jobs, logging and metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Source        SourceConfig        `yaml:"source"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Reindex       ReindexConfig       `yaml:"reindex"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ElasticsearchConfig holds search cluster addresses and credentials.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// RedisConfig holds Redis connection parameters for the decoded content cache.
type RedisConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	PoolSize   int           `yaml:"poolSize"`
	ContentTTL time.Duration `yaml:"contentTTL"`
}

// KafkaConfig holds Kafka broker and topic settings for run notifications.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`

	// ConsumerGroup is the group the indexer joins when following
	// ingestion runs.
	ConsumerGroup string `yaml:"consumerGroup"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RunCompleted string `yaml:"runCompleted"`
	IndexRebuilt string `yaml:"indexRebuilt"`
}

// SourceConfig describes the remote court-decision API.
type SourceConfig struct {
	BaseURL             string        `yaml:"baseUrl"`
	ApplicationName     string        `yaml:"applicationName"`
	UserAgent           string        `yaml:"userAgent"`
	RequestDelay        time.Duration `yaml:"requestDelay"`
	Timeout             time.Duration `yaml:"timeout"`
	DecisionPageSize    int           `yaml:"decisionPageSize"`
	LegislationPageSize int           `yaml:"legislationPageSize"`

	// BreakerThreshold consecutive transport failures stop further calls
	// for BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

// IngestConfig controls defaults for ingestion runs.
type IngestConfig struct {
	WithContent bool `yaml:"withContent"`
	// YearsBack is how many years before the current one a run without an
	// explicit year filter covers. Zero means the current year only.
	YearsBack int `yaml:"yearsBack"`
}

// ReindexConfig controls the relational to search-index rebuild.
type ReindexConfig struct {
	Tables          []string `yaml:"tables"`
	BatchSize       int      `yaml:"batchSize"`
	ErrorSampleSize int      `yaml:"errorSampleSize"`
	Schedule        string   `yaml:"schedule"`
}

// LoggingConfig controls structured logging level, output format and an
// optional log file that receives a copy of every record.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate reports missing required settings. The database password is only
// required when the run will actually write to Postgres.
func (c *Config) Validate(requireDatabase bool) error {
	var problems []string
	if requireDatabase && c.Postgres.Password == "" {
		problems = append(problems, "postgres password is not set (YARGI_POSTGRES_PASSWORD)")
	}
	if c.Source.BaseURL == "" {
		problems = append(problems, "source base url is empty")
	}
	if c.Source.DecisionPageSize <= 0 || c.Source.LegislationPageSize <= 0 {
		problems = append(problems, "source page sizes must be positive")
	}
	if c.Source.RequestDelay < 0 {
		problems = append(problems, "source request delay must not be negative")
	}
	if c.Reindex.BatchSize <= 0 {
		problems = append(problems, "reindex batch size must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka is enabled but no brokers are configured")
	}
	if len(problems) > 0 {
		return apperrors.New(apperrors.ErrConfiguration, "config.validate", strings.Join(problems, "; "))
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "yargisalzeka",
			User:            "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: []string{"http://localhost:9200"},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			ContentTTL: 7 * 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "yargi-indexer",
			Topics: KafkaTopics{
				RunCompleted: "ingest.run.completed",
				IndexRebuilt: "index.rebuilt",
			},
		},
		Source: SourceConfig{
			BaseURL:             "https://bedesten.adalet.gov.tr",
			ApplicationName:     "UyapMevzuat",
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestDelay:        500 * time.Millisecond,
			Timeout:             30 * time.Second,
			DecisionPageSize:    100,
			LegislationPageSize: 20,
			BreakerThreshold:    5,
			BreakerCooldown:     time.Minute,
		},
		Reindex: ReindexConfig{
			Tables:          []string{"ictihatlar", "kararlar", "mevzuatlar"},
			BatchSize:       1000,
			ErrorSampleSize: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads YARGI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("YARGI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("YARGI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("YARGI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("YARGI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("YARGI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("YARGI_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("YARGI_ELASTICSEARCH_URL"); v != "" {
		cfg.Elasticsearch.Addresses = strings.Split(v, ",")
	}
	if v := os.Getenv("YARGI_ELASTICSEARCH_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}
	if v := os.Getenv("YARGI_ELASTICSEARCH_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}
	if v := os.Getenv("YARGI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("YARGI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("YARGI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("YARGI_SOURCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("YARGI_SOURCE_REQUEST_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.RequestDelay = d
		}
	}
	if v := os.Getenv("YARGI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("YARGI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("YARGI_LOGGING_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("YARGI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
			cfg.Metrics.Enabled = true
		}
	}
}
