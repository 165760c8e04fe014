package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/database"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/httpclient"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/kafka"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/knackly"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/logging"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/redis"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/tracing"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/tracing/exporters"
)

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"monthly-double-checker"`
	Version            string `env:"APP_VERSION" env-default:"dev"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"debug" validate:"oneof=debug info warn error"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	LogDir             string `env:"LOG_DIR" env-default:"logs"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	// Knackly API key id
	KnacklyKeyID string `env:"KEY" validate:"required"`
	// Knackly API secret
	KnacklySecret string `env:"SECRET" validate:"required"`
	// Knackly tenancy, the first path segment of every API URL
	KnacklyTenancy string `env:"TENANCY" validate:"required"`
	// Knackly API host
	KnacklyBaseURL string `env:"KNACKLY_BASE_URL" env-default:"https://api.knackly.io" validate:"url"`
	// Records requested per listing page
	KnacklyPageSize int `env:"KNACKLY_PAGE_SIZE" env-default:"1000" validate:"min=1"`
	// Per request timeout
	KnacklyTimeout time.Duration `env:"KNACKLY_TIMEOUT" env-default:"30s"`
	// In-process retries for transient failures, 0 disables
	KnacklyMaxRetries int `env:"KNACKLY_MAX_RETRIES" env-default:"0" validate:"min=0"`
	// Base delay between retries, doubled each attempt
	KnacklyRetryDelay time.Duration `env:"KNACKLY_RETRY_DELAY" env-default:"500ms"`
	// Status of the records to reconcile
	RecordStatus string `env:"RECORD_STATUS" env-default:"Ok"`

	// Full mongo connection string. Takes precedence over user, password and cluster.
	MongoURI string `env:"MONGO_URI"`
	// Mongo Atlas user
	MongoUser string `env:"MONGO_USER"`
	// Mongo Atlas password
	MongoPassword string `env:"MONGO_PASSWORD"`
	// Mongo Atlas cluster host
	MongoCluster string `env:"MONGO_CLUSTER"`
	// Mongo database name
	MongoDatabase string `env:"MONGO_DATABASE" env-default:"LightningDocs"`
	// Mongo collection records are stored in
	MongoCollection string `env:"MONGO_COLLECTION" env-default:"Records"`
	// Mongo connect and server selection timeout
	MongoConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" env-default:"10s"`

	// Source changes newer than the stored copy by less than this are ignored
	UpdateGrace time.Duration `env:"UPDATE_GRACE" env-default:"5m"`
	// Records processed concurrently per phase
	WorkerCount int `env:"WORKER_COUNT" env-default:"1" validate:"min=1"`
	// Expression evaluated against record data to detect test files
	TestFileExpression string `env:"TEST_FILE_EXPRESSION" env-default:"isTestFile" validate:"required"`

	// Microsoft Teams incoming webhook, empty disables Teams notifications
	TeamsWebhookURL string `env:"TEAMS_WEBHOOK_URL" validate:"omitempty,url"`

	// Publish run and record events to Kafka
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for sync events
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" env-default:"double-checker.events"`

	// Guard runs with a redis lock so only one runs at a time
	RedisEnabled bool `env:"REDIS_ENABLED" env-default:"false"`
	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD"`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// How long the run lock lives without being extended
	RunLockTTL time.Duration `env:"RUN_LOCK_TTL" env-default:"2h"`

	// Time between runs in schedule mode
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" env-default:"24h"`
	// Port for the health and metrics server in schedule mode
	HTTPPort int `env:"HTTP_PORT" env-default:"8080" validate:"min=1,max=65535"`

	// Pushgateway to push run metrics to, empty disables pushing
	MetricsPushgatewayURL string `env:"METRICS_PUSHGATEWAY_URL" validate:"omitempty,url"`
	// Pushgateway job name
	MetricsJob string `env:"METRICS_JOB" env-default:"monthly-double-checker"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env, an optional config file and the environment, in increasing precedence.
// Values from the file only fill keys the environment leaves unset.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()
	if err := loadFile(configFile); err != nil {
		return nil, err
	}

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFile exports the keys of a yaml, json, toml or dotenv file into the environment.
// Keys already set to a non-empty value are left alone.
func loadFile(configFile string) error {
	if configFile == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if os.Getenv(name) != "" {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return fmt.Errorf("failed to set %s from config file: %w", name, err)
		}
	}
	return nil
}

// Validate checks field rules and the mongo connection settings
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fields := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				fields = append(fields, fmt.Sprintf("%s (%s)", envName(fe.StructField()), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return err
	}
	if _, err := c.Mongo().ConnectionURI(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.KafkaEnabled {
		if err := c.Kafka().Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}

func envName(structField string) string {
	field, ok := reflect.TypeOf(Config{}).FieldByName(structField)
	if !ok {
		return structField
	}
	return field.Tag.Get(ectoenv.ENV_TAG)
}

func (c *Config) Knackly() knackly.Config {
	return knackly.Config{
		BaseURL:    c.KnacklyBaseURL,
		Tenancy:    c.KnacklyTenancy,
		KeyID:      c.KnacklyKeyID,
		Secret:     c.KnacklySecret,
		MaxRetries: c.KnacklyMaxRetries,
		RetryDelay: c.KnacklyRetryDelay,
	}
}

func (c *Config) HTTPClient() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = c.KnacklyTimeout
	return cfg
}

func (c *Config) Mongo() database.Config {
	return database.Config{
		URI:            c.MongoURI,
		User:           c.MongoUser,
		Password:       c.MongoPassword,
		Cluster:        c.MongoCluster,
		Database:       c.MongoDatabase,
		Collection:     c.MongoCollection,
		ConnectTimeout: c.MongoConnectTimeout,
	}
}

func (c *Config) Kafka() kafka.Config {
	return kafka.ParseConfig(c.KafkaBrokers, c.KafkaEventsTopic)
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:  c.LogLevel,
		Pretty: c.PrettyLogs,
		Dir:    c.LogDir,
	}
}

func (c *Config) Tracing() tracing.Config {
	otlp := exporters.DefaultOTLPConfig()
	otlp.Endpoint = c.OTLPEndpoint
	otlp.Protocol = c.OTLPProtocol
	otlp.Insecure = c.OTLPInsecure
	return tracing.Config{
		ServiceName: c.AppName,
		Enabled:     c.OTLPEnabled,
		OTLP:        otlp,
	}
}

// LoadTeamsWebhook reads only TEAMS_WEBHOOK_URL, for commands that do not talk to Knackly or Mongo
func LoadTeamsWebhook(configFile string) (string, error) {
	_ = godotenv.Load()
	if err := loadFile(configFile); err != nil {
		return "", err
	}

	var cfg struct {
		TeamsWebhookURL string `env:"TEAMS_WEBHOOK_URL"`
	}
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return "", fmt.Errorf("failed to decode config: %w", err)
	}

	webhook := strings.TrimSpace(cfg.TeamsWebhookURL)
	if webhook == "" {
		return "", errors.New("TEAMS_WEBHOOK_URL is required")
	}
	if err := validate.Var(webhook, "url"); err != nil {
		return "", fmt.Errorf("TEAMS_WEBHOOK_URL is not a valid url: %w", err)
	}
	return webhook, nil
}
