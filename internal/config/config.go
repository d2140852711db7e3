package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"delivery/internal/tracking"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Rabbit   RabbitConfig   `yaml:"rabbit"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Stripe   StripeConfig   `yaml:"stripe"`
	NewRelic NewRelicConfig `yaml:"newrelic"`
	Tracking TrackingConfig `yaml:"tracking"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	RunMigrations bool `yaml:"run_migrations"`
}

// RedisConfig holds Redis configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MongoConfig holds the transition history store. An empty URI disables it.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// RabbitConfig holds the order event exchange. An empty URL disables it; an
// empty exchange means rabbit.DefaultExchange.
type RabbitConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

// KafkaConfig holds the location ingestion topic. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// StripeConfig holds payment gateway credentials. An empty SecretKey disables payments.
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `yaml:"app_name"`
	LicenseKey string `yaml:"license_key"`
	Enabled    bool   `yaml:"enabled"`
}

// TrackingConfig holds the location pipeline tunables.
type TrackingConfig struct {
	SamplerInterval  time.Duration `yaml:"sampler_interval"`
	InactivityWindow time.Duration `yaml:"inactivity_window"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	RelayEnabled     bool          `yaml:"relay_enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "delivery",
			SSLMode:  "disable",
		},
		Mongo: MongoConfig{Database: "delivery"},
		Kafka: KafkaConfig{
			Topic:   "rider-locations",
			GroupID: "tracking-hub",
		},
		NewRelic: NewRelicConfig{AppName: "delivery-service"},
		Tracking: TrackingConfig{
			SamplerInterval:  tracking.DefaultInterval,
			InactivityWindow: 60 * time.Second,
			SubscriberBuffer: 32,
			RelayEnabled:     true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE, then environment variables. A .env file in the working
// directory is read into the environment first; a missing one is ignored.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.RunMigrations = getBoolEnv("RUN_MIGRATIONS", c.Database.RunMigrations)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("REDIS_DB", c.Redis.DB)

	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DATABASE", c.Mongo.Database)

	c.Rabbit.URL = getEnv("RABBITMQ_URL", c.Rabbit.URL)
	c.Rabbit.Exchange = getEnv("RABBITMQ_EXCHANGE", c.Rabbit.Exchange)
	c.Rabbit.Queue = getEnv("RABBITMQ_QUEUE", c.Rabbit.Queue)

	c.Kafka.Brokers = getListEnv("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.Stripe.SecretKey = getEnv("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)
	c.Stripe.SuccessURL = getEnv("STRIPE_SUCCESS_URL", c.Stripe.SuccessURL)
	c.Stripe.CancelURL = getEnv("STRIPE_CANCEL_URL", c.Stripe.CancelURL)

	c.NewRelic.AppName = getEnv("NEW_RELIC_APP_NAME", c.NewRelic.AppName)
	c.NewRelic.LicenseKey = getEnv("NEW_RELIC_LICENSE_KEY", c.NewRelic.LicenseKey)
	c.NewRelic.Enabled = getBoolEnv("NEW_RELIC_ENABLED", c.NewRelic.Enabled)

	c.Tracking.SamplerInterval = getDurationEnv("TRACKING_SAMPLER_INTERVAL", c.Tracking.SamplerInterval)
	c.Tracking.InactivityWindow = getDurationEnv("TRACKING_INACTIVITY_WINDOW", c.Tracking.InactivityWindow)
	c.Tracking.SubscriberBuffer = getIntEnv("TRACKING_SUBSCRIBER_BUFFER", c.Tracking.SubscriberBuffer)
	c.Tracking.RelayEnabled = getBoolEnv("TRACKING_RELAY_ENABLED", c.Tracking.RelayEnabled)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Tracking.SamplerInterval < tracking.MinInterval {
		errs = append(errs, fmt.Errorf("tracking sampler interval %s is below the %s floor", c.Tracking.SamplerInterval, tracking.MinInterval))
	}
	if c.Tracking.InactivityWindow <= c.Tracking.SamplerInterval {
		errs = append(errs, fmt.Errorf("tracking inactivity window %s must exceed the sampler interval %s", c.Tracking.InactivityWindow, c.Tracking.SamplerInterval))
	}
	if c.Tracking.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("tracking subscriber buffer must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("stripe webhook secret is required when payments are enabled"))
	}
	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		errs = append(errs, errors.New("new relic license key is required when new relic is enabled"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
