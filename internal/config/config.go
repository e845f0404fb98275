// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tournevent/postershop/pkg/carrier"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port           int     `envconfig:"PORT" default:"8080"`
	LogLevel       string  `envconfig:"LOG_LEVEL" default:"info"`
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"40"`

	// Storage. An empty URL or address keeps everything in memory.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Carrier
	CarrierAPIToken     string        `envconfig:"CARRIER_API_TOKEN"`
	CarrierBaseURL      string        `envconfig:"CARRIER_BASE_URL" default:"https://track.delhivery.com"`
	CarrierTimeout      time.Duration `envconfig:"CARRIER_TIMEOUT" default:"15s"`
	CarrierUseMock      bool          `envconfig:"CARRIER_USE_MOCK" default:"false"`
	CarrierWarehouseAPI string        `envconfig:"CARRIER_WAREHOUSE_API" default:"express"`
	CarrierCacheTTL     time.Duration `envconfig:"CARRIER_CACHE_TTL" default:"10m"`
	CarrierRPS          float64       `envconfig:"CARRIER_RPS" default:"5"`

	// Fulfillment
	DefaultWarehouse string `envconfig:"DEFAULT_WAREHOUSE"`
	ReturnWarehouse  string `envconfig:"RETURN_WAREHOUSE"`
	OperatorEmail    string `envconfig:"OPERATOR_EMAIL"`
	ReturnWindowDays int    `envconfig:"RETURN_WINDOW_DAYS" default:"7"`

	// Downloads
	DownloadSigner  string        `envconfig:"DOWNLOAD_SIGNER" default:"jwt"`
	DownloadSecret  string        `envconfig:"DOWNLOAD_SECRET"`
	DownloadBaseURL string        `envconfig:"DOWNLOAD_BASE_URL" default:"http://localhost:8080/downloads"`
	DownloadTTL     time.Duration `envconfig:"DOWNLOAD_TTL" default:"72h"`
	S3Endpoint      string        `envconfig:"S3_ENDPOINT"`
	S3Region        string        `envconfig:"S3_REGION" default:"auto"`
	S3AccessKey     string        `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey     string        `envconfig:"S3_SECRET_KEY"`
	S3Bucket        string        `envconfig:"S3_BUCKET"`
	S3Prefix        string        `envconfig:"S3_PREFIX" default:"artworks"`

	// Notifications
	NotifyTransport string   `envconfig:"NOTIFY_TRANSPORT" default:"log"`
	NATSURL         string   `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	NATSSubject     string   `envconfig:"NATS_SUBJECT_PREFIX" default:"postershop.notify"`
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic      string   `envconfig:"KAFKA_TOPIC" default:"postershop.notifications"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"postershop"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables. A dotenv file named
// by CONFIG_FILE, or .env in the working directory, is loaded first; values
// already present in the environment win.
func Load() (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotenv() error {
	if file := os.Getenv("CONFIG_FILE"); file != "" {
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("loading config file %s: %w", file, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Validate checks values envconfig cannot check on its own.
func (c *Config) Validate() error {
	if _, err := carrier.ParseWarehouseAPI(c.CarrierWarehouseAPI); err != nil {
		return fmt.Errorf("CARRIER_WAREHOUSE_API: %w", err)
	}
	if c.ReturnWindowDays <= 0 {
		return fmt.Errorf("RETURN_WINDOW_DAYS must be positive, got %d", c.ReturnWindowDays)
	}
	switch c.DownloadSigner {
	case "jwt", "s3":
	default:
		return fmt.Errorf("DOWNLOAD_SIGNER must be jwt or s3, got %q", c.DownloadSigner)
	}
	switch c.NotifyTransport {
	case "log", "nats", "kafka":
	default:
		return fmt.Errorf("NOTIFY_TRANSPORT must be log, nats or kafka, got %q", c.NotifyTransport)
	}
	return nil
}

// WarehouseAPI returns the configured carrier warehouse API.
func (c *Config) WarehouseAPI() carrier.WarehouseAPI {
	api, _ := carrier.ParseWarehouseAPI(c.CarrierWarehouseAPI)
	return api
}

// ReturnWindow returns the return window as a duration.
func (c *Config) ReturnWindow() time.Duration {
	return time.Duration(c.ReturnWindowDays) * 24 * time.Hour
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("carrier.configured", c.CarrierAPIToken != "" || c.CarrierUseMock),
		attribute.String("carrier.warehouse_api", c.CarrierWarehouseAPI),
		attribute.Bool("storage.postgres", c.DatabaseURL != ""),
		attribute.String("notify.transport", c.NotifyTransport),
		attribute.String("downloads.signer", c.DownloadSigner),
	}
}
