// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Config holds all the configuration for the garage service
type Config struct {
	ServiceName    string
	ServicePort    string
	GRPCPort       string
	ServiceAddress string

	StoreBackend  string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string

	ConsulEnabled bool
	ConsulAddress string

	KafkaEnabled          bool
	KafkaBootstrapServers string
	SchemaRegistryURL     string
	KafkaTopic            string
	OutboxInterval        time.Duration

	TracingEnabled bool
	OTLPEndpoint   string
	LogFile        string

	RejectOutOfStock  bool
	RejectActionStock bool
}

// Load reads a .env file when present and then the environment, applying defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	var err error
	cfg := &Config{
		ServiceName:           getEnvOrDefault("SERVICE_NAME", "garage-service"),
		ServicePort:           getEnvOrDefault("SERVICE_PORT", "8083"),
		GRPCPort:              getEnvOrDefault("GRPC_PORT", "50051"),
		ServiceAddress:        getEnvOrDefault("SERVICE_ADDRESS", "garage-service"),
		StoreBackend:          getEnvOrDefault("STORE_BACKEND", BackendMongo),
		MongoURI:              getEnvOrDefault("MONGO_URI", "mongodb://mongodb:27017/garagedb?replicaSet=rs0"),
		MongoDatabase:         getEnvOrDefault("MONGO_DATABASE", "garagedb"),
		PostgresDSN:           os.Getenv("POSTGRES_DSN"),
		ConsulAddress:         getEnvOrDefault("CONSUL_ADDRESS", "consul:8500"),
		KafkaBootstrapServers: os.Getenv("KAFKA_BOOTSTRAP_SERVERS"),
		SchemaRegistryURL:     getEnvOrDefault("SCHEMA_REGISTRY_URL", "http://schema-registry:8081"),
		KafkaTopic:            getEnvOrDefault("KAFKA_TOPIC", "repair-events"),
		OTLPEndpoint:          getEnvOrDefault("OTLP_ENDPOINT", "jaeger:4318"),
		LogFile:               os.Getenv("LOG_FILE"),
	}

	bools := []struct {
		key  string
		def  bool
		dest *bool
	}{
		{"CONSUL_ENABLED", false, &cfg.ConsulEnabled},
		{"KAFKA_ENABLED", false, &cfg.KafkaEnabled},
		{"TRACING_ENABLED", true, &cfg.TracingEnabled},
		{"REJECT_OUT_OF_STOCK", true, &cfg.RejectOutOfStock},
		{"REJECT_ACTION_STOCK", false, &cfg.RejectActionStock},
	}
	for _, b := range bools {
		if *b.dest, err = getBool(b.key, b.def); err != nil {
			return nil, err
		}
	}

	if cfg.OutboxInterval, err = getDuration("OUTBOX_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendMongo:
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required when STORE_BACKEND is %s", BackendPostgres)
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
