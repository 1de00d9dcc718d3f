package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string
	GRPCPort  int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string
	MaxDBConns   int32

	TopicCompleted string
	TopicFailed    string
	TopicCancelled string

	ProviderTimeout  time.Duration
	MaxRetries       int
	QueueConcurrency int
	QueueTick        time.Duration
	CacheTTL         time.Duration

	EnsembleStrategy    string
	ConfidenceThreshold float64
	DisabledModels      []string
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Simulation struct {
		ProviderTimeoutSeconds int      `yaml:"provider_timeout_seconds"`
		MaxRetries             int      `yaml:"max_retries"`
		QueueConcurrency       int      `yaml:"queue_concurrency"`
		QueueTickSeconds       int      `yaml:"queue_tick_seconds"`
		CacheTTLHours          int      `yaml:"cache_ttl_hours"`
		EnsembleStrategy       string   `yaml:"ensemble_strategy"`
		ConfidenceThreshold    float64  `yaml:"confidence_threshold"`
		DisabledModels         []string `yaml:"disabled_models"`
	} `yaml:"simulation"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:           "pivotpulse-simulation-engine",
		GRPCPort:            9090,
		MaxDBConns:          20,
		TopicCompleted:      "simulation.completed",
		TopicFailed:         "simulation.failed",
		TopicCancelled:      "simulation.cancelled",
		ProviderTimeout:     30 * time.Second,
		MaxRetries:          3,
		QueueConcurrency:    5,
		QueueTick:           2 * time.Second,
		CacheTTL:            24 * time.Hour,
		EnsembleStrategy:    "dynamic",
		ConfidenceThreshold: 0.6,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
		}
		if f.Simulation.ProviderTimeoutSeconds > 0 {
			cfg.ProviderTimeout = time.Duration(f.Simulation.ProviderTimeoutSeconds) * time.Second
		}
		if f.Simulation.MaxRetries > 0 {
			cfg.MaxRetries = f.Simulation.MaxRetries
		}
		if f.Simulation.QueueConcurrency > 0 {
			cfg.QueueConcurrency = f.Simulation.QueueConcurrency
		}
		if f.Simulation.QueueTickSeconds > 0 {
			cfg.QueueTick = time.Duration(f.Simulation.QueueTickSeconds) * time.Second
		}
		if f.Simulation.CacheTTLHours > 0 {
			cfg.CacheTTL = time.Duration(f.Simulation.CacheTTLHours) * time.Hour
		}
		if f.Simulation.EnsembleStrategy != "" {
			cfg.EnsembleStrategy = f.Simulation.EnsembleStrategy
		}
		if f.Simulation.ConfidenceThreshold > 0 {
			cfg.ConfidenceThreshold = f.Simulation.ConfidenceThreshold
		}
		if len(f.Simulation.DisabledModels) > 0 {
			cfg.DisabledModels = trimNonEmpty(f.Simulation.DisabledModels)
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.ProviderTimeout = time.Duration(envInt("PROVIDER_TIMEOUT_SECONDS", int(cfg.ProviderTimeout.Seconds()))) * time.Second
	cfg.MaxRetries = envInt("PROVIDER_MAX_RETRIES", cfg.MaxRetries)
	cfg.QueueConcurrency = envInt("QUEUE_CONCURRENCY", cfg.QueueConcurrency)
	cfg.QueueTick = time.Duration(envInt("QUEUE_TICK_SECONDS", int(cfg.QueueTick.Seconds()))) * time.Second
	cfg.CacheTTL = time.Duration(envInt("CACHE_TTL_HOURS", int(cfg.CacheTTL.Hours()))) * time.Hour
	cfg.EnsembleStrategy = envOrDefault("ENSEMBLE_STRATEGY", cfg.EnsembleStrategy)
	cfg.DisabledModels = envCSV("DISABLED_MODELS", cfg.DisabledModels)

	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
