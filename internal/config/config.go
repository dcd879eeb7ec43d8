package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	StoreDriverMongo    = "mongo"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8081"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
	RabbitMQURL string `env:"RABBITMQ_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI      string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"matchchat"`
	DatabaseURL   string `env:"DATABASE_URL"`

	CleanupCronSchedule        string `env:"MATCH_SESSION_CLEANUP_CRON_SCHEDULE" envDefault:"* * * * * *"`
	SessionPrefix              string `env:"MATCH_SESSION_PREFIX" envDefault:"match_session:"`
	CleanupSweepTimeoutSeconds int    `env:"CLEANUP_SWEEP_TIMEOUT_SECONDS" envDefault:"30"`

	ConsumerPrefetch int `env:"CONSUMER_PREFETCH" envDefault:"16"`
	WorkerPoolSize   int `env:"WORKER_POOL_SIZE" envDefault:"64"`

	GeoAPIURL         string `env:"FIND_IP_GEO_API_URL" envDefault:"https://api.findip.net"`
	GeoAPIKey         string `env:"FIND_IP_GEO_API_KEY"`
	GeoTimeoutSeconds int    `env:"GEO_TIMEOUT_SECONDS" envDefault:"5"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) SweepTimeout() time.Duration {
	return time.Duration(c.CleanupSweepTimeoutSeconds) * time.Second
}

func (c *Config) GeoTimeout() time.Duration {
	return time.Duration(c.GeoTimeoutSeconds) * time.Second
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when STORE_DRIVER=mongo")
		}
		if c.MongoDatabase == "" {
			return fmt.Errorf("MONGODB_DATABASE is required when STORE_DRIVER=mongo")
		}
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
		log.Warn().Msg("STORE_DRIVER=memory: records are lost on restart")
	default:
		return fmt.Errorf("STORE_DRIVER must be %q, %q or %q, got %q",
			StoreDriverMongo, StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	if strings.TrimSpace(c.SessionPrefix) == "" {
		return fmt.Errorf("MATCH_SESSION_PREFIX must not be empty")
	}
	if strings.ContainsAny(c.SessionPrefix, "*?[") {
		return fmt.Errorf("MATCH_SESSION_PREFIX must not contain glob characters")
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE must be positive")
	}
	if c.ConsumerPrefetch < 0 {
		return fmt.Errorf("CONSUMER_PREFETCH must not be negative")
	}
	if c.CleanupSweepTimeoutSeconds <= 0 {
		return fmt.Errorf("CLEANUP_SWEEP_TIMEOUT_SECONDS must be positive")
	}

	if c.GeoAPIKey == "" {
		log.Info().Msg("FIND_IP_GEO_API_KEY is empty: geo enrichment disabled")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
