package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Hard limits enforced regardless of environment.
const (
	MaxConcurrencyLimit = 20
	MaxSegmentDays      = 10
	MaxRetries          = 10
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// FIRMS upstream configuration.
	FIRMSMapKey         string
	FIRMSBaseURL        string
	FIRMSTimeout        time.Duration
	FIRMSRetries        int
	FIRMSBackoffBase    float64
	FIRMSMaxBackoff     time.Duration
	SegmentDays         int
	MaxConcurrency      int
	SourcePriority      string
	AvailabilityTTL     time.Duration
	AvailabilityTimeout time.Duration

	// Optional detection publication.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
	// PublishTimeout bounds one publication batch.
	PublishTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	firmsTimeout, err := parsePositiveDuration("FIRMS_TIMEOUT", "120s")
	if err != nil {
		return nil, err
	}
	maxBackoff, err := parsePositiveDuration("FIRMS_MAX_BACKOFF", "30s")
	if err != nil {
		return nil, err
	}
	availabilityTimeout, err := parsePositiveDuration("AVAILABILITY_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	publishTimeout, err := parsePositiveDuration("KAFKA_PUBLISH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	availabilityTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("AVAILABILITY_CACHE_TTL", "600s"))
	if err != nil || availabilityTTL < 0 {
		return nil, errors.New("invalid AVAILABILITY_CACHE_TTL")
	}

	retries, err := parseBoundedInt("FIRMS_RETRIES", 3, 1, MaxRetries)
	if err != nil {
		return nil, err
	}
	segmentDays, err := parseBoundedInt("FIRMS_SEGMENT_DAYS", 10, 1, MaxSegmentDays)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseBoundedInt("MAX_CONCURRENT_REQUESTS", 5, 1, MaxConcurrencyLimit)
	if err != nil {
		return nil, err
	}

	backoffBase, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("FIRMS_BACKOFF_BASE", "1.5"), 64)
	if err != nil || backoffBase <= 1 {
		return nil, errors.New("invalid FIRMS_BACKOFF_BASE: must be a number greater than 1")
	}

	mapKey := os.Getenv("FIRMS_MAP_KEY")
	if mapKey == "" {
		if legacy := os.Getenv("FIRMS_API_KEY"); legacy != "" {
			mapKey = legacy
			slog.Warn("FIRMS_API_KEY is deprecated; please use FIRMS_MAP_KEY")
		}
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	kafkaEnabled := brokers != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FIRMSMapKey:         mapKey,
		FIRMSBaseURL:        sharedcfg.EnvOrDefault("FIRMS_BASE_URL", "https://firms.modaps.eosdis.nasa.gov/api"),
		FIRMSTimeout:        firmsTimeout,
		FIRMSRetries:        retries,
		FIRMSBackoffBase:    backoffBase,
		FIRMSMaxBackoff:     maxBackoff,
		SegmentDays:         segmentDays,
		MaxConcurrency:      concurrency,
		SourcePriority:      os.Getenv("SOURCE_PRIORITY"),
		AvailabilityTTL:     availabilityTTL,
		AvailabilityTimeout: availabilityTimeout,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "fire-detections"),

		PublishTimeout: publishTimeout,
	}

	if cfg.FIRMSBaseURL == "" {
		return nil, errors.New("FIRMS_BASE_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when Kafka is enabled")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseBoundedInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}
