package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
)

type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string

	OpenAI    OpenAIConfig
	Geocoding GeocodingConfig
	Store     StoreConfig
}

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	AssistantID     string
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	PollBackoff     float64
	RunTimeout      time.Duration
}

type GeocodingConfig struct {
	APIKey         string
	URL            string
	Timeout        time.Duration
	DefaultCountry string
}

type StoreConfig struct {
	Backend          string
	DynamoDBTable    string
	DynamoDBEndpoint string
	AWSRegion        string
	PostgresURI      string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		GinMode:        getEnv("GIN_MODE", "release"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		OpenAI: OpenAIConfig{
			APIKey:          os.Getenv("OPENAI_API_KEY"),
			BaseURL:         os.Getenv("OPENAI_BASE_URL"),
			AssistantID:     os.Getenv("OPENAI_ASSISTANT_ID"),
			PollInterval:    getEnvDuration("ASSISTANT_POLL_INTERVAL", time.Second),
			MaxPollInterval: getEnvDuration("ASSISTANT_MAX_POLL_INTERVAL", time.Second),
			PollBackoff:     getEnvFloat("ASSISTANT_POLL_BACKOFF", 1),
			RunTimeout:      getEnvDuration("ASSISTANT_RUN_TIMEOUT", 2*time.Minute),
		},
		Geocoding: GeocodingConfig{
			APIKey:         os.Getenv("GOOGLE_MAPS_API_KEY"),
			URL:            getEnv("GEOCODING_URL", "https://maps.googleapis.com/maps/api/geocode/json"),
			Timeout:        getEnvDuration("GEOCODING_TIMEOUT", 10*time.Second),
			DefaultCountry: getEnv("DEFAULT_COUNTRY", "US"),
		},
		Store: StoreConfig{
			Backend:          strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
			DynamoDBTable:    getEnv("DYNAMODB_TABLE", "Conversations"),
			DynamoDBEndpoint: os.Getenv("DYNAMODB_ENDPOINT"),
			AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
			PostgresURI:      os.Getenv("POSTGRES_URI"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if c.OpenAI.AssistantID == "" {
		return fmt.Errorf("OPENAI_ASSISTANT_ID is not set")
	}
	if c.Geocoding.APIKey == "" {
		return fmt.Errorf("GOOGLE_MAPS_API_KEY is not set")
	}
	if c.OpenAI.PollInterval <= 0 {
		return fmt.Errorf("ASSISTANT_POLL_INTERVAL must be > 0")
	}
	if b := c.OpenAI.PollBackoff; math.IsNaN(b) || math.IsInf(b, 0) || b < 0 {
		return fmt.Errorf("ASSISTANT_POLL_BACKOFF must be a finite number >= 0")
	}
	if c.OpenAI.RunTimeout < 0 {
		return fmt.Errorf("ASSISTANT_RUN_TIMEOUT must be >= 0")
	}
	switch c.Store.Backend {
	case StoreMemory, StoreDynamoDB:
	case StorePostgres:
		if c.Store.PostgresURI == "" {
			return fmt.Errorf("POSTGRES_URI is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
