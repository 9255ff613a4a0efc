package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	LogLevel    string
	Conso       ConsoConfig
	RabbitMQ    RabbitMQConfig
	Anomaly     AnomalyConfig
}

// ConsoConfig holds Conso API client settings
type ConsoConfig struct {
	Token     string
	PRM       string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL               string
	RequestExchange   string
	RequestQueue      string
	RequestRoutingKey string
	EventsExchange    string
	ReadingRoutingKey string
	SummaryRoutingKey string
	DLQQueue          string
	PrefetchCount     int
}

// AnomalyConfig holds anomaly detection settings
type AnomalyConfig struct {
	SpikeThreshold            float64
	MinDataPointsForDetection int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "conso-metering-worker"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8081),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Conso: ConsoConfig{
			Token:     getEnv("CONSO_TOKEN", ""),
			PRM:       getEnv("CONSO_PRM", ""),
			BaseURL:   getEnv("CONSO_BASE_URL", "https://conso.boris.sh/api"),
			UserAgent: getEnv("CONSO_USER_AGENT", "conso-metering-go"),
			Timeout:   time.Duration(getEnvAsInt("CONSO_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		RabbitMQ: RabbitMQConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			RequestExchange:   getEnv("RABBITMQ_REQUEST_EXCHANGE", "conso-metering.requests.exchange"),
			RequestQueue:      getEnv("RABBITMQ_REQUEST_QUEUE", "conso-metering.requests.queue"),
			RequestRoutingKey: getEnv("RABBITMQ_REQUEST_ROUTING_KEY", "conso.fetch.requested"),
			EventsExchange:    getEnv("RABBITMQ_EVENTS_EXCHANGE", "conso-metering.events.exchange"),
			ReadingRoutingKey: getEnv("RABBITMQ_READING_ROUTING_KEY", "conso.reading.fetched"),
			SummaryRoutingKey: getEnv("RABBITMQ_SUMMARY_ROUTING_KEY", "conso.record.fetched"),
			DLQQueue:          getEnv("RABBITMQ_DLQ_QUEUE", "conso-metering.requests.dlq"),
			PrefetchCount:     getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold:            getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", 3.0),
			MinDataPointsForDetection: getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 3),
		},
	}

	// Validate required fields
	if cfg.Conso.Token == "" {
		return nil, fmt.Errorf("CONSO_TOKEN is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if cfg.Conso.Timeout <= 0 {
		return nil, fmt.Errorf("CONSO_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
