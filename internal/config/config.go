package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Sensor   SensorConfig
	Redis    RedisConfig
	LogLevel string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

// SensorConfig holds observation processing configuration
type SensorConfig struct {
	SensorsPath string
	Workers     int // observe worker goroutines
	Timeout     int // per-observation timeout in seconds
	CacheTTL    int // seconds an encoded observation stays cached
}

// ObserveTimeout returns the per-observation timeout as a duration.
func (c SensorConfig) ObserveTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// CacheExpiration returns the cache TTL as a duration.
func (c SensorConfig) CacheExpiration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// RedisConfig holds Redis-related configuration
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string
	ConsumerName  string // generated from the hostname when empty
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Sensor: SensorConfig{
			SensorsPath: getEnv("SENSORS_PATH", "/opt/sensors"),
			Workers:     getEnvAsInt("OBSERVE_WORKERS", 4),
			Timeout:     getEnvAsInt("OBSERVE_TIMEOUT", 10),
			CacheTTL:    getEnvAsInt("CACHE_TTL", 300),
		},
		Redis: RedisConfig{
			Addr:          getRedisAddr(),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			ConsumerGroup: getEnv("REDIS_CONSUMER_GROUP", "sensor-bridge"),
			ConsumerName:  getEnv("REDIS_CONSUMER_NAME", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// getRedisAddr resolves the Redis address from REDIS_URL, then REDIS_ADDR
func getRedisAddr() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return strings.TrimPrefix(url, "redis://")
	}
	return getEnv("REDIS_ADDR", "localhost:6379")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
