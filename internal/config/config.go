package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var (
	instance *Config
	once     sync.Once
)

type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string
	AppURL      string

	// Encryption key for stored backend credentials (must be exactly 32 bytes for AES-256)
	EncryptionKey string

	// Operator-configured defaults for shared server pools. SERVER_POOLS_FILE
	// (YAML) takes precedence over the individual env vars.
	ServerPoolsFile string

	DefaultSQLHost     string
	DefaultSQLPort     int
	DefaultSQLUser     string
	DefaultSQLPassword string

	DefaultMongoHost       string
	DefaultMongoPort       int
	DefaultMongoUser       string
	DefaultMongoPassword   string
	DefaultMongoReplicaSet string

	DefaultCacheHost     string
	DefaultCachePort     int
	DefaultCacheUser     string
	DefaultCachePassword string

	// Application databases created per tenant on the shared SQL server
	AppDatabases []string

	// AWS (object storage)
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	S3Endpoint           string
	S3RetryAttempts      int
	S3RetryDelay         time.Duration
	S3NoncurrentDays     int
	S3AllowedCORSOrigins []string

	// Azure (blob containers)
	AzureStorageAccount string
	AzureStorageKey     string

	// External CI
	CIBaseURL       string
	CIWebhookSecret string

	// Deployment scheduler sweep interval
	SchedulerInterval time.Duration

	// Webhook API Key (for internal service authentication)
	WebhookApiKey string

	// CORS
	CorsOrigins string
}

func Load() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		instance = &Config{
			Port:          getEnv("PORT", "8080"),
			DatabaseURL:   getEnv("DATABASE_URL", ""),
			JWTSecret:     getEnv("JWT_SECRET", ""),
			AppURL:        getEnv("APP_URL", "http://localhost:3000"),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

			ServerPoolsFile: getEnv("SERVER_POOLS_FILE", ""),

			DefaultSQLHost:     getEnv("DEFAULT_SQL_HOST", "localhost"),
			DefaultSQLPort:     getEnvInt("DEFAULT_SQL_PORT", 3306),
			DefaultSQLUser:     getEnv("DEFAULT_SQL_USER", "root"),
			DefaultSQLPassword: getEnv("DEFAULT_SQL_PASSWORD", ""),

			DefaultMongoHost:       getEnv("DEFAULT_MONGO_HOST", "localhost"),
			DefaultMongoPort:       getEnvInt("DEFAULT_MONGO_PORT", 27017),
			DefaultMongoUser:       getEnv("DEFAULT_MONGO_USER", "admin"),
			DefaultMongoPassword:   getEnv("DEFAULT_MONGO_PASSWORD", ""),
			DefaultMongoReplicaSet: getEnv("DEFAULT_MONGO_REPLICA_SET", ""),

			DefaultCacheHost:     getEnv("DEFAULT_CACHE_HOST", "localhost"),
			DefaultCachePort:     getEnvInt("DEFAULT_CACHE_PORT", 6379),
			DefaultCacheUser:     getEnv("DEFAULT_CACHE_USER", "default"),
			DefaultCachePassword: getEnv("DEFAULT_CACHE_PASSWORD", ""),

			AppDatabases: getEnvList("APP_DATABASES", []string{"app", "reporting", "queue"}),

			AWSRegion:            getEnv("AWS_REGION", "eu-west-1"),
			AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
			AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Endpoint:           getEnv("S3_ENDPOINT", ""),
			S3RetryAttempts:      getEnvInt("S3_RETRY_ATTEMPTS", 5),
			S3RetryDelay:         time.Duration(getEnvInt("S3_RETRY_DELAY_SECONDS", 3)) * time.Second,
			S3NoncurrentDays:     getEnvInt("S3_NONCURRENT_VERSION_DAYS", 30),
			S3AllowedCORSOrigins: getEnvList("S3_CORS_ORIGINS", []string{"*"}),

			AzureStorageAccount: getEnv("AZURE_STORAGE_ACCOUNT", ""),
			AzureStorageKey:     getEnv("AZURE_STORAGE_KEY", ""),

			CIBaseURL:       getEnv("CI_BASE_URL", "https://gitlab.com"),
			CIWebhookSecret: getEnv("CI_WEBHOOK_SECRET", ""),

			SchedulerInterval: time.Duration(getEnvInt("SCHEDULER_INTERVAL_SECONDS", 15)) * time.Second,

			WebhookApiKey: getEnv("WEBHOOK_API_KEY", ""),
			CorsOrigins:   getEnv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
		}
	})
	return instance
}

// Get returns the loaded config instance
func Get() *Config {
	return instance
}

// Set replaces the config instance (for testing purposes only)
func Set(cfg *Config) {
	instance = cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
