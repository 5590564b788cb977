package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	FFmpegPath   string
	OpusBitrate  string // e.g., "128k"
	CacheDir     string // Local tier for transcoded Opus artifacts
	CacheTTL     int    // Seconds an artifact stays fresh after (re)encode; <=0 disables expiry
	ReapInterval int    // Seconds between reaper sweeps of the local tier

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis holds the cache artifact index
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO object tier; empty endpoint disables the tier
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	MinioPrefix    string // Key prefix for Opus objects inside the bucket
	MinioPrimary   bool   // Upload fresh transcodes to the object tier instead of keeping them local
	SignedURLTTL   int    // Seconds a presigned GET URL stays valid

	DefaultUserLimit  int // Per-user pending submission limit for new sessions; 0 = unlimited
	QueuePreviewLimit int // Entries included in dashboard snapshots
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		OpusBitrate:  getEnv("OPUS_BITRATE", "128k"),
		CacheDir:     getEnv("CACHE_DIR", filepath.Join("data", "opus-cache")),
		CacheTTL:     getEnvInt("CACHE_TTL_SECONDS", 6*3600),
		ReapInterval: getEnvInt("CACHE_REAP_INTERVAL_SECONDS", 300),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "jamfm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "jamfm"),
		MinioRegion:    getEnv("MINIO_REGION", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioPrefix:    getEnv("MINIO_PREFIX", "opus"),
		MinioPrimary:   getEnvBool("MINIO_PRIMARY", false),
		SignedURLTTL:   getEnvInt("SIGNED_URL_TTL_SECONDS", 900),

		DefaultUserLimit:  getEnvInt("DEFAULT_USER_LIMIT", 0),
		QueuePreviewLimit: getEnvInt("QUEUE_PREVIEW_LIMIT", 25),
	}
}
