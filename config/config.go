package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RentcastAPIKey string
	RentcastRPS    float64
	MapboxToken    string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int

	FreshTTLHours   int
	StaleTTLHours   int
	RefreshAfterMin int
	MatrixChunkSize int

	ListenAddr    string
	CachePath     string
	CSVOutputPath string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "swipehouse"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "swipehouse123"),
		PostgresDB:       getEnv("POSTGRES_DB", "listings_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RentcastAPIKey: getEnv("RENTCAST_API_KEY", ""),
		RentcastRPS:    getEnvFloat("RENTCAST_RPS", 1),
		MapboxToken:    getEnv("MAPBOX_TOKEN", ""),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 200),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),

		FreshTTLHours:   getEnvInt("CACHE_FRESH_TTL_HOURS", 24),
		StaleTTLHours:   getEnvInt("CACHE_STALE_TTL_HOURS", 168),
		RefreshAfterMin: getEnvInt("CACHE_REFRESH_AFTER_MIN", 30),
		MatrixChunkSize: getEnvInt("MATRIX_CHUNK_SIZE", 25),

		ListenAddr:    getEnv("LISTEN_ADDR", ":8787"),
		CachePath:     getEnv("CACHE_PATH", "./data/cache.db"),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/rejected_records.csv"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return n
		}
	}
	return fallback
}
