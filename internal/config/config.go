package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Service auth (tokens minted by the bot layer)
	ServiceJWTSecret string

	// Clock / calendar
	Timezone string
	Calendar string // "jalali" | "gregorian"

	// Engine policy
	MinSessionSeconds    int
	SweepIntervalSeconds int
	SweepBatchSize       int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		Env:              getEnvOrDefault("ENV", "development"),
		DatabaseURL:      mustGetEnv("DATABASE_URL"),
		RedisURL:         mustGetEnv("REDIS_URL"),
		ServiceJWTSecret: mustGetEnv("SERVICE_JWT_SECRET"),
		Timezone:         getEnvOrDefault("TIMEZONE", "Asia/Tehran"),
		Calendar:         getEnvOrDefault("CALENDAR", "jalali"),

		MinSessionSeconds:    getEnvAsIntOrDefault("MIN_SESSION_SECONDS", 60),
		SweepIntervalSeconds: getEnvAsIntOrDefault("SWEEP_INTERVAL_SECONDS", 60),
		SweepBatchSize:       getEnvAsIntOrDefault("SWEEP_BATCH_SIZE", 100),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
