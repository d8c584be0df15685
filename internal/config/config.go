package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the departure board service
type Config struct {
	// Upstream timetable API
	APIID        string        `validate:"required"`
	APIKey       string        `validate:"required"`
	APIBase      string        `validate:"required,url"`
	FetchTimeout time.Duration `validate:"gt=0"`

	// Station served by this board: numeric stop id or search term
	Station string `validate:"required"`

	// HTTP
	Port        string `validate:"required,numeric"`
	StaticDir   string
	CORSOrigins []string `validate:"min=1"`

	// Civil time
	Timezone string `validate:"required"`

	// Static network data
	NetworkFile string

	// Enrichment
	PatternCacheTTL   time.Duration `validate:"gte=0"`
	PatternCacheSize  int           `validate:"gt=0"`
	EnrichConcurrency int           `validate:"gt=0"`

	// Wall-clock schedules (cron expressions)
	RefreshSchedule string `validate:"required"`
	TickSchedule    string `validate:"required"`

	// Board snapshot store
	DatabasePath      string
	DatabaseURL       string
	SnapshotRetention time.Duration `validate:"gt=0"`
}

// LoadEnvFiles loads .env then .env.local (which overrides for local development).
// Missing files are ignored.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		APIID:        os.Getenv("API_ID"),
		APIKey:       os.Getenv("API_KEY"),
		APIBase:      getEnv("API_BASE", "https://timetableapi.ptv.vic.gov.au/v3"),
		FetchTimeout: time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 15)) * time.Second,

		Station: strings.TrimSpace(os.Getenv("STATION")),

		Port:        getEnv("PORT", "3000"),
		StaticDir:   getEnvAllowEmpty("STATIC_DIR", "static"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		Timezone: getEnv("TIMEZONE", "Australia/Melbourne"),

		NetworkFile: getEnv("NETWORK_FILE", "network.yml"),

		PatternCacheTTL:   time.Duration(getEnvInt("PATTERN_CACHE_SECONDS", 120)) * time.Second,
		PatternCacheSize:  getEnvInt("PATTERN_CACHE_SIZE", 256),
		EnrichConcurrency: getEnvInt("ENRICH_CONCURRENCY", 8),

		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "5 0 * * *"),
		TickSchedule:    getEnv("TICK_SCHEDULE", "* * * * *"),

		DatabasePath:      getEnvAllowEmpty("SQLITE_DATABASE", "pidboard.db"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SnapshotRetention: time.Duration(getEnvInt("SNAPSHOT_RETENTION_HOURS", 24)) * time.Hour,
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}

// Location returns the fixed civil timezone the board operates in
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes an unset variable from one explicitly set to "".
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
