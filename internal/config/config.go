package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

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

	// JWT
	JWTSecret string

	// Attention classifier
	ClassifierURL     string
	ClassifierTimeout time.Duration
	ClassifierRetries int

	// Attention thresholds
	VisibilityThreshold      float64
	VisibilityFraction       float64
	AutoPauseDelay           time.Duration
	DistractionWindow        time.Duration
	DistractionHighFraction  float64
	DistractionClearFraction float64
	DistractionPauseDelay    time.Duration
	LowConcentration         float64
	NoFrameTimeout           time.Duration
	SweepInterval            time.Duration

	// Scoring
	PointsPerSecond    float64
	ConcentrationBonus float64
	DistractionPenalty float64
	PausePenalty       float64
	BlockedSitePenalty float64
	MaxHearts          int
	HeartRegenPeriod   time.Duration
	StreakTimezone     string

	// HTTP
	FrameRateLimit int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		ClassifierURL:     getEnvOrDefault("CLASSIFIER_API_URL", "http://localhost:8500"),
		ClassifierTimeout: getEnvAsSecondsOrDefault("CLASSIFIER_TIMEOUT_SECONDS", 7*time.Second),
		ClassifierRetries: getEnvAsIntOrDefault("CLASSIFIER_RETRY_ATTEMPTS", 1),

		VisibilityThreshold:      getEnvAsFloatOrDefault("VISIBILITY_THRESHOLD", 0.3),
		VisibilityFraction:       getEnvAsFloatOrDefault("VISIBILITY_FRACTION_THRESHOLD", 0.3),
		AutoPauseDelay:           getEnvAsSecondsOrDefault("AUTO_PAUSE_DELAY_SECONDS", 12*time.Second),
		DistractionWindow:        getEnvAsSecondsOrDefault("DISTRACTION_WINDOW_SECONDS", 5*time.Second),
		DistractionHighFraction:  getEnvAsFloatOrDefault("DISTRACTION_HIGH_FRACTION", 0.8),
		DistractionClearFraction: getEnvAsFloatOrDefault("DISTRACTION_CLEAR_FRACTION", 0.5),
		DistractionPauseDelay:    getEnvAsSecondsOrDefault("DISTRACTION_PAUSE_DELAY_SECONDS", 5*time.Second),
		LowConcentration:         getEnvAsFloatOrDefault("LOW_CONCENTRATION_THRESHOLD", 0.4),
		NoFrameTimeout:           getEnvAsSecondsOrDefault("NO_FRAME_TIMEOUT_SECONDS", 12*time.Second),
		SweepInterval:            getEnvAsSecondsOrDefault("SWEEP_INTERVAL_SECONDS", 15*time.Second),

		PointsPerSecond:    getEnvAsFloatOrDefault("POINTS_PER_SECOND", 0.1),
		ConcentrationBonus: getEnvAsFloatOrDefault("CONCENTRATION_BONUS_MULTIPLIER", 50),
		DistractionPenalty: getEnvAsFloatOrDefault("DISTRACTION_PENALTY", 10),
		PausePenalty:       getEnvAsFloatOrDefault("PAUSE_PENALTY", 5),
		BlockedSitePenalty: getEnvAsFloatOrDefault("BLOCKED_SITE_PENALTY", 15),
		MaxHearts:          getEnvAsIntOrDefault("MAX_HEARTS", 5),
		HeartRegenPeriod:   getEnvAsHoursOrDefault("HEARTS_REGEN_HOURS", 3*time.Hour),
		StreakTimezone:     getEnvOrDefault("STREAK_TIMEZONE", "UTC"),

		FrameRateLimit: getEnvAsIntOrDefault("FRAME_RATE_LIMIT_PER_MINUTE", 120),

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

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsSecondsOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return time.Duration(n * float64(time.Second))
}

func getEnvAsHoursOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return time.Duration(n * float64(time.Hour))
}
