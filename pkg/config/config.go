package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// Redis configuration (access records, reset tokens, token denylist)
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Stripe configuration
	Stripe struct {
		SecretKey     string
		WebhookSecret string
		APIBaseURL    string
		Timeout       time.Duration
		// GraceWindow is granted when a subscription lookup fails right
		// after checkout, so the buyer is not locked out of the stream.
		GraceWindow time.Duration
	}

	// Discord OAuth configuration
	Discord struct {
		ClientID     string
		ClientSecret string
		RedirectPath string
	}

	// Chat configuration. Client-side delivery tunables (poll cadence,
	// dedup window) live in the chat controller's own Config; only the
	// server-side knobs are env-driven.
	Chat struct {
		ViewLimit      int
		PollBatchLimit int
	}

	// Paywall configuration
	Paywall struct {
		AccessCacheTTL time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowOrigin    string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables.
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "8081")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
		instance.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+instance.Server.Port)

		// Database config
		instance.Database.Host = getEnvString("DB_HOST", "localhost")
		instance.Database.Port = getEnvString("DB_PORT", "5432")
		instance.Database.User = getEnvString("DB_USER", "postgres")
		instance.Database.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Database.Name = getEnvString("DB_NAME", "fightzone")
		instance.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
		instance.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

		// Redis config
		instance.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
		instance.Redis.Password = getEnvString("REDIS_PASSWORD", "")
		instance.Redis.DB = getEnvInt("REDIS_DB", 0)

		// JWT config
		instance.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
		instance.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

		// Stripe config
		instance.Stripe.SecretKey = getEnvString("STRIPE_SECRET_KEY", "")
		instance.Stripe.WebhookSecret = getEnvString("STRIPE_WEBHOOK_SECRET", "")
		instance.Stripe.APIBaseURL = getEnvString("STRIPE_API_BASE_URL", "https://api.stripe.com/v1")
		instance.Stripe.Timeout = getEnvDuration("STRIPE_TIMEOUT", 15*time.Second)
		instance.Stripe.GraceWindow = getEnvDuration("STRIPE_GRACE_WINDOW", 10*time.Minute)

		// Discord OAuth config
		instance.Discord.ClientID = getEnvString("DISCORD_CLIENT_ID", "")
		instance.Discord.ClientSecret = getEnvString("DISCORD_CLIENT_SECRET", "")
		instance.Discord.RedirectPath = getEnvString("DISCORD_REDIRECT_PATH", "/api/v1/auth/discord/callback")

		// Chat config
		instance.Chat.ViewLimit = getEnvInt("CHAT_VIEW_LIMIT", 60)
		instance.Chat.PollBatchLimit = getEnvInt("CHAT_POLL_BATCH_LIMIT", 50)

		// Paywall config
		instance.Paywall.AccessCacheTTL = getEnvDuration("PAYWALL_ACCESS_CACHE_TTL", 30*time.Second)

		// Security config
		instance.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
		instance.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
		instance.Security.AllowOrigin = getEnvString("ALLOW_ORIGIN", "")
		instance.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
