package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Inbound message coalescing
	BufferTimeout time.Duration

	// Persistence
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Decision / formatting LLM
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	DecisionModel        string
	FormatterModel       string
	DecisionMaxTokens    int
	DecisionTemperature  float64
	FormatterMaxTokens   int
	FormatterTemperature float64

	// Outbound messaging provider
	MessagingProvider string
	MessagingAPIKey   string
	MessagingBaseURL  string

	// Booking platform API ("memory" serves a built-in demo catalog)
	PlatformBaseURL string
	PlatformAPIKey  string

	// Admin surface
	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// Webhook rate limiting, requests per second per IP
	WebhookRateLimit float64
	WebhookBurst     int

	// Availability search
	AvailabilityMaxAttempts int

	// Appointment reminders
	RemindersEnabled    bool
	ReminderTenants     []string
	ReminderLeadDays    int
	ReminderSendHour    int
	ReminderTimezone    string
	ReminderTemplateID  string
	ReminderPollMinWait time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		BufferTimeout: getEnvAsDuration("BUFFER_TIMEOUT", 8*time.Second),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		DecisionModel:        getEnv("DECISION_MODEL", "gpt-4o-mini"),
		FormatterModel:       getEnv("FORMATTER_MODEL", "gpt-4o-mini"),
		DecisionMaxTokens:    getEnvAsInt("DECISION_MAX_TOKENS", 400),
		DecisionTemperature:  getEnvAsFloat("DECISION_TEMPERATURE", 0),
		FormatterMaxTokens:   getEnvAsInt("FORMATTER_MAX_TOKENS", 600),
		FormatterTemperature: getEnvAsFloat("FORMATTER_TEMPERATURE", 0.4),

		MessagingProvider: strings.ToLower(strings.TrimSpace(getEnv("MESSAGING_PROVIDER", "log"))),
		MessagingAPIKey:   getEnv("MESSAGING_API_KEY", ""),
		MessagingBaseURL:  getEnv("MESSAGING_BASE_URL", ""),

		PlatformBaseURL: getEnv("PLATFORM_BASE_URL", ""),
		PlatformAPIKey:  getEnv("PLATFORM_API_KEY", ""),

		AdminAuthSecret:    getEnv("ADMIN_AUTH_SECRET", ""),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),

		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 10),
		WebhookBurst:     getEnvAsInt("WEBHOOK_BURST", 30),

		AvailabilityMaxAttempts: getEnvAsInt("AVAILABILITY_MAX_ATTEMPTS", 7),

		RemindersEnabled:    getEnvAsBool("REMINDERS_ENABLED", false),
		ReminderTenants:     getEnvAsSlice("REMINDER_TENANTS"),
		ReminderLeadDays:    getEnvAsInt("REMINDER_LEAD_DAYS", 1),
		ReminderSendHour:    getEnvAsInt("REMINDER_SEND_HOUR", 9),
		ReminderTimezone:    getEnv("REMINDER_TZ", "UTC"),
		ReminderTemplateID:  getEnv("REMINDER_TEMPLATE_ID", ""),
		ReminderPollMinWait: getEnvAsDuration("REMINDER_POLL_MIN_WAIT", time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsSlice splits a comma-separated environment variable, dropping
// empty entries.
func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
