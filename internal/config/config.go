package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	DBUrl               string
	RedisURL            string
	JWTSecret           string
	AppEnv              string
	LogLevel            string
	PreferencesPath     string
	PushRelayURL        string
	PushWebhookSecret   string
	FCMURL              string
	FCMServerKey        string
	PushQueue           string
	PushConcurrency     int
	NotificationHistory int
	ListenMaxConns      int
	SupabaseURL         string
	SupabaseBucket      string
	SupabaseServiceKey  string

	// EnvFileLoaded reports whether a .env file was read. Logging is not
	// set up yet when the config loads, so callers log it afterwards.
	EnvFileLoaded bool
}

func LoadConfig() (*Config, error) {
	envFileLoaded := godotenv.Load() == nil

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DBUrl:               getEnv("DB_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		JWTSecret:           jwtSecret,
		AppEnv:              NormalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:            strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		PreferencesPath:     getEnv("PREFERENCES_PATH", "preferences.db"),
		PushRelayURL:        strings.TrimRight(getEnv("PUSH_RELAY_URL", ""), "/"),
		PushWebhookSecret:   getEnv("PUSH_WEBHOOK_SECRET", ""),
		FCMURL:              strings.TrimRight(getEnv("FCM_URL", "https://fcm.googleapis.com"), "/"),
		FCMServerKey:        getEnv("FCM_SERVER_KEY", ""),
		PushQueue:           getEnv("PUSH_QUEUE", "notifications"),
		PushConcurrency:     getEnvInt("PUSH_CONCURRENCY", 4),
		NotificationHistory: getEnvInt("NOTIFICATION_HISTORY", 100),
		ListenMaxConns:      getEnvInt("LISTEN_MAX_CONNS", 64),
		SupabaseURL:         getEnv("SUPABASE_URL", ""),
		SupabaseBucket:      getEnv("SUPABASE_BUCKET", ""),
		SupabaseServiceKey:  getEnv("SUPABASE_SERVICE_KEY", ""),
		EnvFileLoaded:       envFileLoaded,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// NormalizeEnv maps APP_ENV aliases such as "dev" or "prod" to their
// canonical names.
func NormalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// StorageEnabled reports whether original avatar uploads are archived.
func (c *Config) StorageEnabled() bool {
	return c != nil && c.SupabaseURL != "" && c.SupabaseBucket != "" && c.SupabaseServiceKey != ""
}

// PushEnabled reports whether outbound pushes can be sent to counterparts.
func (c *Config) PushEnabled() bool {
	return c != nil && c.FCMServerKey != "" && !getEnvBool("PUSH_DISABLED", false)
}
