package config

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go-ingenico/internal/payment"
	"go-ingenico/internal/payment/ingenico"
)

// Config holds the application configuration
type Config struct {
	ServerPort  int
	PublicURL   string
	DatabaseURL string
	JWTSecret   string
	LogLevel    string
	AuthEnabled bool
	AdminUser   string
	AdminPass   string
	CORSOrigins []string

	StoreCurrency string

	IngenicoEnabled     bool
	IngenicoAPIURL      string
	IngenicoMerchantID  string
	IngenicoAPIKeyID    string
	IngenicoAPISecret   string
	IngenicoTestMode    bool
	IngenicoDebug       bool
	IngenicoTitle       string
	IngenicoDescription string
	IngenicoCurrencies  []string
	IngenicoTimeout     time.Duration
	IngenicoLocale      string
	IngenicoCountry     string
	IngenicoVariant     string

	WebhookRate  float64 // requests per second per client
	WebhookBurst int

	KafkaBrokers []string
	KafkaTopic   string

	WAProviderURL           string
	WAApiKey                string
	FirebaseCredentialsFile string
	TelegramToken           string
	TelegramChatID          string
	SMTPHost                string
	SMTPPort                int
	SMTPUser                string
	SMTPPass                string
	SMTPFrom                string

	SweepInterval  time.Duration // 0 disables the pending order sweep
	StaleAfter     time.Duration
	AuditRetention time.Duration // 0 keeps the audit log forever
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		jwtSecret = generateRandomSecret(32)
		slog.Warn("JWT_SECRET not set, generated a random secret; sessions will not survive a restart")
	}

	return &Config{
		ServerPort:  getEnvAsInt("SERVER_PORT", 8080),
		PublicURL:   strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		DatabaseURL: getEnv("DATABASE_URL", "./data/ingenico.db"),
		JWTSecret:   jwtSecret,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AuthEnabled: getEnvAsBool("AUTH_ENABLED", true),
		AdminUser:   getEnv("ADMIN_USER", "admin"),
		AdminPass:   getEnv("ADMIN_PASS", "admin123"),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),

		StoreCurrency: strings.ToUpper(getEnv("STORE_CURRENCY", "EUR")),

		IngenicoEnabled:     getEnvAsBool("INGENICO_ENABLED", true),
		IngenicoAPIURL:      getEnv("INGENICO_API_URL", ingenico.DefaultEndpoint),
		IngenicoMerchantID:  getEnv("INGENICO_MERCHANT_ID", ""),
		IngenicoAPIKeyID:    getEnv("INGENICO_API_KEY_ID", ""),
		IngenicoAPISecret:   getEnv("INGENICO_API_SECRET", ""),
		IngenicoTestMode:    getEnvAsBool("INGENICO_TESTMODE", true),
		IngenicoDebug:       getEnvAsBool("INGENICO_DEBUG", false),
		IngenicoTitle:       getEnv("INGENICO_TITLE", "Credit card (Ingenico)"),
		IngenicoDescription: getEnv("INGENICO_DESCRIPTION", "Pay securely with your credit card via Ingenico."),
		IngenicoCurrencies:  getEnvAsList("INGENICO_CURRENCIES", payment.DefaultSupportedCurrencies),
		IngenicoTimeout:     getEnvAsDuration("INGENICO_TIMEOUT", ingenico.DefaultTimeout),
		IngenicoLocale:      getEnv("INGENICO_LOCALE", "en_GB"),
		IngenicoCountry:     getEnv("INGENICO_COUNTRY", ""),
		IngenicoVariant:     getEnv("INGENICO_VARIANT", ""),

		WebhookRate:  getEnvAsFloat("WEBHOOK_RATE", 5),
		WebhookBurst: getEnvAsInt("WEBHOOK_BURST", 20),

		KafkaBrokers: getEnvAsList("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "payment-events"),

		WAProviderURL:           getEnv("WA_PROVIDER_URL", "https://api.fonnte.com/send"),
		WAApiKey:                getEnv("WA_API_KEY", ""),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		TelegramToken:           getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID:          getEnv("TELEGRAM_CHAT_ID", ""),
		SMTPHost:                getEnv("SMTP_HOST", ""),
		SMTPPort:                getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:                getEnv("SMTP_USER", ""),
		SMTPPass:                getEnv("SMTP_PASS", ""),
		SMTPFrom:                getEnv("SMTP_FROM", "shop@localhost"),

		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", 0),
		StaleAfter:     getEnvAsDuration("STALE_AFTER", 15*time.Minute),
		AuditRetention: getEnvAsDuration("AUDIT_RETENTION", 0),
	}
}

// Settings keys stored in the database. They override the environment.
const (
	SettingAPIURL      = "ingenico_api_url"
	SettingMerchantID  = "ingenico_merchant_id"
	SettingAPIKeyID    = "ingenico_api_key_id"
	SettingAPISecret   = "ingenico_api_secret"
	SettingTestMode    = "ingenico_testmode"
	SettingDebug       = "ingenico_debug"
	SettingEnabled     = "ingenico_enabled"
	SettingTitle       = "ingenico_title"
	SettingDescription = "ingenico_description"
	SettingVariant     = "ingenico_variant"
	SettingCurrency    = "store_currency"
)

// SettingKeys lists every key ApplySettings understands.
var SettingKeys = []string{
	SettingAPIURL, SettingMerchantID, SettingAPIKeyID, SettingAPISecret,
	SettingTestMode, SettingDebug, SettingEnabled, SettingTitle,
	SettingDescription, SettingVariant, SettingCurrency,
}

// SecretSettings are never returned by the settings API.
var SecretSettings = map[string]bool{
	SettingAPISecret: true,
}

// ApplySettings overlays non-empty database settings on top of the
// environment. Unknown keys are ignored.
func (c *Config) ApplySettings(settings map[string]string) {
	for key, value := range settings {
		if value == "" {
			continue
		}
		switch key {
		case SettingAPIURL:
			c.IngenicoAPIURL = value
		case SettingMerchantID:
			c.IngenicoMerchantID = value
		case SettingAPIKeyID:
			c.IngenicoAPIKeyID = value
		case SettingAPISecret:
			c.IngenicoAPISecret = value
		case SettingTestMode:
			c.IngenicoTestMode = parseBool(value, c.IngenicoTestMode)
		case SettingDebug:
			c.IngenicoDebug = parseBool(value, c.IngenicoDebug)
		case SettingEnabled:
			c.IngenicoEnabled = parseBool(value, c.IngenicoEnabled)
		case SettingTitle:
			c.IngenicoTitle = value
		case SettingDescription:
			c.IngenicoDescription = value
		case SettingVariant:
			c.IngenicoVariant = value
		case SettingCurrency:
			c.StoreCurrency = strings.ToUpper(value)
		}
	}
}

// Ingenico returns the processor client configuration.
func (c *Config) Ingenico() ingenico.Config {
	return ingenico.Config{
		Endpoint:    c.IngenicoAPIURL,
		MerchantID:  c.IngenicoMerchantID,
		APIKeyID:    c.IngenicoAPIKeyID,
		APISecret:   c.IngenicoAPISecret,
		TestMode:    c.IngenicoTestMode,
		Debug:       c.IngenicoDebug,
		Timeout:     c.IngenicoTimeout,
		Locale:      c.IngenicoLocale,
		CountryCode: c.IngenicoCountry,
		Variant:     c.IngenicoVariant,
	}
}

// Payment returns the store-side gateway configuration.
func (c *Config) Payment() payment.Config {
	return payment.Config{
		Enabled:             c.IngenicoEnabled,
		TestMode:            c.IngenicoTestMode,
		StoreCurrency:       c.StoreCurrency,
		SupportedCurrencies: c.IngenicoCurrencies,
		ReturnURL:           c.PublicURL + "/checkout/return",
		Title:               c.IngenicoTitle,
		Description:         c.IngenicoDescription,
	}
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// generateRandomSecret generates a cryptographically secure random string
func generateRandomSecret(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-secret-%d", time.Now().UnixNano())
	}
	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b)
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		return parseBool(value, defaultValue)
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	switch value {
	case "1", "t", "T", "true", "TRUE", "True", "yes", "YES":
		return true
	case "0", "f", "F", "false", "FALSE", "False", "no", "NO":
		return false
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
