package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMySQL = "mysql"
	BackendRedis = "redis"
)

// Config aggregates runtime configuration for the API, the admin panel and
// supporting services.
type Config struct {
	MySQLDSN        string
	APIListenAddr   string
	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string
	LogLevel        string
	JWTSecret       string
	SessionTTL      time.Duration

	DocstoreBackend    string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ProfilesCollection string

	SignupBonusPoints   int
	ThrottleWindow      time.Duration
	ThrottleMaxAttempts int
	TokenMaxAttempts    int

	PaymentProvider    string
	PaymentKeyID       string
	PaymentCurrency    string
	WebhookEndpointURL string

	BotToken string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// ReceiptsEnabled reports whether payment receipts are archived to S3.
func (c Config) ReceiptsEnabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIListenAddr:       getEnv("API_LISTEN_ADDR", ":8080"),
		AdminListenAddr:     getEnv("ADMIN_LISTEN_ADDR", ":8081"),
		AdminUsername:       getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:       getEnv("ADMIN_PASSWORD", "change-me"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		SessionTTL:          time.Minute * time.Duration(getInt("SESSION_TTL_MINUTES", 720)),
		DocstoreBackend:     strings.ToLower(getEnv("DOCSTORE_BACKEND", BackendMySQL)),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getInt("REDIS_DB", 0),
		ProfilesCollection:  getEnv("PROFILES_COLLECTION", "profiles"),
		SignupBonusPoints:   getInt("SIGNUP_BONUS_POINTS", 20),
		ThrottleWindow:      time.Second * time.Duration(getInt("THROTTLE_WINDOW_SECONDS", 60)),
		ThrottleMaxAttempts: getInt("THROTTLE_MAX_ATTEMPTS", 10),
		TokenMaxAttempts:    getInt("TOKEN_MAX_ATTEMPTS", 8),
		PaymentProvider:     strings.ToLower(getEnv("PAYMENT_PROVIDER", "razorpay")),
		PaymentKeyID:        os.Getenv("PAYMENT_KEY_ID"),
		PaymentCurrency:     strings.ToUpper(getEnv("PAYMENT_CURRENCY", "INR")),
		WebhookEndpointURL:  getEnv("WEBHOOK_ENDPOINT_URL", "https://hooks.example.com/webhook"),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3Region:            os.Getenv("S3_REGION"),
		S3AccessKey:         os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("S3_SECRET_KEY"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:     os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:      getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:            getEnv("S3_PREFIX", "receipts"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	switch cfg.DocstoreBackend {
	case BackendMySQL:
	case BackendRedis:
		if cfg.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	default:
		return Config{}, fmt.Errorf("unsupported DOCSTORE_BACKEND %q", cfg.DocstoreBackend)
	}
	if cfg.S3Bucket != "" {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile loads the first env file found. Running without one is fine;
// the process environment is used as is.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
