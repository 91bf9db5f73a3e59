package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	AppMode       string
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	DBSSLMode     string
	// "postgres" (default) or "memory" for local runs without a database.
	StagingStore  string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Shared with the relay: signs upload tokens and verifies receipts.
	SigningSecret string
	TokenIssuer   string
	RelayIssuer   string

	RelayURL          string
	RelaySharedSecret string
	RelayTimeout      time.Duration
	RelayRetries      int
	// "relay" (default) or "s3"
	RelayDeleteBackend string

	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
	S3KeyPrefix string

	RecaptchaSecret  string
	RecaptchaBypass  bool
	RecaptchaTimeout time.Duration

	CleanupSecret      string
	CleanupInterval    time.Duration
	CleanupConcurrency int
	CleanupBatchSize   int

	IssueRateLimit  int
	IssueRateWindow time.Duration

	CORSAllowedOrigins []string

	Upload UploadConfig
}

// UploadConfig is the file and lifetime policy for staged uploads.
type UploadConfig struct {
	MaxFiles           int
	MaxFileBytes       int64
	AllowedMIME        []string
	TokenTTL           time.Duration
	StagingTTL         time.Duration
	StaleRetention     time.Duration
	FinalizedRetention time.Duration
}

var DefaultAllowedMIME = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/tiff",
}

const ReleaseMode = "release"

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	mode := getEnv("APP_MODE", "debug")

	return &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		AppMode:       mode,
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "literary_archive"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		StagingStore:  getEnv("STAGING_STORE", "postgres"),
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		SigningSecret: getEnv("UPLOAD_SIGNING_SECRET", ""),
		TokenIssuer:   getEnv("UPLOAD_TOKEN_ISSUER", "archive-backend"),
		RelayIssuer:   getEnv("RELAY_ISSUER", "archive-relay"),

		RelayURL:           getEnv("RELAY_URL", ""),
		RelaySharedSecret:  getEnv("RELAY_SHARED_SECRET", ""),
		RelayTimeout:       getEnvAsDuration("RELAY_TIMEOUT", 10*time.Second),
		RelayRetries:       getEnvAsInt("RELAY_RETRIES", 2),
		RelayDeleteBackend: getEnv("RELAY_DELETE_BACKEND", "relay"),

		S3Region:    getEnv("S3_REGION", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3KeyPrefix: getEnv("S3_KEY_PREFIX", "staging"),

		RecaptchaSecret:  getEnv("RECAPTCHA_SECRET", ""),
		RecaptchaBypass:  getEnvAsBool("RECAPTCHA_BYPASS", false) || mode != ReleaseMode,
		RecaptchaTimeout: getEnvAsDuration("RECAPTCHA_TIMEOUT", 5*time.Second),

		CleanupSecret:      getEnv("CLEANUP_SECRET", ""),
		CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 0),
		CleanupConcurrency: getEnvAsInt("CLEANUP_CONCURRENCY", 4),
		CleanupBatchSize:   getEnvAsInt("CLEANUP_BATCH_SIZE", 500),

		IssueRateLimit:  getEnvAsInt("ISSUE_RATE_LIMIT", 20),
		IssueRateWindow: getEnvAsDuration("ISSUE_RATE_WINDOW", time.Minute),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),

		Upload: UploadConfig{
			MaxFiles:           getEnvAsInt("UPLOAD_MAX_FILES", 10),
			MaxFileBytes:       int64(getEnvAsInt("UPLOAD_MAX_FILE_BYTES", 20*1024*1024)),
			AllowedMIME:        getEnvAsList("UPLOAD_ALLOWED_MIME", DefaultAllowedMIME),
			TokenTTL:           getEnvAsDuration("UPLOAD_TOKEN_TTL", 10*time.Minute),
			StagingTTL:         getEnvAsDuration("UPLOAD_STAGING_TTL", 24*time.Hour),
			StaleRetention:     getEnvAsDuration("UPLOAD_STALE_RETENTION", 24*time.Hour),
			FinalizedRetention: getEnvAsDuration("UPLOAD_FINALIZED_RETENTION", 7*24*time.Hour),
		},
	}
}

// Validate fails fast on missing secrets and inconsistent lifetimes. There is
// no insecure fallback for any of them.
func (c *Config) Validate() error {
	var errs []error
	if c.SigningSecret == "" {
		errs = append(errs, errors.New("UPLOAD_SIGNING_SECRET is required"))
	}
	if c.CleanupSecret == "" {
		errs = append(errs, errors.New("CLEANUP_SECRET is required"))
	}
	if c.CleanupSecret != "" && c.CleanupSecret == c.SigningSecret {
		errs = append(errs, errors.New("CLEANUP_SECRET must differ from UPLOAD_SIGNING_SECRET"))
	}
	if !c.RecaptchaBypass && c.RecaptchaSecret == "" {
		errs = append(errs, errors.New("RECAPTCHA_SECRET is required in release mode"))
	}
	if c.StagingStore != "postgres" && c.StagingStore != "memory" {
		errs = append(errs, fmt.Errorf("unknown STAGING_STORE %q", c.StagingStore))
	}
	if c.StagingStore == "memory" && c.AppMode == ReleaseMode {
		errs = append(errs, errors.New("STAGING_STORE=memory is not allowed in release mode"))
	}
	switch c.RelayDeleteBackend {
	case "relay":
		if c.RelayURL == "" || c.RelaySharedSecret == "" {
			errs = append(errs, errors.New("RELAY_URL and RELAY_SHARED_SECRET are required"))
		}
	case "s3":
		if c.S3Region == "" || c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_REGION and S3_BUCKET are required for the s3 delete backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RELAY_DELETE_BACKEND %q", c.RelayDeleteBackend))
	}
	if c.Upload.MaxFiles < 1 || c.Upload.MaxFileBytes < 1 || len(c.Upload.AllowedMIME) == 0 {
		errs = append(errs, errors.New("upload policy limits must be positive"))
	}
	if c.Upload.TokenTTL >= c.Upload.StagingTTL {
		errs = append(errs, errors.New("UPLOAD_TOKEN_TTL must be shorter than UPLOAD_STAGING_TTL"))
	}
	if c.CleanupConcurrency < 1 {
		errs = append(errs, errors.New("CLEANUP_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}

func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
