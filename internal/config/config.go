package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	StoreBackend            string `mapstructure:"STORE_BACKEND"`
	FirebaseProjectID       string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	DBMaxConns              int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns              int32  `mapstructure:"DB_MIN_CONNS"`

	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel  string `mapstructure:"GEMINI_MODEL"`

	RetellAPIKey        string `mapstructure:"RETELL_API_KEY"`
	RetellAgentID       string `mapstructure:"RETELL_AGENT_ID"`
	RetellBaseURL       string `mapstructure:"RETELL_BASE_URL"`
	RetellWebhookSecret string `mapstructure:"RETELL_WEBHOOK_SECRET"`

	UploadBackend   string `mapstructure:"UPLOAD_BACKEND"`
	MinioEndpoint   string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey  string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey  string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket     string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL     bool   `mapstructure:"MINIO_USE_SSL"`
	OCRMaxDimension int    `mapstructure:"OCR_MAX_DIMENSION"`

	ReportsToKeep          int `mapstructure:"REPORTS_TO_KEEP"`
	RetentionSweepMinutes  int `mapstructure:"RETENTION_SWEEP_INTERVAL"`
	EscalationGuardSeconds int `mapstructure:"ESCALATION_GUARD_WINDOW"`

	AuthMode string `mapstructure:"AUTH_MODE"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	SentryDSN         string `mapstructure:"SENTRY_DSN"`
	SentryEnvironment string `mapstructure:"SENTRY_ENVIRONMENT"`
}

var keys = []string{
	"PORT", "ENV",
	"STORE_BACKEND", "FIREBASE_PROJECT_ID", "FIREBASE_CREDENTIALS_FILE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"GEMINI_API_KEY", "GEMINI_MODEL",
	"RETELL_API_KEY", "RETELL_AGENT_ID", "RETELL_BASE_URL", "RETELL_WEBHOOK_SECRET",
	"UPLOAD_BACKEND", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
	"MINIO_BUCKET", "MINIO_USE_SSL", "OCR_MAX_DIMENSION",
	"REPORTS_TO_KEEP", "RETENTION_SWEEP_INTERVAL", "ESCALATION_GUARD_WINDOW",
	"AUTH_MODE",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"SENTRY_DSN", "SENTRY_ENVIRONMENT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", "memory")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("RETELL_BASE_URL", "https://api.retellai.com")
	v.SetDefault("UPLOAD_BACKEND", "memory")
	v.SetDefault("MINIO_BUCKET", "rxcheck-uploads")
	v.SetDefault("OCR_MAX_DIMENSION", 2048)
	v.SetDefault("REPORTS_TO_KEEP", 50)
	v.SetDefault("RETENTION_SWEEP_INTERVAL", 0)
	v.SetDefault("ESCALATION_GUARD_WINDOW", 0)
	v.SetDefault("AUTH_MODE", "none")
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("BODY_LIMIT", "12M")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil || (len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",")) {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() && cfg.AuthMode == "none" {
		log.Println("WARNING: AUTH_MODE=none; request user ids are trusted as sent.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks backend selections and the settings each one requires.
// Missing external-service keys (Gemini, Retell) are deliberately not checked
// here: the operation that needs them fails with a configuration error instead.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "memory":
	case "firestore":
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when STORE_BACKEND is \"firestore\"")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is \"postgres\"")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be \"memory\", \"firestore\", or \"postgres\", got %q", c.StoreBackend)
	}

	switch c.UploadBackend {
	case "memory":
	case "minio":
		if c.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when UPLOAD_BACKEND is \"minio\"")
		}
	default:
		return fmt.Errorf("UPLOAD_BACKEND must be \"memory\" or \"minio\", got %q", c.UploadBackend)
	}

	switch c.AuthMode {
	case "none":
	case "firebase":
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when AUTH_MODE is \"firebase\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"none\" or \"firebase\", got %q", c.AuthMode)
	}

	if c.IsProduction() && c.AuthMode == "none" {
		return fmt.Errorf("AUTH_MODE=none is not allowed in production")
	}

	if c.ReportsToKeep <= 0 {
		return fmt.Errorf("REPORTS_TO_KEEP must be positive, got %d", c.ReportsToKeep)
	}

	return nil
}

// RetentionSweepInterval returns the periodic sweep interval, zero when disabled.
func (c *Config) RetentionSweepInterval() time.Duration {
	return time.Duration(c.RetentionSweepMinutes) * time.Minute
}

// EscalationGuardWindow returns the per-user escalation dedup window, zero when disabled.
func (c *Config) EscalationGuardWindow() time.Duration {
	return time.Duration(c.EscalationGuardSeconds) * time.Second
}
