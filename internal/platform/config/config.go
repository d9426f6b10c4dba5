package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	ACHModeLive = "live"
	ACHModeTest = "test"
)

type Config struct {
	Addr              string `env:"APP_ADDR" envDefault:":8080"`
	DatabaseURL       string `env:"DATABASE_URL"`
	JWTSecret         string `env:"JWT_SECRET"`
	DataEncryptionKey string `env:"DATA_ENCRYPTION_KEY"`
	Environment       string `env:"APP_ENV" envDefault:"development"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string `env:"LOG_FORMAT" envDefault:"json"`

	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`
	RunSeed       bool `env:"RUN_SEED" envDefault:"false"`

	MaxBodyBytes       int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	RateLimitPerMinute int   `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	MetricsEnabled     bool  `env:"METRICS_ENABLED" envDefault:"true"`

	EmailEnabled  bool   `env:"EMAIL_ENABLED" envDefault:"false"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"no-reply@example.com"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	SMTPUseTLS    bool   `env:"SMTP_USE_TLS" envDefault:"true"`
	OpsAlertEmail string `env:"OPS_ALERT_EMAIL"`

	JobsInline      bool          `env:"JOBS_INLINE" envDefault:"true"`
	JobWorkers      int           `env:"JOB_WORKERS" envDefault:"2"`
	JobPollInterval time.Duration `env:"JOB_POLL_INTERVAL" envDefault:"2s"`
	JobMaxAttempts  int           `env:"JOB_MAX_ATTEMPTS" envDefault:"5"`
	JobStaleAfter   time.Duration `env:"JOB_STALE_AFTER" envDefault:"10m"`
	JobBackoffBase  time.Duration `env:"JOB_BACKOFF_BASE" envDefault:"1s"`
	JobBackoffMax   time.Duration `env:"JOB_BACKOFF_MAX" envDefault:"5m"`
	TaxJobTimeout   time.Duration `env:"TAX_JOB_TIMEOUT" envDefault:"2m"`

	TestSeedEnabled bool   `env:"PAYROLL_TEST_SEED_ENABLED" envDefault:"false"`
	ACHDefaultMode  string `env:"ACH_DEFAULT_MODE" envDefault:"live"`
}

// Load reads .env files when present and then parses the process environment.
func Load() (Config, error) {
	var files []string
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			files = append(files, name)
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// TestSeedAllowed reports whether the record seeding endpoint may be mounted.
func (c Config) TestSeedAllowed() bool {
	return c.TestSeedEnabled && !c.IsProduction()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.TestSeedEnabled {
			return fmt.Errorf("PAYROLL_TEST_SEED_ENABLED must be false in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.JobWorkers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be positive")
	}
	if c.JobMaxAttempts <= 0 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be positive")
	}
	if c.TaxJobTimeout <= 0 {
		return fmt.Errorf("TAX_JOB_TIMEOUT must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	switch c.ACHDefaultMode {
	case ACHModeLive, ACHModeTest:
	default:
		return fmt.Errorf("ACH_DEFAULT_MODE must be %q or %q", ACHModeLive, ACHModeTest)
	}
	return nil
}
