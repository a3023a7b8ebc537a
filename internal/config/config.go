package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting of the API server and the maintenance CLI.
type Config struct {
	Port           string   `env:"PORT" envDefault:"3000"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:8081" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty      bool     `env:"LOG_PRETTY" envDefault:"false"`
	AdminAPIKey    string   `env:"ADMIN_API_KEY"`

	Database   Database   `envPrefix:"DB_"`
	Auth       Auth       `envPrefix:"AUTH_"`
	GenAI      GenAI      `envPrefix:"GENAI_"`
	Image      Image      `envPrefix:"IMAGE_"`
	Storage    Storage    `envPrefix:"STORAGE_"`
	Stripe     Stripe     `envPrefix:"STRIPE_"`
	Credits    Credits    `envPrefix:"CREDITS_"`
	Cache      Cache      `envPrefix:"CACHE_"`
	Generation Generation `envPrefix:"GENERATION_"`
	Jobs       Jobs       `envPrefix:"JOBS_"`
}

// Database contains connection parameters. DSN wins over the discrete fields when set.
type Database struct {
	DSN      string `env:"DSN"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"desserts"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type GenAI struct {
	APIKey            string  `env:"API_KEY"`
	Model             string  `env:"MODEL" envDefault:"gemini-1.5-flash"`
	Temperature       float32 `env:"TEMPERATURE" envDefault:"0.9"`
	RequestsPerMinute int     `env:"REQUESTS_PER_MINUTE" envDefault:"60"`
}

type Image struct {
	BaseURL string `env:"BASE_URL" envDefault:"https://api.openai.com"`
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL" envDefault:"dall-e-3"`
	Size    string `env:"SIZE" envDefault:"1024x1024"`
}

// Storage is an S3-compatible bucket for generated images. Uploads are disabled when Endpoint is empty.
type Storage struct {
	Endpoint      string `env:"ENDPOINT"`
	AccessKey     string `env:"ACCESS_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	Bucket        string `env:"BUCKET_NAME" envDefault:"dessert-images"`
	UseSSL        bool   `env:"USE_SSL" envDefault:"true"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
}

type Stripe struct {
	SecretKey      string `env:"SECRET_KEY"`
	PremiumPriceID string `env:"PREMIUM_PRICE_ID"`
	SuccessURL     string `env:"SUCCESS_URL" envDefault:"http://localhost:8081/checkout/success"`
	CancelURL      string `env:"CANCEL_URL" envDefault:"http://localhost:8081/checkout/cancel"`
}

// Credits is the allotment policy of the ledger.
type Credits struct {
	FreeAllotment     int `env:"FREE_ALLOTMENT" envDefault:"3"`
	PremiumAllotment  int `env:"PREMIUM_ALLOTMENT" envDefault:"100"`
	RenewalPeriodDays int `env:"RENEWAL_PERIOD_DAYS" envDefault:"30"`
}

// RenewalPeriod converts the day count to a duration.
func (c Credits) RenewalPeriod() time.Duration {
	return time.Duration(c.RenewalPeriodDays) * 24 * time.Hour
}

type Cache struct {
	MemoryCapacity int           `env:"MEMORY_CAPACITY" envDefault:"500"`
	MemoryTTL      time.Duration `env:"MEMORY_TTL" envDefault:"1h"`
	DefaultTTL     time.Duration `env:"DEFAULT_TTL" envDefault:"720h"`
}

type Generation struct {
	Timeout              time.Duration `env:"TIMEOUT" envDefault:"60s"`
	MaxIngredientsLength int           `env:"MAX_INGREDIENTS_LENGTH" envDefault:"500"`
	BlockedTerms         []string      `env:"BLOCKED_TERMS" envSeparator:","`
}

type Jobs struct {
	CacheSweepSpec      string        `env:"CACHE_SWEEP_SPEC" envDefault:"@every 1h"`
	UsagePruneSpec      string        `env:"USAGE_PRUNE_SPEC" envDefault:"@daily"`
	CreditRenewalSpec   string        `env:"CREDIT_RENEWAL_SPEC" envDefault:"@every 6h"`
	UsageRetention      time.Duration `env:"USAGE_RETENTION" envDefault:"2160h"`
	JobTimeout          time.Duration `env:"TIMEOUT" envDefault:"5m"`
	DisableScheduledJob bool          `env:"DISABLED" envDefault:"false"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Credits.FreeAllotment < 0 || cfg.Credits.PremiumAllotment < 0 {
		return nil, fmt.Errorf("credit allotments must not be negative")
	}
	if cfg.Cache.MemoryCapacity <= 0 {
		return nil, fmt.Errorf("cache memory capacity must be positive, got %d", cfg.Cache.MemoryCapacity)
	}

	return &cfg, nil
}
