package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Stripe    StripeConfig
	Billing   BillingConfig
	Email     EmailConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	App       AppConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Prices        StripePrices
}

// StripePrices maps each paid tier to its Stripe price ids. The FREE tier has
// no price and never reaches Stripe.
type StripePrices struct {
	StarterMonthly      string
	StarterYearly       string
	ProfessionalMonthly string
	ProfessionalYearly  string
	EnterpriseMonthly   string
	EnterpriseYearly    string
}

// BillingConfig holds the dunning policy. Deployment knobs, not business
// constants.
type BillingConfig struct {
	GracePeriodDays      int
	CriticalFailureCount int
	GraceWarningDays     int
	EventDedupTTL        time.Duration
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
}

type StorageConfig struct {
	AccessKey  string
	SecretKey  string
	AccountID  string
	Bucket     string
	CDNBaseURL string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type AppConfig struct {
	BaseURL    string
	UpgradeURL string
}

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "tightship-dev-secret"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Prices: StripePrices{
				StarterMonthly:      os.Getenv("STRIPE_PRICE_STARTER_MONTHLY"),
				StarterYearly:       os.Getenv("STRIPE_PRICE_STARTER_YEARLY"),
				ProfessionalMonthly: os.Getenv("STRIPE_PRICE_PROFESSIONAL_MONTHLY"),
				ProfessionalYearly:  os.Getenv("STRIPE_PRICE_PROFESSIONAL_YEARLY"),
				EnterpriseMonthly:   os.Getenv("STRIPE_PRICE_ENTERPRISE_MONTHLY"),
				EnterpriseYearly:    os.Getenv("STRIPE_PRICE_ENTERPRISE_YEARLY"),
			},
		},
		Billing: BillingConfig{
			GracePeriodDays:      getEnvInt("BILLING_GRACE_PERIOD_DAYS", 14),
			CriticalFailureCount: getEnvInt("BILLING_CRITICAL_FAILURES", 2),
			GraceWarningDays:     getEnvInt("BILLING_GRACE_WARNING_DAYS", 3),
			EventDedupTTL:        getEnvDuration("BILLING_EVENT_DEDUP_TTL", 72*time.Hour),
		},
		Email: EmailConfig{
			ResendAPIKey: os.Getenv("RESEND_API_KEY"),
			From:         getEnv("EMAIL_FROM", "Tightship <noreply@tightship.app>"),
		},
		Storage: StorageConfig{
			AccessKey:  os.Getenv("R2_ACCESS_KEY"),
			SecretKey:  os.Getenv("R2_SECRET_KEY"),
			AccountID:  os.Getenv("R2_ACCOUNT_ID"),
			Bucket:     getEnv("R2_BUCKET_NAME", "tightship-photos"),
			CDNBaseURL: getEnv("CDN_BASE_URL", "https://cdn.tightship.app"),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("PUBLIC_API_RATE_LIMIT", 60),
			Window:   getEnvDuration("PUBLIC_API_RATE_WINDOW", time.Minute),
		},
		App: AppConfig{
			BaseURL:    getEnv("APP_BASE_URL", "https://app.tightship.app"),
			UpgradeURL: getEnv("UPGRADE_URL", "https://app.tightship.app/settings/billing"),
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
