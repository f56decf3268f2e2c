package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	SessionSecret       string
	DatabaseURL         string
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	CookieDomain        string
	HealthAdminKey      string

	// LedgerURL selects the HTTP ledger gateway; empty means the in-process ledger.
	LedgerURL               string
	LedgerAPIKey            string
	LedgerTimeout           time.Duration
	LedgerRatePerSec        float64
	LedgerReconcileSchedule string
	LedgerReconcileBatch    int
	// DistributeMaxAttempts caps how often one pending distribution is claimed.
	DistributeMaxAttempts   int
}

// IsProduction reports whether Env is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LEDGER_TIMEOUT", 30*time.Second)
	viper.SetDefault("LEDGER_RATE_PER_SEC", 5)
	viper.SetDefault("LEDGER_RECONCILE_SCHEDULE", "@every 5m")
	viper.SetDefault("LEDGER_RECONCILE_BATCH", 50)
	viper.SetDefault("DISTRIBUTE_MAX_ATTEMPTS", 5)

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	timeout := viper.GetDuration("LEDGER_TIMEOUT")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Config{
		Env:                     env,
		Port:                    viper.GetString("PORT"),
		LogLevel:                viper.GetString("LOG_LEVEL"),
		SessionSecret:           viper.GetString("SESSION_SECRET"),
		DatabaseURL:             dbURL,
		RedisURL:                viper.GetString("REDIS_URL"),
		FrontendURLEndsWith:     viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:             viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:       strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		CookieDomain:            viper.GetString("COOKIE_DOMAIN"),
		HealthAdminKey:          viper.GetString("HEALTH_ADMIN_KEY"),
		LedgerURL:               strings.TrimRight(viper.GetString("LEDGER_URL"), "/"),
		LedgerAPIKey:            viper.GetString("LEDGER_API_KEY"),
		LedgerTimeout:           timeout,
		LedgerRatePerSec:        viper.GetFloat64("LEDGER_RATE_PER_SEC"),
		LedgerReconcileSchedule: viper.GetString("LEDGER_RECONCILE_SCHEDULE"),
		LedgerReconcileBatch:    viper.GetInt("LEDGER_RECONCILE_BATCH"),
		DistributeMaxAttempts:   viper.GetInt("DISTRIBUTE_MAX_ATTEMPTS"),
	}, nil
}
