package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/tkanos/gonfig"
)

// Config is the single application configuration, constructed once at startup
// and passed into every component.
type Config struct {
	AppEnv   string `json:"APP_ENV"`
	LogLevel string `json:"LOG_LEVEL"`

	TransactionsTable string `json:"TRANSACTIONS_TABLE"`
	VouchersTable     string `json:"VOUCHERS_TABLE"`
	WebhookLogsTable  string `json:"WEBHOOK_LOGS_TABLE"`
	PackagesTable     string `json:"PACKAGES_TABLE"`
	ProvisionQueueURL string `json:"PROVISION_QUEUE_URL"`

	RouterHost     string `json:"ROUTER_HOST"`
	RouterPort     int    `json:"ROUTER_PORT"`
	RouterUsername string `json:"ROUTER_USERNAME"`
	RouterPassword string `json:"ROUTER_PASSWORD"`
	RouterTimeout  int    `json:"ROUTER_TIMEOUT_SECONDS"`

	GatewayURL        string `json:"GATEWAY_URL"`
	GatewayAPIKey     string `json:"GATEWAY_API_KEY"`
	GatewayMerchantID string `json:"GATEWAY_MERCHANT_ID"`
	WebhookSecret     string `json:"GATEWAY_WEBHOOK_SECRET"`
	GatewayTimeout    int    `json:"GATEWAY_TIMEOUT_SECONDS"`
	CallbackURL       string `json:"GATEWAY_CALLBACK_URL"`
	ExpiryMinutes     int    `json:"PAYMENT_EXPIRY_MINUTES"`

	RedisAddr     string `json:"REDIS_ADDR"`
	RedisPassword string `json:"REDIS_PASSWORD"`

	RateLimitRequests int `json:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   int `json:"RATE_LIMIT_WINDOW_SECONDS"`

	UsernamePrefix      string `json:"VOUCHER_USERNAME_PREFIX"`
	PasswordLength      int    `json:"VOUCHER_PASSWORD_LENGTH"`
	TransactionIDPrefix string `json:"TRANSACTION_ID_PREFIX"`
}

// Load reads the configuration file, then lets environment variables override
// individual values. In local mode a .env file is loaded first, best-effort.
func Load(path string) (*Config, error) {
	if os.Getenv("RUN_LOCAL") == "true" {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if path != "" {
		if err := gonfig.GetConf(path, cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	overrideFromEnv(cfg)
	applyDefaults(cfg)

	if cfg.ExpiryMinutes <= 0 {
		return nil, fmt.Errorf("PAYMENT_EXPIRY_MINUTES must be positive, got %d", cfg.ExpiryMinutes)
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	setString(&cfg.AppEnv, "APP_ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.TransactionsTable, "TRANSACTIONS_TABLE")
	setString(&cfg.VouchersTable, "VOUCHERS_TABLE")
	setString(&cfg.WebhookLogsTable, "WEBHOOK_LOGS_TABLE")
	setString(&cfg.PackagesTable, "PACKAGES_TABLE")
	setString(&cfg.ProvisionQueueURL, "PROVISION_QUEUE_URL")
	setString(&cfg.RouterHost, "ROUTER_HOST")
	setInt(&cfg.RouterPort, "ROUTER_PORT")
	setString(&cfg.RouterUsername, "ROUTER_USERNAME")
	setString(&cfg.RouterPassword, "ROUTER_PASSWORD")
	setInt(&cfg.RouterTimeout, "ROUTER_TIMEOUT_SECONDS")
	setString(&cfg.GatewayURL, "GATEWAY_URL")
	setString(&cfg.GatewayAPIKey, "GATEWAY_API_KEY")
	setString(&cfg.GatewayMerchantID, "GATEWAY_MERCHANT_ID")
	setString(&cfg.WebhookSecret, "GATEWAY_WEBHOOK_SECRET")
	setInt(&cfg.GatewayTimeout, "GATEWAY_TIMEOUT_SECONDS")
	setString(&cfg.CallbackURL, "GATEWAY_CALLBACK_URL")
	setInt(&cfg.ExpiryMinutes, "PAYMENT_EXPIRY_MINUTES")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RateLimitRequests, "RATE_LIMIT_REQUESTS")
	setInt(&cfg.RateLimitWindow, "RATE_LIMIT_WINDOW_SECONDS")
	setString(&cfg.UsernamePrefix, "VOUCHER_USERNAME_PREFIX")
	setInt(&cfg.PasswordLength, "VOUCHER_PASSWORD_LENGTH")
	setString(&cfg.TransactionIDPrefix, "TRANSACTION_ID_PREFIX")
}

func applyDefaults(cfg *Config) {
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if cfg.RouterPort == 0 {
		cfg.RouterPort = 8728
	}
	if cfg.RouterTimeout == 0 {
		cfg.RouterTimeout = 10
	}
	if cfg.GatewayTimeout == 0 {
		cfg.GatewayTimeout = 30
	}
	if cfg.ExpiryMinutes == 0 {
		cfg.ExpiryMinutes = 30
	}
	if cfg.RateLimitRequests == 0 {
		cfg.RateLimitRequests = 10
	}
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = 60
	}
	if cfg.UsernamePrefix == "" {
		cfg.UsernamePrefix = "user"
	}
	if cfg.PasswordLength == 0 {
		cfg.PasswordLength = 8
	}
	if cfg.TransactionIDPrefix == "" {
		cfg.TransactionIDPrefix = "TRX"
	}
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
