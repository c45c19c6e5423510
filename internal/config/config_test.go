package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "LOG_LEVEL", "ROUTER_PORT", "ROUTER_HOST",
		"PAYMENT_EXPIRY_MINUTES", "VOUCHER_USERNAME_PREFIX",
		"TRANSACTION_ID_PREFIX", "RUN_LOCAL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RouterPort != 8728 {
		t.Fatalf("expected default router port 8728, got %d", cfg.RouterPort)
	}
	if cfg.ExpiryMinutes != 30 {
		t.Fatalf("expected default expiry 30, got %d", cfg.ExpiryMinutes)
	}
	if cfg.UsernamePrefix != "user" || cfg.TransactionIDPrefix != "TRX" {
		t.Fatalf("wrong identifier defaults: %q %q", cfg.UsernamePrefix, cfg.TransactionIDPrefix)
	}
	if cfg.RateLimitRequests != 10 || cfg.RateLimitWindow != 60 {
		t.Fatalf("wrong rate limit defaults: %d/%d", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.IsProduction() {
		t.Fatal("defaults must not be production")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("APP_ENV", "production")
	os.Setenv("ROUTER_HOST", "192.168.88.1")
	os.Setenv("ROUTER_PORT", "8729")
	os.Setenv("PAYMENT_EXPIRY_MINUTES", "15")
	defer clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RouterHost != "192.168.88.1" || cfg.RouterPort != 8729 {
		t.Fatalf("env override lost: %s:%d", cfg.RouterHost, cfg.RouterPort)
	}
	if cfg.ExpiryMinutes != 15 {
		t.Fatalf("expected expiry 15, got %d", cfg.ExpiryMinutes)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production mode")
	}
}

func TestLoad_InvalidExpiry(t *testing.T) {
	clearEnv(t)
	os.Setenv("PAYMENT_EXPIRY_MINUTES", "-5")
	defer clearEnv(t)

	if _, err := Load(""); err == nil {
		t.Fatal("negative expiry must be rejected")
	}
}
