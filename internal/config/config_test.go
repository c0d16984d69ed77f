package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.APIURL != "https://api.bitget.com" {
		t.Errorf("expected default api url, got %s", cfg.APIURL)
	}
	if !cfg.TrailingOffset.Equal(decimal.RequireFromString("0.0075")) {
		t.Errorf("expected trailing offset 0.0075, got %s", cfg.TrailingOffset)
	}
	if cfg.OrderPollInterval != time.Second || cfg.OrderPollTimeout != 10*time.Second {
		t.Errorf("expected 1s/10s poll, got %v/%v", cfg.OrderPollInterval, cfg.OrderPollTimeout)
	}
	if cfg.MACDCooldown != time.Hour {
		t.Errorf("expected 1h cooldown, got %v", cfg.MACDCooldown)
	}
	if cfg.StopLossMode != StopLossModePlan {
		t.Errorf("expected plan stop loss mode, got %s", cfg.StopLossMode)
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("DRY_RUN", "false")
	t.Setenv("API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when credentials are missing")
	}
}

func TestLoadInvalidChatID(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid TELEGRAM_CHAT_ID")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DryRun:            true,
			TrailingOffset:    decimal.NewFromFloat(0.01),
			StopLossOffset:    decimal.NewFromFloat(0.01),
			StopLossMode:      StopLossModePlan,
			MACDFast:          12,
			MACDSlow:          26,
			MACDSignal:        9,
			OrderPollInterval: time.Second,
			OrderPollTimeout:  10 * time.Second,
			StateBackend:      StateBackendGorm,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero trailing offset", func(c *Config) { c.TrailingOffset = decimal.Zero }, true},
		{"stop loss offset of one", func(c *Config) { c.StopLossOffset = decimal.NewFromInt(1) }, true},
		{"unknown stop loss mode", func(c *Config) { c.StopLossMode = "oco" }, true},
		{"fast not below slow", func(c *Config) { c.MACDFast = 26 }, true},
		{"poll timeout below interval", func(c *Config) { c.OrderPollTimeout = time.Millisecond }, true},
		{"gcs without bucket", func(c *Config) { c.StateBackend = StateBackendGCS }, true},
		{"gcs with bucket", func(c *Config) { c.StateBackend = StateBackendGCS; c.GCSBucket = "state" }, false},
		{"live without credentials", func(c *Config) { c.DryRun = false }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
