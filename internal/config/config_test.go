package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTPAddr != ":8081" {
		t.Fatalf("unexpected http addr: %s", cfg.App.HTTPAddr)
	}
	if cfg.App.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.App.TokenTTL)
	}
	if cfg.App.OTPTTL != 10*time.Minute {
		t.Fatalf("unexpected otp ttl: %v", cfg.App.OTPTTL)
	}
	if cfg.App.ResendCooldown != 60*time.Second {
		t.Fatalf("unexpected resend cooldown: %v", cfg.App.ResendCooldown)
	}
	if cfg.Security.JWTSecret == "" {
		t.Fatalf("jwt secret should have a default")
	}
}

func TestLoadParsesDurationStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "app": {
    "http_addr": ":9090",
    "token_ttl": "1h",
    "otp_ttl": "5m",
    "resend_cooldown": "30s"
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTPAddr != ":9090" {
		t.Fatalf("unexpected http addr: %s", cfg.App.HTTPAddr)
	}
	if cfg.App.TokenTTL != time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.App.TokenTTL)
	}
	if cfg.App.OTPTTL != 5*time.Minute {
		t.Fatalf("unexpected otp ttl: %v", cfg.App.OTPTTL)
	}
	if cfg.App.ResendCooldown != 30*time.Second {
		t.Fatalf("unexpected resend cooldown: %v", cfg.App.ResendCooldown)
	}
	// 文件里没写的字段仍然取默认
	if cfg.MySQL.DSN == "" {
		t.Fatalf("mysql dsn default should apply")
	}
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("APP_HTTP_ADDR", ":7777")
	t.Setenv("APP_OTP_TTL", "2m")
	t.Setenv("JWT_SECRET", "env_secret")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTPAddr != ":7777" {
		t.Fatalf("env should override http addr, got %s", cfg.App.HTTPAddr)
	}
	if cfg.App.OTPTTL != 2*time.Minute {
		t.Fatalf("env should override otp ttl, got %v", cfg.App.OTPTTL)
	}
	if cfg.Security.JWTSecret != "env_secret" {
		t.Fatalf("env should override jwt secret, got %s", cfg.Security.JWTSecret)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("env should override redis addr, got %s", cfg.Redis.Addr)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := getDefaultConfig()
	cfg.App.HTTPAddr = ":9999"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.App.HTTPAddr != ":9999" {
		t.Fatalf("unexpected http addr: %s", loaded.App.HTTPAddr)
	}
	if loaded.App.TokenTTL != cfg.App.TokenTTL {
		t.Fatalf("token ttl should survive round trip, got %v", loaded.App.TokenTTL)
	}
}
