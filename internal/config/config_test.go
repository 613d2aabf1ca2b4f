package config

import (
	"testing"
	"time"
)

var keys = []string{
	"APP_PORT", "APP_ENV", "LOG_LEVEL", "STORE_DRIVER", "DATABASE_DSN", "SECRET_CODE", "SECRET_CODE_HASH",
	"CORS_ORIGINS", "HISTORY_LIMIT", "TEMP_TTL_HOURS", "REAP_INTERVAL_SECONDS",
	"WS_EVENTS_PER_SECOND", "WS_EVENT_BURST",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Load() Port = %v, want 8080", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("Load() Env = %v, want dev", cfg.Env)
	}
	if cfg.StoreDriver != DriverPostgres {
		t.Errorf("Load() StoreDriver = %v, want %v", cfg.StoreDriver, DriverPostgres)
	}
	if cfg.SecretCode != DefaultSecretCode {
		t.Errorf("Load() SecretCode = %v, want %v", cfg.SecretCode, DefaultSecretCode)
	}
	if cfg.HistoryLimit != 50 {
		t.Errorf("Load() HistoryLimit = %v, want 50", cfg.HistoryLimit)
	}
	if cfg.TempTTL != 24*time.Hour {
		t.Errorf("Load() TempTTL = %v, want 24h", cfg.TempTTL)
	}
	if cfg.ReapInterval != 30*time.Second {
		t.Errorf("Load() ReapInterval = %v, want 30s", cfg.ReapInterval)
	}
	if cfg.WSEventsPerSecond != 20 || cfg.WSEventBurst != 40 {
		t.Errorf("Load() ws limits = %v/%v, want 20/40", cfg.WSEventsPerSecond, cfg.WSEventBurst)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Errorf("Load() CORSOrigins = %v, want empty", cfg.CORSOrigins)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SECRET_CODE", "open-sesame")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("HISTORY_LIMIT", "30")
	t.Setenv("TEMP_TTL_HOURS", "2")
	t.Setenv("REAP_INTERVAL_SECONDS", "5")
	t.Setenv("WS_EVENTS_PER_SECOND", "2.5")
	t.Setenv("WS_EVENT_BURST", "4")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Load() Port = %v, want 9090", cfg.Port)
	}
	if cfg.Env != "prod" {
		t.Errorf("Load() Env = %v, want prod", cfg.Env)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Load() LogLevel = %v, want warn", cfg.LogLevel)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Errorf("Load() StoreDriver = %v, want memory", cfg.StoreDriver)
	}
	if cfg.SecretCode != "open-sesame" {
		t.Errorf("Load() SecretCode = %v, want open-sesame", cfg.SecretCode)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.example" || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Load() CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.HistoryLimit != 30 {
		t.Errorf("Load() HistoryLimit = %v, want 30", cfg.HistoryLimit)
	}
	if cfg.TempTTL != 2*time.Hour {
		t.Errorf("Load() TempTTL = %v, want 2h", cfg.TempTTL)
	}
	if cfg.ReapInterval != 5*time.Second {
		t.Errorf("Load() ReapInterval = %v, want 5s", cfg.ReapInterval)
	}
	if cfg.WSEventsPerSecond != 2.5 || cfg.WSEventBurst != 4 {
		t.Errorf("Load() ws limits = %v/%v, want 2.5/4", cfg.WSEventsPerSecond, cfg.WSEventBurst)
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("HISTORY_LIMIT", "invalid")
	t.Setenv("TEMP_TTL_HOURS", "-5")
	t.Setenv("WS_EVENTS_PER_SECOND", "0")

	cfg := Load()

	// 非法值回退到默认值
	if cfg.HistoryLimit != 50 {
		t.Errorf("Load() HistoryLimit = %v, want 50 (default)", cfg.HistoryLimit)
	}
	if cfg.TempTTL != 24*time.Hour {
		t.Errorf("Load() TempTTL = %v, want 24h (default)", cfg.TempTTL)
	}
	if cfg.WSEventsPerSecond != 20 {
		t.Errorf("Load() WSEventsPerSecond = %v, want 20 (default)", cfg.WSEventsPerSecond)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:         "8080",
			Env:          "dev",
			StoreDriver:  DriverPostgres,
			DatabaseDSN:  "postgres://localhost/test",
			SecretCode:   DefaultSecretCode,
			HistoryLimit: 50,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid dev config", mutate: func(*Config) {}},
		{name: "valid prod config", mutate: func(c *Config) { c.Env = "prod"; c.SecretCode = "production-code" }},
		{name: "prod with hash only", mutate: func(c *Config) { c.Env = "prod"; c.SecretCodeHash = "$2a$10$abc" }},
		{name: "memory without dsn", mutate: func(c *Config) { c.StoreDriver = DriverMemory; c.DatabaseDSN = "" }},
		{name: "empty port", mutate: func(c *Config) { c.Port = "" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.DatabaseDSN = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "sqlite" }, wantErr: true},
		{name: "no secret", mutate: func(c *Config) { c.SecretCode = "" }, wantErr: true},
		{name: "default secret in prod", mutate: func(c *Config) { c.Env = "prod" }, wantErr: true},
		{name: "default secret in test env", mutate: func(c *Config) { c.Env = "test" }, wantErr: true},
		{name: "history limit at cap", mutate: func(c *Config) { c.HistoryLimit = MaxHistoryLimit }},
		{name: "history limit above cap", mutate: func(c *Config) { c.HistoryLimit = MaxHistoryLimit + 1 }, wantErr: true},
		{name: "history limit 200", mutate: func(c *Config) { c.HistoryLimit = 200 }, wantErr: true},
		{name: "history limit zero", mutate: func(c *Config) { c.HistoryLimit = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
