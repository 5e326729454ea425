package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_DRIVER", "SESSION_TTL", "DEV", "SECURE_COOKIE", "REDIS_ADDR", "RATE_LIMIT_WINDOW"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Session.TTL != 24*time.Hour || cfg.Session.ResetTTL != time.Hour {
		t.Errorf("session ttl = %v reset = %v", cfg.Session.TTL, cfg.Session.ResetTTL)
	}
	if cfg.Session.SecureCookie {
		t.Error("secure cookie should default off in dev")
	}
	if cfg.RateLimit.Limit != 5 || cfg.RateLimit.Window != 15*time.Minute {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DEV", "false")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("BASE_URL", "https://ioea.eu/")
	t.Setenv("RATE_LIMIT_WINDOW", "garbage")
	cfg := Load()
	if !cfg.Session.SecureCookie {
		t.Error("secure cookie should default on outside dev")
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Errorf("ttl = %v", cfg.Session.TTL)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("port = %d", cfg.Database.Port)
	}
	if cfg.App.BaseURL != "https://ioea.eu" {
		t.Errorf("base url = %q", cfg.App.BaseURL)
	}
	if cfg.RateLimit.Window != 15*time.Minute {
		t.Error("invalid duration should fall back to default")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	if got := d.DSN(); got != "host=db port=5432 user=u password=p dbname=n sslmode=disable" {
		t.Errorf("DSN = %q", got)
	}
	if got := d.URL(); got != "postgres://u:p@db:5432/n?sslmode=disable" {
		t.Errorf("URL = %q", got)
	}
}
