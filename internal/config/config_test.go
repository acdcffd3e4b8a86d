package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "booking"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Calls: CallsConfig{MaxConcurrentPerOrg: 5},
		Sweep: SweepConfig{BatchSize: 10},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLModeAndSecret(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE and ENCRYPTION_SECRET")
	}
	if !strings.Contains(err.Error(), "DB_SSLMODE") || !strings.Contains(err.Error(), "ENCRYPTION_SECRET") {
		t.Fatalf("expected both errors reported, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Bolna.BaseURL != defaultBolnaBaseURL {
		t.Fatalf("expected default bolna base url, got %q", c.Bolna.BaseURL)
	}
	if c.Bolna.RequestTimeout != 15*time.Second || c.Bolna.ProbeTimeout != 5*time.Second {
		t.Fatalf("unexpected bolna timeouts: %+v", c.Bolna)
	}
	if c.Sweep.Schedule != defaultSweepSchedule || c.Sweep.StaleAfter != 10*time.Minute {
		t.Fatalf("unexpected sweep defaults: %+v", c.Sweep)
	}
	if c.Calls.SlotTTL != 2*time.Minute {
		t.Fatalf("unexpected slot ttl: %v", c.Calls.SlotTTL)
	}
}

func TestValidate_RejectsBadSweepSchedule(t *testing.T) {
	c := validLocal()
	c.Sweep.Schedule = "every now and then"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "SWEEP_SCHEDULE") {
		t.Fatalf("expected schedule error, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "booking")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("BOLNA_BASE_URL", "https://bolna.test")
	t.Setenv("CALLS_MAX_CONCURRENT_PER_ORG", "3")
	t.Setenv("SWEEP_ENABLED", "false")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9000" || c.RedisAddr() != "cache:6379" {
		t.Fatalf("unexpected addrs: %s %s", c.HTTPAddr(), c.RedisAddr())
	}
	if c.Bolna.BaseURL != "https://bolna.test" || c.Calls.MaxConcurrentPerOrg != 3 || c.Sweep.Enabled {
		t.Fatalf("unexpected config: %+v", c)
	}
	if !strings.HasPrefix(c.PostgresURL(), "postgres://u:@db:5432/booking?sslmode=disable") {
		t.Fatalf("unexpected postgres url: %s", c.PostgresURL())
	}
}

func TestLoad_RejectsNonNumericPort(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "APP_PORT must be an integer") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
