package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a .env file loaded by cmd/api).
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	Auth  AuthConfig
	Bolna BolnaConfig
	Vault VaultConfig
	Calls CallsConfig
	Sweep SweepConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// BolnaConfig configures the voice-agent provider client. API keys are per organization and
// never come from env.
type BolnaConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration
	// FromPhone is the optional caller id used when placing calls.
	FromPhone string
}

// VaultConfig holds the operator secret the credential vault derives its key from.
type VaultConfig struct {
	Secret string
}

type CallsConfig struct {
	MaxConcurrentPerOrg int
	SlotTTL             time.Duration
}

type SweepConfig struct {
	Enabled    bool
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
}

const (
	defaultBolnaBaseURL   = "https://api.bolna.ai"
	defaultSweepSchedule  = "@every 5m"
	defaultMaxConcurrency = 10
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Bolna.BaseURL = strings.TrimSpace(os.Getenv("BOLNA_BASE_URL"))
	c.Bolna.RequestTimeout = mustDuration("BOLNA_REQUEST_TIMEOUT")
	c.Bolna.ProbeTimeout = mustDuration("BOLNA_PROBE_TIMEOUT")
	c.Bolna.FromPhone = strings.TrimSpace(os.Getenv("BOLNA_FROM_PHONE"))

	c.Vault.Secret = os.Getenv("ENCRYPTION_SECRET")

	{
		n, err := optionalInt("CALLS_MAX_CONCURRENT_PER_ORG", defaultMaxConcurrency)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Calls.MaxConcurrentPerOrg = n
	}
	c.Calls.SlotTTL = mustDuration("CALLS_SLOT_TTL")

	{
		b, err := optionalBool("SWEEP_ENABLED", true)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Sweep.Enabled = b
	}
	c.Sweep.Schedule = strings.TrimSpace(os.Getenv("SWEEP_SCHEDULE"))
	c.Sweep.StaleAfter = mustDuration("SWEEP_STALE_AFTER")
	{
		n, err := optionalInt("SWEEP_BATCH_SIZE", 50)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Sweep.BatchSize = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills env-dependent defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Bolna.BaseURL == "" {
		c.Bolna.BaseURL = defaultBolnaBaseURL
	}
	if u, err := url.Parse(c.Bolna.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BOLNA_BASE_URL must be an absolute URL, got %q", c.Bolna.BaseURL))
	}
	if c.Bolna.RequestTimeout <= 0 {
		c.Bolna.RequestTimeout = 15 * time.Second
	}
	if c.Bolna.ProbeTimeout <= 0 {
		c.Bolna.ProbeTimeout = 5 * time.Second
	}

	// The vault falls back to a development secret when this is empty; never in production.
	if c.IsProduction() && strings.TrimSpace(c.Vault.Secret) == "" {
		errs = append(errs, errors.New("ENCRYPTION_SECRET is required in production"))
	}

	if c.Calls.MaxConcurrentPerOrg <= 0 {
		errs = append(errs, fmt.Errorf("CALLS_MAX_CONCURRENT_PER_ORG must be > 0, got %d", c.Calls.MaxConcurrentPerOrg))
	}
	if c.Calls.SlotTTL <= 0 {
		c.Calls.SlotTTL = 2 * time.Minute
	}

	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = defaultSweepSchedule
	}
	if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("SWEEP_SCHEDULE is invalid: %v", err))
	}
	if c.Sweep.StaleAfter <= 0 {
		c.Sweep.StaleAfter = 10 * time.Minute
	}
	if c.Sweep.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_BATCH_SIZE must be > 0, got %d", c.Sweep.BatchSize))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// PostgresURL is the URL form of the DSN, used by golang-migrate.
func (c Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": []string{c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
